package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/velmie/lordn"
)

// TaskStore keeps delayed verify tasks in a MySQL table until the
// verification dispatcher claims them.
type TaskStore struct {
	db      *sql.DB
	cfg     Config
	queries taskQueries
	table   string
}

var (
	_ lordn.Scheduler   = (*TaskStore)(nil)
	_ lordn.TaskClaimer = (*TaskStore)(nil)
)

// NewTaskStore constructs a task store on cfg.TaskTable.
func NewTaskStore(db *sql.DB, opts ...Option) (*TaskStore, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := quoteTableName(cfg.TaskTable)
	if err != nil {
		return nil, err
	}

	return &TaskStore{
		db:      db,
		cfg:     cfg,
		queries: newTaskQueries(table),
		table:   table,
	}, nil
}

// Schedule stores task with run_at = now + task.Delay.
func (s *TaskStore) Schedule(ctx context.Context, task lordn.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	id, err := s.cfg.Generator.New()
	if err != nil {
		return wrap("generate task id", err)
	}
	params, err := encodeParams(task.Params)
	if err != nil {
		return err
	}

	now := s.cfg.Clock.Now()
	if _, err := s.db.ExecContext(
		ctx,
		s.queries.insert,
		id,
		task.Queue,
		task.Action,
		task.Service,
		params,
		now.Add(task.Delay),
		now,
	); err != nil {
		return wrap("task insert", err)
	}

	return nil
}

// ClaimDue marks up to limit due tasks of queue as dispatched and returns them.
// Concurrent dispatchers never claim the same task.
func (s *TaskStore) ClaimDue(ctx context.Context, queue string, limit int) ([]lordn.ScheduledTask, error) {
	if limit <= 0 {
		return nil, ErrClaimLimitInvalid
	}
	now := s.cfg.Clock.Now()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, wrap("begin tx", err)
	}

	tasks, err := s.selectDue(ctx, tx, queue, now, limit)
	if err == nil && len(tasks) > 0 {
		err = s.markDispatched(ctx, tx, tasks, now)
	}
	if err != nil {
		rollbackErr := tx.Rollback()

		return nil, errors.Join(err, rollbackErr)
	}
	if len(tasks) == 0 {
		_ = tx.Rollback()

		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, wrap("claim commit", err)
	}

	return tasks, nil
}

func (s *TaskStore) selectDue(ctx context.Context, tx *sql.Tx, queue string, now time.Time, limit int) ([]lordn.ScheduledTask, error) {
	rows, err := tx.QueryContext(ctx, s.queries.selectDue, queue, now, limit)
	if err != nil {
		return nil, wrap("claim select", err)
	}
	defer rows.Close()

	tasks := make([]lordn.ScheduledTask, 0, limit)
	for rows.Next() {
		var (
			task   lordn.ScheduledTask
			params []byte
		)
		if err := rows.Scan(
			&task.ID,
			&task.Task.Queue,
			&task.Task.Action,
			&task.Task.Service,
			&params,
			&task.RunAt,
			&task.CreatedAt,
		); err != nil {
			return nil, wrap("claim scan", err)
		}
		if err := json.Unmarshal(params, &task.Task.Params); err != nil {
			return nil, wrap("claim decode params", err)
		}
		task.Task.Delay = task.RunAt.Sub(task.CreatedAt)
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("claim rows", err)
	}

	return tasks, nil
}

func (s *TaskStore) markDispatched(ctx context.Context, tx *sql.Tx, tasks []lordn.ScheduledTask, now time.Time) error {
	args := make([]any, 0, len(tasks)+1)
	args = append(args, now)
	for i := range tasks {
		args = append(args, tasks[i].ID)
	}
	if _, err := tx.ExecContext(ctx, buildDispatchUpdate(s.table, len(tasks)), args...); err != nil {
		return wrap("claim update", err)
	}

	return nil
}

// encodeParams returns a string because MySQL rejects JSON values sent with
// the binary character set.
func encodeParams(params map[string]string) (string, error) {
	if params == nil {
		params = map[string]string{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "", wrap("encode params", err)
	}

	return string(raw), nil
}
