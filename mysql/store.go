package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/velmie/lordn"
)

// Executor allows enqueuing within an existing transaction.
type Executor interface {
	// ExecContext executes a statement with the provided context.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store implements the LORDN lease queue on a MySQL table.
type Store struct {
	db      *sql.DB
	cfg     Config
	queries queries
	table   string
}

var (
	_ lordn.Queue          = (*Store)(nil)
	_ lordn.Enqueuer       = (*Store)(nil)
	_ lordn.PendingCounter = (*Store)(nil)
)

// NewStore constructs a MySQL store with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := quoteTableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		cfg:     cfg,
		queries: newQueries(table),
		table:   table,
	}, nil
}

// MustNewStore constructs a MySQL store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Enqueue inserts entry in its own statement.
func (s *Store) Enqueue(ctx context.Context, queue string, entry lordn.Entry) (lordn.ID, error) {
	return s.EnqueueTx(ctx, s.db, queue, entry)
}

// EnqueueTx inserts entry using the provided executor, so producers can queue
// LORDN lines in the transaction that creates the domain.
func (s *Store) EnqueueTx(ctx context.Context, exec Executor, queue string, entry lordn.Entry) (lordn.ID, error) {
	if exec == nil {
		return lordn.ID{}, ErrExecutorRequired
	}
	if err := lordn.ValidateEnqueue(queue, entry); err != nil {
		return lordn.ID{}, err
	}

	id := entry.ID
	if id.IsZero() {
		var err error
		id, err = s.cfg.Generator.New()
		if err != nil {
			return lordn.ID{}, wrap("generate id", err)
		}
	}

	if _, err := exec.ExecContext(ctx, s.queries.insert, id, queue, entry.Tag, entry.Payload, s.cfg.Clock.Now()); err != nil {
		return lordn.ID{}, wrap("insert", err)
	}

	return id, nil
}

// Lease locks up to opts.Limit visible rows with SKIP LOCKED, stamps them with a
// fresh lease id and commits, so the rows stay hidden for opts.Period without
// holding locks.
func (s *Store) Lease(ctx context.Context, opts lordn.LeaseOptions) (lordn.Batch, error) {
	if err := opts.Validate(); err != nil {
		return lordn.Batch{}, err
	}

	lease, err := s.cfg.Generator.New()
	if err != nil {
		return lordn.Batch{}, wrap("generate lease id", err)
	}
	now := s.cfg.Clock.Now()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return lordn.Batch{}, wrap("begin tx", err)
	}

	records, err := s.selectVisible(ctx, tx, opts, now)
	if err == nil && len(records) > 0 {
		err = s.stampLease(ctx, tx, records, lease, now.Add(opts.Period))
	}
	if err != nil {
		rollbackErr := tx.Rollback()

		return lordn.Batch{}, errors.Join(err, rollbackErr)
	}
	if len(records) == 0 {
		_ = tx.Rollback()

		return lordn.Batch{}, nil
	}
	if err := tx.Commit(); err != nil {
		return lordn.Batch{}, wrap("lease commit", err)
	}

	for i := range records {
		records[i].Handle.Lease = lease
	}

	return lordn.Batch{Records: records}, nil
}

func (s *Store) selectVisible(ctx context.Context, tx *sql.Tx, opts lordn.LeaseOptions, now time.Time) ([]lordn.Record, error) {
	rows, err := tx.QueryContext(ctx, s.queries.selectLease, opts.Queue, opts.Tag, now, opts.Limit)
	if err != nil {
		return nil, wrap("lease select", err)
	}
	defer rows.Close()

	records := make([]lordn.Record, 0, opts.Limit)
	for rows.Next() {
		var record lordn.Record
		if err := rows.Scan(&record.Handle.ID, &record.Queue, &record.Tag, &record.Payload, &record.EnqueuedAt); err != nil {
			return nil, wrap("lease scan", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("lease rows", err)
	}

	return records, nil
}

const leaseFixedArgs = 2

func (s *Store) stampLease(ctx context.Context, tx *sql.Tx, records []lordn.Record, lease lordn.ID, until time.Time) error {
	args := make([]any, 0, len(records)+leaseFixedArgs)
	args = append(args, lease, until)
	for i := range records {
		args = append(args, records[i].Handle.ID)
	}
	if _, err := tx.ExecContext(ctx, buildLeaseUpdate(s.table, len(records)), args...); err != nil {
		return wrap("lease update", err)
	}

	return nil
}

// Delete removes rows whose lease id still matches the handle. Handles of
// rows that were deleted or re-leased in the meantime are ignored.
func (s *Store) Delete(ctx context.Context, handles []lordn.Handle) error {
	for _, group := range groupByLease(handles) {
		args := make([]any, 0, len(group.ids)+1)
		args = append(args, group.lease)
		for _, id := range group.ids {
			args = append(args, id)
		}
		if _, err := s.db.ExecContext(ctx, buildDelete(s.table, len(group.ids)), args...); err != nil {
			return wrap("delete", err)
		}
	}

	return nil
}

// PendingCount returns the number of queued rows for tag, leased or not.
func (s *Store) PendingCount(ctx context.Context, queue, tag string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.queries.countPending, queue, tag).Scan(&count); err != nil {
		return 0, wrap("pending count", err)
	}

	return count, nil
}

type leaseGroup struct {
	lease lordn.ID
	ids   []lordn.ID
}

// groupByLease splits handles per lease id, keeping first-seen order.
func groupByLease(handles []lordn.Handle) []leaseGroup {
	index := make(map[lordn.ID]int)
	groups := make([]leaseGroup, 0, 1)
	for _, handle := range handles {
		i, ok := index[handle.Lease]
		if !ok {
			i = len(groups)
			index[handle.Lease] = i
			groups = append(groups, leaseGroup{lease: handle.Lease})
		}
		groups[i].ids = append(groups[i].ids, handle.ID)
	}

	return groups
}
