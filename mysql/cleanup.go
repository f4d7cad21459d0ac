package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/velmie/lordn"
)

const (
	defaultCleanupLimit      = 10000
	defaultCleanupEvery      = time.Hour
	defaultCleanupLockPrefix = "lordn:cleanup:"
)

// CleanupOptions defines which dispatched tasks to delete.
type CleanupOptions struct {
	// Before removes tasks dispatched at or before this timestamp (required).
	Before time.Time
	// Limit caps the number of rows deleted per call (0 uses the default).
	Limit int
}

// CleanupResult reports how many rows were removed.
type CleanupResult struct {
	Tasks int64
}

// CleanupMaintainerConfig controls periodic cleanup of the task table.
type CleanupMaintainerConfig struct {
	// Table is the task table name. Use schema.table for non-default schema.
	Table string
	// Retention removes tasks dispatched before now-retention (required).
	Retention time.Duration
	// CheckEvery is the interval between cleanup runs.
	CheckEvery time.Duration
	// Limit caps the number of rows deleted per run (0 uses the default).
	Limit int
	// LockName is the advisory lock name. Defaults to lordn:cleanup:<table>.
	LockName string
	// Clock overrides time source (useful for tests).
	Clock lordn.Clock
	// Logger receives warnings about cleanup failures.
	Logger lordn.Logger
}

// CleanupMaintainer runs periodic cleanup of dispatched verify tasks.
// An advisory lock keeps concurrent maintainers from deleting in parallel.
type CleanupMaintainer struct {
	store *TaskStore
	cfg   CleanupMaintainerConfig
}

// Cleanup removes dispatched tasks older than opts.Before.
func (s *TaskStore) Cleanup(ctx context.Context, opts CleanupOptions) (CleanupResult, error) {
	if opts.Before.IsZero() {
		return CleanupResult{}, ErrCleanupBeforeRequired
	}
	limit := opts.Limit
	if limit == 0 {
		limit = defaultCleanupLimit
	}
	if limit < 0 {
		return CleanupResult{}, ErrCleanupLimitInvalid
	}

	// #nosec G201 -- table name is quoted and validated.
	query := fmt.Sprintf(
		"DELETE FROM %s WHERE dispatched_at IS NOT NULL AND dispatched_at <= ? ORDER BY dispatched_at LIMIT ?",
		s.table,
	)
	res, err := s.db.ExecContext(ctx, query, opts.Before, limit)
	if err != nil {
		return CleanupResult{}, wrap("cleanup delete", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return CleanupResult{}, wrap("cleanup rows", err)
	}

	return CleanupResult{Tasks: affected}, nil
}

// NewCleanupMaintainer creates a new cleanup maintainer with defaults applied.
func NewCleanupMaintainer(db *sql.DB, cfg CleanupMaintainerConfig) (*CleanupMaintainer, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	if cfg.Retention <= 0 {
		return nil, ErrCleanupRetentionInvalid
	}
	if cfg.Clock == nil {
		cfg.Clock = lordn.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = lordn.NopLogger{}
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = defaultCleanupEvery
	}
	if cfg.Limit == 0 {
		cfg.Limit = defaultCleanupLimit
	}
	if cfg.Limit < 0 {
		return nil, ErrCleanupLimitInvalid
	}
	if cfg.Table == "" {
		cfg.Table = defaultTaskTable
	}

	store, err := NewTaskStore(db, WithTaskTable(cfg.Table), WithClock(cfg.Clock))
	if err != nil {
		return nil, err
	}
	if cfg.LockName == "" {
		cfg.LockName = defaultCleanupLockPrefix + cfg.Table
	}

	return &CleanupMaintainer{store: store, cfg: cfg}, nil
}

// Run periodically deletes old dispatched tasks until the context is canceled.
func (m *CleanupMaintainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckEvery)
	defer ticker.Stop()

	m.ensureLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.ensureLogged(ctx)
		}
	}
}

func (m *CleanupMaintainer) ensureLogged(ctx context.Context) {
	result, err := m.Ensure(ctx)
	if err != nil {
		m.cfg.Logger.Warn("lordn cleanup failed", "err", err)

		return
	}
	if result.Tasks > 0 {
		m.cfg.Logger.Info("lordn cleanup removed tasks", "table", m.cfg.Table, "tasks", result.Tasks)
	}
}

// Ensure executes a single cleanup pass. It returns an empty result when
// another session holds the lock.
func (m *CleanupMaintainer) Ensure(ctx context.Context) (CleanupResult, error) {
	conn, err := m.store.db.Conn(ctx)
	if err != nil {
		return CleanupResult{}, wrap("cleanup conn", err)
	}
	defer conn.Close()

	locked, err := m.tryLock(ctx, conn)
	if err != nil {
		return CleanupResult{}, err
	}
	if !locked {
		m.cfg.Logger.Debug("lordn cleanup lock held by another session")

		return CleanupResult{}, nil
	}
	defer m.releaseLock(ctx, conn)

	return m.store.Cleanup(ctx, CleanupOptions{
		Before: m.cfg.Clock.Now().Add(-m.cfg.Retention),
		Limit:  m.cfg.Limit,
	})
}

func (m *CleanupMaintainer) tryLock(ctx context.Context, conn *sql.Conn) (bool, error) {
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", m.cfg.LockName).Scan(&got); err != nil {
		return false, wrap("acquire cleanup lock", err)
	}

	return got.Valid && got.Int64 == 1, nil
}

func (m *CleanupMaintainer) releaseLock(ctx context.Context, conn *sql.Conn) {
	var released sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", m.cfg.LockName).Scan(&released); err != nil {
		m.cfg.Logger.Warn("lordn cleanup release lock failed", "err", err)
	}
}
