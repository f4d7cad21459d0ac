package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/velmie/lordn"
	"github.com/velmie/lordn/memory"
	"github.com/velmie/lordn/mysql"
	pebblestore "github.com/velmie/lordn/pebble"
)

const (
	storeMySQL  = "mysql"
	storePebble = "pebble"
	storeMemory = "memory"
)

var (
	errDSNRequired       = errors.New("dsn is required for the mysql store")
	errPebbleDirRequired = errors.New("pebble-dir is required for the pebble store")
)

type queueBackend interface {
	lordn.Queue
	lordn.Enqueuer
	lordn.PendingCounter
}

type taskBackend interface {
	lordn.Scheduler
	lordn.TaskClaimer
}

// backend bundles the queue and task store of one storage engine.
type backend struct {
	queue queueBackend
	tasks taskBackend
	// purge removes dispatched verify tasks older than retention.
	purge func(ctx context.Context, retention time.Duration, limit int) (int64, error)
	close func() error
}

func (b *backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}

	return b.close()
}

type backendOpener func(ctx context.Context, cfg storeSettings, logger lordn.Logger) (*backend, error)

func openBackend(ctx context.Context, cfg storeSettings, logger lordn.Logger) (*backend, error) {
	switch cfg.Kind {
	case storeMySQL:
		return openMySQL(ctx, cfg, logger)
	case storePebble:
		return openPebble(cfg)
	case storeMemory:
		return openMemory(lordn.SystemClock{}), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Kind)
	}
}

func openMySQL(ctx context.Context, cfg storeSettings, logger lordn.Logger) (*backend, error) {
	if cfg.DSN == "" {
		return nil, errDSNRequired
	}
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	opts := []mysql.Option{mysql.WithTable(cfg.QueueTable), mysql.WithTaskTable(cfg.TaskTable)}
	store, err := mysql.NewStore(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	tasks, err := mysql.NewTaskStore(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	purge := func(ctx context.Context, retention time.Duration, limit int) (int64, error) {
		maintainer, err := mysql.NewCleanupMaintainer(db, mysql.CleanupMaintainerConfig{
			Table:     cfg.TaskTable,
			Retention: retention,
			Limit:     limit,
			Logger:    logger,
		})
		if err != nil {
			return 0, err
		}
		result, err := maintainer.Ensure(ctx)

		return result.Tasks, err
	}

	return &backend{queue: store, tasks: tasks, purge: purge, close: db.Close}, nil
}

func openPebble(cfg storeSettings) (*backend, error) {
	if cfg.PebbleDir == "" {
		return nil, errPebbleDirRequired
	}
	store, err := pebblestore.Open(cfg.PebbleDir)
	if err != nil {
		return nil, err
	}
	purge := func(ctx context.Context, retention time.Duration, _ int) (int64, error) {
		removed, err := store.Purge(ctx, time.Now().Add(-retention))

		return int64(removed), err
	}

	return &backend{queue: store, tasks: store, purge: purge, close: store.Close}, nil
}

func openMemory(clock lordn.Clock) *backend {
	scheduler := memory.NewScheduler(memory.WithClock(clock))
	purge := func(_ context.Context, retention time.Duration, _ int) (int64, error) {
		return int64(scheduler.Purge(clock.Now().Add(-retention))), nil
	}

	return &backend{queue: memory.NewQueue(memory.WithClock(clock)), tasks: scheduler, purge: purge}
}
