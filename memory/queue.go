package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/velmie/lordn"
)

type row struct {
	record     lordn.Record
	leaseUntil time.Time
}

type partition struct {
	queue string
	tag   string
}

// Queue is an in-memory lease queue. Rows of a partition are kept in enqueue order.
type Queue struct {
	cfg Config

	mu    sync.Mutex
	rows  map[partition][]*row
	index map[lordn.ID]partition
}

var (
	_ lordn.Queue          = (*Queue)(nil)
	_ lordn.Enqueuer       = (*Queue)(nil)
	_ lordn.PendingCounter = (*Queue)(nil)
)

// NewQueue constructs an empty queue.
func NewQueue(opts ...Option) *Queue {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Queue{
		cfg:   cfg.withDefaults(),
		rows:  make(map[partition][]*row),
		index: make(map[lordn.ID]partition),
	}
}

// Enqueue implements lordn.Enqueuer.
func (q *Queue) Enqueue(ctx context.Context, queue string, entry lordn.Entry) (lordn.ID, error) {
	if err := ctx.Err(); err != nil {
		return lordn.ID{}, err
	}
	if err := lordn.ValidateEnqueue(queue, entry); err != nil {
		return lordn.ID{}, err
	}

	id := entry.ID
	if id.IsZero() {
		var err error
		id, err = q.cfg.Generator.New()
		if err != nil {
			return lordn.ID{}, fmt.Errorf("lordn memory: generate id failed: %w", err)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.index[id]; ok {
		return lordn.ID{}, fmt.Errorf("lordn memory: duplicate id %s", id)
	}
	key := partition{queue: queue, tag: entry.Tag}
	q.rows[key] = append(q.rows[key], &row{record: lordn.Record{
		Handle:     lordn.Handle{ID: id},
		Queue:      queue,
		Tag:        entry.Tag,
		Payload:    slices.Clone(entry.Payload),
		EnqueuedAt: q.cfg.Clock.Now(),
	}})
	q.index[id] = key

	return id, nil
}

// Lease implements lordn.Queue.
func (q *Queue) Lease(ctx context.Context, opts lordn.LeaseOptions) (lordn.Batch, error) {
	if err := ctx.Err(); err != nil {
		return lordn.Batch{}, err
	}
	if err := opts.Validate(); err != nil {
		return lordn.Batch{}, err
	}
	lease, err := q.cfg.Generator.New()
	if err != nil {
		return lordn.Batch{}, fmt.Errorf("lordn memory: generate lease id failed: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.cfg.Clock.Now()
	until := now.Add(opts.Period)

	var batch lordn.Batch
	for _, r := range q.rows[partition{queue: opts.Queue, tag: opts.Tag}] {
		if len(batch.Records) == opts.Limit {
			break
		}
		if r.leaseUntil.After(now) {
			continue
		}
		r.record.Handle.Lease = lease
		r.leaseUntil = until
		record := r.record
		record.Payload = slices.Clone(r.record.Payload)
		batch.Records = append(batch.Records, record)
	}

	return batch, nil
}

// Delete implements lordn.Queue.
func (q *Queue) Delete(ctx context.Context, handles []lordn.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, handle := range handles {
		key, ok := q.index[handle.ID]
		if !ok {
			continue
		}
		rows := q.rows[key]
		i := slices.IndexFunc(rows, func(r *row) bool { return r.record.Handle.ID == handle.ID })
		if i < 0 || rows[i].record.Handle.Lease != handle.Lease {
			continue
		}
		q.rows[key] = slices.Delete(rows, i, i+1)
		delete(q.index, handle.ID)
	}

	return nil
}

// PendingCount implements lordn.PendingCounter.
func (q *Queue) PendingCount(ctx context.Context, queue, tag string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.rows[partition{queue: queue, tag: tag}]), nil
}
