package pebblestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/velmie/lordn"
)

// Store implements the LORDN lease queue and the verify task scheduler on one
// Pebble database.
type Store struct {
	db  *pebble.DB
	cfg Config

	mu sync.Mutex
}

var (
	_ lordn.Queue          = (*Store)(nil)
	_ lordn.Enqueuer       = (*Store)(nil)
	_ lordn.PendingCounter = (*Store)(nil)
	_ lordn.Scheduler      = (*Store)(nil)
	_ lordn.TaskClaimer    = (*Store)(nil)
)

type recordValue struct {
	Payload    []byte   `json:"payload"`
	EnqueuedAt int64    `json:"enqueued_at_ns"`
	Lease      lordn.ID `json:"lease"`
	LeaseUntil int64    `json:"lease_until_ns"`
	LeaseCount int      `json:"lease_count"`
}

// Open creates or opens a store in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, ErrDirRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	db, err := pebble.Open(dir, cfg.PebbleOptions)
	if err != nil {
		return nil, fmt.Errorf("lordn pebble: open %s failed: %w", dir, err)
	}

	return &Store{db: db, cfg: cfg}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// Enqueue implements lordn.Enqueuer.
func (s *Store) Enqueue(ctx context.Context, queue string, entry lordn.Entry) (lordn.ID, error) {
	if err := ctx.Err(); err != nil {
		return lordn.ID{}, err
	}
	if err := lordn.ValidateEnqueue(queue, entry); err != nil {
		return lordn.ID{}, err
	}
	if !validKeyPart(queue) || !validKeyPart(entry.Tag) {
		return lordn.ID{}, ErrInvalidKeyPart
	}

	id := entry.ID
	if id.IsZero() {
		var err error
		id, err = s.cfg.Generator.New()
		if err != nil {
			return lordn.ID{}, fmt.Errorf("lordn pebble: generate id failed: %w", err)
		}
	}

	raw, err := json.Marshal(recordValue{Payload: entry.Payload, EnqueuedAt: s.cfg.Clock.Now().UnixNano()})
	if err != nil {
		return lordn.ID{}, fmt.Errorf("lordn pebble: encode record failed: %w", err)
	}
	key := recordKey(queue, entry.Tag, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.get(indexKey(id)); err == nil {
		return lordn.ID{}, fmt.Errorf("lordn pebble: duplicate id %s", id)
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return lordn.ID{}, err
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(key, raw, nil); err != nil {
		return lordn.ID{}, fmt.Errorf("lordn pebble: write record failed: %w", err)
	}
	if err := batch.Set(indexKey(id), key, nil); err != nil {
		return lordn.ID{}, fmt.Errorf("lordn pebble: write index failed: %w", err)
	}
	if err := batch.Commit(s.cfg.writeOptions()); err != nil {
		return lordn.ID{}, fmt.Errorf("lordn pebble: commit enqueue failed: %w", err)
	}

	return id, nil
}

// Lease implements lordn.Queue.
func (s *Store) Lease(ctx context.Context, opts lordn.LeaseOptions) (lordn.Batch, error) {
	if err := ctx.Err(); err != nil {
		return lordn.Batch{}, err
	}
	if err := opts.Validate(); err != nil {
		return lordn.Batch{}, err
	}
	if !validKeyPart(opts.Queue) || !validKeyPart(opts.Tag) {
		return lordn.Batch{}, ErrInvalidKeyPart
	}
	lease, err := s.cfg.Generator.New()
	if err != nil {
		return lordn.Batch{}, fmt.Errorf("lordn pebble: generate lease id failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.cfg.Clock.Now()
	until := now.Add(opts.Period).UnixNano()

	prefix := partitionPrefix(opts.Queue, opts.Tag)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return lordn.Batch{}, fmt.Errorf("lordn pebble: iterate records failed: %w", err)
	}
	defer iter.Close()

	writes := s.db.NewBatch()
	defer writes.Close()

	var out lordn.Batch
	for valid := iter.First(); valid && out.Len() < opts.Limit; valid = iter.Next() {
		var value recordValue
		if err := json.Unmarshal(iter.Value(), &value); err != nil {
			return lordn.Batch{}, fmt.Errorf("lordn pebble: decode record failed: %w", err)
		}
		if value.LeaseUntil > now.UnixNano() {
			continue
		}
		value.Lease = lease
		value.LeaseUntil = until
		value.LeaseCount++
		raw, err := json.Marshal(value)
		if err != nil {
			return lordn.Batch{}, fmt.Errorf("lordn pebble: encode record failed: %w", err)
		}
		key := append([]byte(nil), iter.Key()...)
		if err := writes.Set(key, raw, nil); err != nil {
			return lordn.Batch{}, fmt.Errorf("lordn pebble: write lease failed: %w", err)
		}

		var id lordn.ID
		copy(id[:], key[len(prefix):])
		out.Records = append(out.Records, lordn.Record{
			Handle:     lordn.Handle{ID: id, Lease: lease},
			Queue:      opts.Queue,
			Tag:        opts.Tag,
			Payload:    value.Payload,
			EnqueuedAt: time.Unix(0, value.EnqueuedAt).UTC(),
		})
	}
	if err := iter.Error(); err != nil {
		return lordn.Batch{}, fmt.Errorf("lordn pebble: iterate records failed: %w", err)
	}
	if out.Len() == 0 {
		return out, nil
	}
	if err := writes.Commit(s.cfg.writeOptions()); err != nil {
		return lordn.Batch{}, fmt.Errorf("lordn pebble: commit lease failed: %w", err)
	}

	return out, nil
}

// Delete implements lordn.Queue.
func (s *Store) Delete(ctx context.Context, handles []lordn.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(handles) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	writes := s.db.NewBatch()
	defer writes.Close()
	for _, handle := range handles {
		key, err := s.get(indexKey(handle.ID))
		if errors.Is(err, pebble.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		raw, err := s.get(key)
		if errors.Is(err, pebble.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		var value recordValue
		if err := json.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("lordn pebble: decode record failed: %w", err)
		}
		if value.Lease != handle.Lease {
			continue
		}
		if err := writes.Delete(key, nil); err != nil {
			return fmt.Errorf("lordn pebble: delete record failed: %w", err)
		}
		if err := writes.Delete(indexKey(handle.ID), nil); err != nil {
			return fmt.Errorf("lordn pebble: delete index failed: %w", err)
		}
	}
	if writes.Empty() {
		return nil
	}
	if err := writes.Commit(s.cfg.writeOptions()); err != nil {
		return fmt.Errorf("lordn pebble: commit delete failed: %w", err)
	}

	return nil
}

// PendingCount implements lordn.PendingCounter.
func (s *Store) PendingCount(ctx context.Context, queue, tag string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !validKeyPart(queue) || !validKeyPart(tag) {
		return 0, ErrInvalidKeyPart
	}

	prefix := partitionPrefix(queue, tag)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return 0, fmt.Errorf("lordn pebble: iterate records failed: %w", err)
	}
	defer iter.Close()

	count := 0
	for valid := iter.First(); valid; valid = iter.Next() {
		count++
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("lordn pebble: iterate records failed: %w", err)
	}

	return count, nil
}

// get copies the value stored under key.
func (s *Store) get(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, err
		}

		return nil, fmt.Errorf("lordn pebble: get failed: %w", err)
	}
	defer closer.Close()

	return append([]byte(nil), val...), nil
}
