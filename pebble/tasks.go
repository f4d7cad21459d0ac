package pebblestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/velmie/lordn"
)

type taskValue struct {
	ID        lordn.ID          `json:"id"`
	Queue     string            `json:"queue"`
	Action    string            `json:"action"`
	Service   string            `json:"service"`
	Params    map[string]string `json:"params"`
	RunAt     int64             `json:"run_at_ns"`
	CreatedAt int64             `json:"created_at_ns"`
}

func (v taskValue) scheduled() lordn.ScheduledTask {
	runAt := time.Unix(0, v.RunAt).UTC()
	createdAt := time.Unix(0, v.CreatedAt).UTC()

	return lordn.ScheduledTask{
		ID: v.ID,
		Task: lordn.Task{
			Queue:   v.Queue,
			Action:  v.Action,
			Service: v.Service,
			Params:  v.Params,
			Delay:   runAt.Sub(createdAt),
		},
		RunAt:     runAt,
		CreatedAt: createdAt,
	}
}

// Schedule implements lordn.Scheduler.
func (s *Store) Schedule(ctx context.Context, task lordn.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := task.Validate(); err != nil {
		return err
	}
	if !validKeyPart(task.Queue) {
		return ErrInvalidKeyPart
	}
	id, err := s.cfg.Generator.New()
	if err != nil {
		return fmt.Errorf("lordn pebble: generate task id failed: %w", err)
	}

	now := s.cfg.Clock.Now()
	runAt := now.Add(task.Delay)
	raw, err := json.Marshal(taskValue{
		ID:        id,
		Queue:     task.Queue,
		Action:    task.Action,
		Service:   task.Service,
		Params:    task.Params,
		RunAt:     runAt.UnixNano(),
		CreatedAt: now.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("lordn pebble: encode task failed: %w", err)
	}
	if err := s.db.Set(taskKey(task.Queue, runAt, id), raw, s.cfg.writeOptions()); err != nil {
		return fmt.Errorf("lordn pebble: write task failed: %w", err)
	}

	return nil
}

// ClaimDue implements lordn.TaskClaimer. Claimed tasks move to the dispatched
// range and are returned in due-time order.
func (s *Store) ClaimDue(ctx context.Context, queue string, limit int) ([]lordn.ScheduledTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, ErrClaimLimitInvalid
	}
	if !validKeyPart(queue) {
		return nil, ErrInvalidKeyPart
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.cfg.Clock.Now()

	prefix := taskQueuePrefix(queue)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: appendTime(append([]byte(nil), prefix...), now.Add(time.Nanosecond)),
	})
	if err != nil {
		return nil, fmt.Errorf("lordn pebble: iterate tasks failed: %w", err)
	}
	defer iter.Close()

	writes := s.db.NewBatch()
	defer writes.Close()

	var out []lordn.ScheduledTask
	for valid := iter.First(); valid && len(out) < limit; valid = iter.Next() {
		var value taskValue
		if err := json.Unmarshal(iter.Value(), &value); err != nil {
			return nil, fmt.Errorf("lordn pebble: decode task failed: %w", err)
		}
		if err := writes.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			return nil, fmt.Errorf("lordn pebble: delete task failed: %w", err)
		}
		if err := writes.Set(dispatchedKey(now, value.ID), iter.Value(), nil); err != nil {
			return nil, fmt.Errorf("lordn pebble: write dispatched task failed: %w", err)
		}
		out = append(out, value.scheduled())
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("lordn pebble: iterate tasks failed: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	if err := writes.Commit(s.cfg.writeOptions()); err != nil {
		return nil, fmt.Errorf("lordn pebble: commit claim failed: %w", err)
	}

	return out, nil
}

// Purge removes tasks dispatched before cutoff and returns how many were removed.
func (s *Store) Purge(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefixDispatched,
		UpperBound: appendTime(append([]byte(nil), prefixDispatched...), before),
	})
	if err != nil {
		return 0, fmt.Errorf("lordn pebble: iterate dispatched tasks failed: %w", err)
	}
	defer iter.Close()

	writes := s.db.NewBatch()
	defer writes.Close()
	removed := 0
	for valid := iter.First(); valid; valid = iter.Next() {
		if err := writes.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			return 0, fmt.Errorf("lordn pebble: delete dispatched task failed: %w", err)
		}
		removed++
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("lordn pebble: iterate dispatched tasks failed: %w", err)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := writes.Commit(s.cfg.writeOptions()); err != nil {
		return 0, fmt.Errorf("lordn pebble: commit purge failed: %w", err)
	}

	return removed, nil
}
