package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/velmie/lordn"
)

type storedTask struct {
	task         lordn.ScheduledTask
	dispatched   bool
	dispatchedAt time.Time
}

// Scheduler is an in-memory verify task store.
type Scheduler struct {
	cfg Config

	mu    sync.Mutex
	tasks []*storedTask
}

var (
	_ lordn.Scheduler   = (*Scheduler)(nil)
	_ lordn.TaskClaimer = (*Scheduler)(nil)
)

// NewScheduler constructs an empty scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Scheduler{cfg: cfg.withDefaults()}
}

// Schedule implements lordn.Scheduler.
func (s *Scheduler) Schedule(ctx context.Context, task lordn.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := task.Validate(); err != nil {
		return err
	}
	id, err := s.cfg.Generator.New()
	if err != nil {
		return fmt.Errorf("lordn memory: generate task id failed: %w", err)
	}
	task.Params = maps.Clone(task.Params)

	now := s.cfg.Clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, &storedTask{task: lordn.ScheduledTask{
		ID:        id,
		Task:      task,
		RunAt:     now.Add(task.Delay),
		CreatedAt: now,
	}})

	return nil
}

// Tasks returns every stored task in scheduling order, dispatched or not.
func (s *Scheduler) Tasks() []lordn.ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]lordn.ScheduledTask, 0, len(s.tasks))
	for _, stored := range s.tasks {
		out = append(out, stored.task)
	}

	return out
}

// ClaimDue implements lordn.TaskClaimer.
func (s *Scheduler) ClaimDue(ctx context.Context, queue string, limit int) ([]lordn.ScheduledTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("lordn memory: claim limit must be positive, got %d", limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.cfg.Clock.Now()

	due := make([]*storedTask, 0)
	for _, stored := range s.tasks {
		if stored.dispatched || stored.task.Task.Queue != queue || stored.task.RunAt.After(now) {
			continue
		}
		due = append(due, stored)
	}
	slices.SortStableFunc(due, func(a, b *storedTask) int {
		return a.task.RunAt.Compare(b.task.RunAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]lordn.ScheduledTask, 0, len(due))
	for _, stored := range due {
		stored.dispatched = true
		stored.dispatchedAt = now
		out = append(out, stored.task)
	}

	return out, nil
}

// Purge drops tasks dispatched before cutoff and returns how many were removed.
func (s *Scheduler) Purge(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.tasks[:0]
	removed := 0
	for _, stored := range s.tasks {
		if stored.dispatched && stored.dispatchedAt.Before(before) {
			removed++

			continue
		}
		kept = append(kept, stored)
	}
	s.tasks = kept

	return removed
}
