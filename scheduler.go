package lordn

import (
	"context"
	"time"
)

const (
	// VerifyQueue is the task queue the verify action is dispatched from.
	VerifyQueue = "marksdb"
	// VerifyAction is the path of the action that fetches the MarksDB log for an upload.
	VerifyAction = "/_dr/task/nordnVerify"
	// VerifyService is the service that hosts VerifyAction.
	VerifyService = "backend"
	// DefaultVerifyDelay is how long MarksDB is given to process an upload.
	DefaultVerifyDelay = 30 * time.Minute

	// ParamNordnURL carries the acknowledgment locator.
	ParamNordnURL = "nordnUrl"
	// ParamNordnLogID carries the correlation id of the upload run.
	ParamNordnLogID = "nordnLogId"
	// ParamTLD carries the partition tag.
	ParamTLD = "tld"
)

// Task is a delayed invocation of a named action.
type Task struct {
	Queue   string
	Action  string
	Service string
	Params  map[string]string
	Delay   time.Duration
}

// Validate checks that the task names an action and has a non-negative delay.
func (t Task) Validate() error {
	if t.Action == "" {
		return ErrActionRequired
	}
	if t.Delay < 0 {
		return ErrInvalidDelay
	}

	return nil
}

// ScheduledTask is a stored Task with its due time.
type ScheduledTask struct {
	ID        ID
	Task      Task
	RunAt     time.Time
	CreatedAt time.Time
}

// Scheduler enqueues delayed tasks.
type Scheduler interface {
	// Schedule stores task for execution after task.Delay.
	Schedule(ctx context.Context, task Task) error
}

// TaskClaimer hands due tasks to the dispatcher that runs them.
type TaskClaimer interface {
	// ClaimDue marks up to limit due tasks of queue as dispatched and returns them.
	ClaimDue(ctx context.Context, queue string, limit int) ([]ScheduledTask, error)
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(ctx context.Context, task Task) error

// Schedule implements Scheduler.
func (fn SchedulerFunc) Schedule(ctx context.Context, task Task) error {
	return fn(ctx, task)
}

// VerifyTask builds the follow-up task for an accepted upload.
func VerifyTask(locator, correlationID, tag string, delay time.Duration) Task {
	return Task{
		Queue:   VerifyQueue,
		Action:  VerifyAction,
		Service: VerifyService,
		Params: map[string]string{
			ParamNordnURL:   locator,
			ParamNordnLogID: correlationID,
			ParamTLD:        tag,
		},
		Delay: delay,
	}
}
