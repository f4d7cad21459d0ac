package lordn

import (
	"context"
	"time"
)

const (
	// MaxBatchSize caps the number of records leased or deleted per call.
	MaxBatchSize = 1000
	// DefaultLeasePeriod is how long leased records stay invisible to other consumers.
	DefaultLeasePeriod = time.Hour
)

// LeaseOptions controls which records a lease call selects.
type LeaseOptions struct {
	// Queue is the queue identity, derived from the phase.
	Queue string
	// Tag selects records of one partition (TLD).
	Tag string
	// Limit caps the number of records returned.
	Limit int
	// Period is the lease duration.
	Period time.Duration
}

// Validate checks that the options select a bounded, tagged set of records.
func (o LeaseOptions) Validate() error {
	if o.Queue == "" {
		return ErrQueueRequired
	}
	if o.Tag == "" {
		return ErrTagRequired
	}
	if o.Limit <= 0 {
		return ErrInvalidBatchSize
	}
	if o.Period <= 0 {
		return ErrInvalidLeasePeriod
	}

	return nil
}

// Queue is the two-phase lease and delete contract the pipeline drains.
//
// Leased records are invisible to other Lease calls until the lease period ends.
// Records that are not deleted before that become visible again.
type Queue interface {
	// Lease returns up to opts.Limit visible records with opts.Tag and hides them
	// for opts.Period. An empty batch means the partition is drained.
	Lease(ctx context.Context, opts LeaseOptions) (Batch, error)
	// Delete removes leased records. Handles that were already deleted or whose
	// lease changed hands are ignored.
	Delete(ctx context.Context, handles []Handle) error
}

// Enqueuer adds records to a queue.
type Enqueuer interface {
	// Enqueue validates and stores entry under queue and returns its ID.
	Enqueue(ctx context.Context, queue string, entry Entry) (ID, error)
}

// PendingCounter reports how many records of a partition are queued, leased or not.
type PendingCounter interface {
	// PendingCount returns the current number of queued records for tag.
	PendingCount(ctx context.Context, queue, tag string) (int, error)
}
