package lordn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	operationLease    = "lease"
	operationDelete   = "delete"
	operationSchedule = "schedule"
)

// Pipeline drains one partition of a LORDN queue into a single MarksDB upload.
// It holds no per-run state, so Run may be called concurrently.
type Pipeline struct {
	queue     Queue
	uploader  Uploader
	scheduler Scheduler
	cfg       PipelineConfig
}

// Result summarizes one run.
type Result struct {
	State         State
	CorrelationID string
	Tag           string
	Phase         Phase
	// Leased counts every record returned by the queue, duplicates included.
	Leased int
	// Distinct counts the lines written to the report.
	Distinct int
	// Locator is the acknowledgment URL returned by MarksDB.
	Locator string
	// DeleteFailures counts records that stay queued after an accepted upload.
	DeleteFailures int
	// Scheduled reports whether the verify task was stored.
	Scheduled bool
}

// runScope carries the values every step of one run logs with.
type runScope struct {
	correlationID string
	tag           string
	phase         Phase
	logger        Logger
}

// context attaches the run fields for components that log on their own.
func (s runScope) context(ctx context.Context) context.Context {
	return ContextWithLogFields(ctx, "correlation_id", s.correlationID, "tld", s.tag, "phase", s.phase.String())
}

// NewPipeline constructs a Pipeline with defaults and optional settings.
func NewPipeline(queue Queue, uploader Uploader, scheduler Scheduler, opts ...PipelineOption) *Pipeline {
	if queue == nil {
		panic("lordn: nil Queue")
	}
	if uploader == nil {
		panic("lordn: nil Uploader")
	}
	if scheduler == nil {
		panic("lordn: nil Scheduler")
	}

	var cfg PipelineConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Pipeline{
		queue:     queue,
		uploader:  uploader,
		scheduler: scheduler,
		cfg:       cfg.withDefaults(),
	}
}

// Run leases every pending record of tag, uploads them as one report and
// schedules its verification. The error is non-nil only when the run did not
// start or ended Aborted. Delete and schedule failures after an accepted upload
// are logged and reported in Result.
func (p *Pipeline) Run(ctx context.Context, tag string, phase Phase) (Result, error) {
	result := Result{State: StateIdle, Tag: tag, Phase: phase}
	if tag == "" {
		return result, ErrTagRequired
	}
	if !phase.Valid() {
		return result, fmt.Errorf("%w: %q", ErrInvalidPhase, phase)
	}
	correlation, err := p.cfg.Correlation.New()
	if err != nil {
		return result, fmt.Errorf("lordn: correlation id: %w", err)
	}
	result.CorrelationID = correlation.String()

	scope := runScope{
		correlationID: result.CorrelationID,
		tag:           tag,
		phase:         phase,
		logger:        withFields(p.cfg.Logger, "correlation_id", result.CorrelationID, "tld", tag, "phase", phase.String()),
	}
	start := p.cfg.Clock.Now()
	defer func() {
		p.cfg.Metrics.ObserveRun(phase, result.State, p.cfg.Clock.Now().Sub(start))
	}()

	result.State = StateLeasing
	batches, err := p.leaseAll(ctx, scope)
	if err != nil {
		result.State = StateAborted
		scope.logger.Error("lordn lease failed", "batches", len(batches), "err", err)

		return result, fmt.Errorf("%w: %w", ErrLeaseFailed, err)
	}
	result.Leased = countRecords(batches)
	p.cfg.Metrics.AddLeased(phase, result.Leased)

	result.State = StateAssembling
	report := Assemble(batches, p.cfg.Clock.Now(), phase.Columns())
	result.Distinct = report.Count()
	p.cfg.Metrics.AddReported(phase, report.Count(), report.Duplicates)
	if report.Blank > 0 {
		scope.logger.Warn("lordn records with empty payload skipped", "count", report.Blank)
	}
	if report.Empty() {
		result.State = StateDone
		scope.logger.Info("lordn no records to upload", "leased", result.Leased)

		return result, nil
	}
	scope.logger.Info("lordn report assembled",
		"leased", result.Leased,
		"distinct", report.Count(),
		"duplicates", report.Duplicates,
	)

	result.State = StateUploading
	locator, err := p.upload(ctx, scope, report)
	if err != nil {
		result.State = StateAborted
		scope.logger.Error("lordn upload failed", "err", err)

		return result, err
	}
	result.Locator = locator

	// The upload is accepted at this point. Cleanup and scheduling must not be
	// cut short by the caller going away.
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.FinalizeTimeout)
	defer cancel()

	result.State = StateCleaningUp
	result.DeleteFailures = p.deleteAll(finalCtx, scope, batches)

	result.State = StateSchedulingVerification
	result.Scheduled = p.scheduleVerification(finalCtx, scope, locator)

	result.State = StateDone
	scope.logger.Info("lordn upload finished",
		"locator", locator,
		"delete_failures", result.DeleteFailures,
		"scheduled", result.Scheduled,
	)

	return result, nil
}

// RunAll runs tags concurrently with at most concurrency runs in flight.
// A failing tag does not stop the others; their errors are joined.
func (p *Pipeline) RunAll(ctx context.Context, tags []string, phase Phase, concurrency int) ([]Result, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]Result, len(tags))
	errs := make([]error, len(tags))

	var group errgroup.Group
	group.SetLimit(concurrency)
	for i, tag := range tags {
		group.Go(func() error {
			result, err := p.Run(ctx, tag, phase)
			results[i] = result
			if err != nil {
				errs[i] = fmt.Errorf("lordn: tld %s: %w", tag, err)
			}

			return nil
		})
	}
	_ = group.Wait()

	return results, errors.Join(errs...)
}

func (p *Pipeline) leaseAll(ctx context.Context, scope runScope) ([]Batch, error) {
	opts := LeaseOptions{
		Queue:  scope.phase.Queue(),
		Tag:    scope.tag,
		Limit:  p.cfg.BatchSize,
		Period: p.cfg.LeasePeriod,
	}

	var batches []Batch
	for {
		var batch Batch
		err := p.retry(ctx, scope, operationLease, func(ctx context.Context) error {
			leased, err := p.queue.Lease(ctx, opts)
			if err != nil {
				return err
			}
			batch = leased

			return nil
		})
		if err != nil {
			return batches, err
		}
		if batch.Len() == 0 {
			return batches, nil
		}
		scope.logger.Debug("lordn batch leased", "records", batch.Len())
		batches = append(batches, batch)
	}
}

func (p *Pipeline) upload(ctx context.Context, scope runScope, report Report) (string, error) {
	start := p.cfg.Clock.Now()
	locator, err := p.uploader.Upload(scope.context(ctx), scope.tag, UploadPath(scope.tag, scope.phase), report.Bytes())
	status := http.StatusAccepted
	var uploadErr *UploadError
	switch {
	case errors.As(err, &uploadErr):
		status = uploadErr.StatusCode
	case err != nil:
		status = 0
	}
	p.cfg.Metrics.ObserveUpload(scope.phase, status, p.cfg.Clock.Now().Sub(start))

	return locator, err
}

// deleteAll removes uploaded records and returns how many could not be deleted.
// Those records reappear after their lease and are reported again.
func (p *Pipeline) deleteAll(ctx context.Context, scope runScope, batches []Batch) int {
	failed := 0
	for _, batch := range batches {
		for chunk := range slices.Chunk(batch.Handles(), p.cfg.BatchSize) {
			err := p.retry(ctx, scope, operationDelete, func(ctx context.Context) error {
				return p.queue.Delete(ctx, chunk)
			})
			if err != nil {
				failed += len(chunk)
				scope.logger.Error("lordn delete failed", "records", len(chunk), "err", err)
			}
		}
	}
	if failed > 0 {
		p.cfg.Metrics.AddDeleteFailures(scope.phase, failed)
	}

	return failed
}

func (p *Pipeline) scheduleVerification(ctx context.Context, scope runScope, locator string) bool {
	task := VerifyTask(locator, scope.correlationID, scope.tag, p.cfg.VerifyDelay)
	err := p.retry(ctx, scope, operationSchedule, func(ctx context.Context) error {
		return p.scheduler.Schedule(ctx, task)
	})
	if err != nil {
		p.cfg.Metrics.AddScheduleFailures(scope.phase, 1)
		scope.logger.Error("lordn verify task not scheduled", "locator", locator, "err", err)

		return false
	}
	scope.logger.Debug("lordn verify task scheduled", "locator", locator, "delay", p.cfg.VerifyDelay)

	return true
}

func (p *Pipeline) retry(ctx context.Context, scope runScope, operation string, fn func(ctx context.Context) error) error {
	return p.cfg.Retry.Do(ctx, func(attempt int, err error, wait time.Duration) {
		p.cfg.Metrics.AddRetries(operation, 1)
		scope.logger.Warn("lordn retrying",
			"operation", operation,
			"attempt", attempt,
			"wait", wait,
			"err", err,
		)
	}, fn)
}
