package lordn

import "time"

// Metrics captures pipeline telemetry.
type Metrics interface {
	// ObserveRun records the duration and terminal state of a run.
	ObserveRun(phase Phase, state State, duration time.Duration)
	// AddLeased increments the count of leased records.
	AddLeased(phase Phase, count int)
	// AddReported records the distinct and duplicate line counts of an assembled report.
	AddReported(phase Phase, distinct, duplicates int)
	// ObserveUpload records an upload attempt. Status is 0 when no response was received.
	ObserveUpload(phase Phase, status int, duration time.Duration)
	// AddRetries increments the count of retried calls for an operation.
	AddRetries(operation string, count int)
	// AddDeleteFailures increments the count of records left in the queue after upload.
	AddDeleteFailures(phase Phase, count int)
	// AddScheduleFailures increments the count of verify tasks that could not be scheduled.
	AddScheduleFailures(phase Phase, count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveRun implements Metrics.
func (NopMetrics) ObserveRun(Phase, State, time.Duration) {}

// AddLeased implements Metrics.
func (NopMetrics) AddLeased(Phase, int) {}

// AddReported implements Metrics.
func (NopMetrics) AddReported(Phase, int, int) {}

// ObserveUpload implements Metrics.
func (NopMetrics) ObserveUpload(Phase, int, time.Duration) {}

// AddRetries implements Metrics.
func (NopMetrics) AddRetries(string, int) {}

// AddDeleteFailures implements Metrics.
func (NopMetrics) AddDeleteFailures(Phase, int) {}

// AddScheduleFailures implements Metrics.
func (NopMetrics) AddScheduleFailures(Phase, int) {}
