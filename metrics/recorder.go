// Package metrics exports lordn pipeline telemetry to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/velmie/lordn"
)

const namespace = "lordn"

// Recorder implements lordn.Metrics with Prometheus collectors.
type Recorder struct {
	runs             *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	leased           *prometheus.CounterVec
	reported         *prometheus.CounterVec
	duplicates       *prometheus.CounterVec
	uploads          *prometheus.CounterVec
	uploadDuration   *prometheus.HistogramVec
	retries          *prometheus.CounterVec
	deleteFailures   *prometheus.CounterVec
	scheduleFailures *prometheus.CounterVec
}

var _ lordn.Metrics = (*Recorder)(nil)

// NewRecorder creates a Recorder and registers its collectors with reg.
// A nil reg leaves the collectors unregistered.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by phase and terminal state.",
		}, []string{"phase", "state"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		leased: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_leased_total",
			Help:      "Queue records leased.",
		}, []string{"phase"}),
		reported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_reported_total",
			Help:      "Distinct lines placed in uploaded reports.",
		}, []string{"phase"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_deduplicated_total",
			Help:      "Duplicate or blank lines dropped while assembling reports.",
		}, []string{"phase"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Upload attempts by HTTP status, 0 when no response was received.",
		}, []string{"phase", "status"}),
		uploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Upload round trip duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retried queue and scheduler calls by operation.",
		}, []string{"operation"}),
		deleteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delete_failures_total",
			Help:      "Records left in the queue after an accepted upload.",
		}, []string{"phase"}),
		scheduleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_failures_total",
			Help:      "Verify tasks that could not be scheduled.",
		}, []string{"phase"}),
	}
	if reg == nil {
		return r, nil
	}
	for _, c := range r.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// MustNewRecorder is like NewRecorder but panics on registration errors.
func MustNewRecorder(reg prometheus.Registerer) *Recorder {
	r, err := NewRecorder(reg)
	if err != nil {
		panic(err)
	}

	return r
}

func (r *Recorder) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		r.runs,
		r.runDuration,
		r.leased,
		r.reported,
		r.duplicates,
		r.uploads,
		r.uploadDuration,
		r.retries,
		r.deleteFailures,
		r.scheduleFailures,
	}
}

// ObserveRun implements lordn.Metrics.
func (r *Recorder) ObserveRun(phase lordn.Phase, state lordn.State, duration time.Duration) {
	r.runs.WithLabelValues(string(phase), state.String()).Inc()
	r.runDuration.WithLabelValues(string(phase)).Observe(duration.Seconds())
}

// AddLeased implements lordn.Metrics.
func (r *Recorder) AddLeased(phase lordn.Phase, count int) {
	if count > 0 {
		r.leased.WithLabelValues(string(phase)).Add(float64(count))
	}
}

// AddReported implements lordn.Metrics.
func (r *Recorder) AddReported(phase lordn.Phase, distinct, duplicates int) {
	if distinct > 0 {
		r.reported.WithLabelValues(string(phase)).Add(float64(distinct))
	}
	if duplicates > 0 {
		r.duplicates.WithLabelValues(string(phase)).Add(float64(duplicates))
	}
}

// ObserveUpload implements lordn.Metrics.
func (r *Recorder) ObserveUpload(phase lordn.Phase, status int, duration time.Duration) {
	r.uploads.WithLabelValues(string(phase), strconv.Itoa(status)).Inc()
	r.uploadDuration.WithLabelValues(string(phase)).Observe(duration.Seconds())
}

// AddRetries implements lordn.Metrics.
func (r *Recorder) AddRetries(operation string, count int) {
	if count > 0 {
		r.retries.WithLabelValues(operation).Add(float64(count))
	}
}

// AddDeleteFailures implements lordn.Metrics.
func (r *Recorder) AddDeleteFailures(phase lordn.Phase, count int) {
	if count > 0 {
		r.deleteFailures.WithLabelValues(string(phase)).Add(float64(count))
	}
}

// AddScheduleFailures implements lordn.Metrics.
func (r *Recorder) AddScheduleFailures(phase lordn.Phase, count int) {
	if count > 0 {
		r.scheduleFailures.WithLabelValues(string(phase)).Add(float64(count))
	}
}
