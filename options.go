package lordn

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultFinalizeTimeout  = time.Minute
	defaultHTTPTimeout      = time.Minute
	defaultBoundaryAttempts = 8
	defaultResponseLimit    = 64 << 10
)

// PipelineConfig defines how a Pipeline leases, cleans up and schedules.
type PipelineConfig struct {
	BatchSize       int
	LeasePeriod     time.Duration
	VerifyDelay     time.Duration
	FinalizeTimeout time.Duration
	Retry           RetryPolicy
	Clock           Clock
	Logger          Logger
	Metrics         Metrics
	Correlation     IDGenerator
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.BatchSize <= 0 || c.BatchSize > MaxBatchSize {
		c.BatchSize = MaxBatchSize
	}
	if c.LeasePeriod <= 0 {
		c.LeasePeriod = DefaultLeasePeriod
	}
	if c.VerifyDelay <= 0 {
		c.VerifyDelay = DefaultVerifyDelay
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = defaultFinalizeTimeout
	}
	c.Retry = c.Retry.withDefaults()
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.Correlation == nil {
		c.Correlation = NewUUIDv7Generator()
	}

	return c
}

// PipelineOption configures Pipeline behavior.
type PipelineOption func(*PipelineConfig)

// WithBatchSize sets the number of records leased and deleted per call.
// Values above MaxBatchSize are capped.
func WithBatchSize(size int) PipelineOption {
	return func(c *PipelineConfig) {
		c.BatchSize = size
	}
}

// WithLeasePeriod sets how long leased records stay hidden from other runs.
func WithLeasePeriod(period time.Duration) PipelineOption {
	return func(c *PipelineConfig) {
		c.LeasePeriod = period
	}
}

// WithVerifyDelay sets the delay of the verify task.
func WithVerifyDelay(delay time.Duration) PipelineOption {
	return func(c *PipelineConfig) {
		c.VerifyDelay = delay
	}
}

// WithFinalizeTimeout bounds cleanup and scheduling after an accepted upload.
// Those steps run detached from the caller's cancellation.
func WithFinalizeTimeout(timeout time.Duration) PipelineOption {
	return func(c *PipelineConfig) {
		c.FinalizeTimeout = timeout
	}
}

// WithRetryPolicy sets the retry policy of queue and scheduler calls.
func WithRetryPolicy(policy RetryPolicy) PipelineOption {
	return func(c *PipelineConfig) {
		c.Retry = policy
	}
}

// WithClock sets the pipeline clock.
func WithClock(clock Clock) PipelineOption {
	return func(c *PipelineConfig) {
		c.Clock = clock
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger Logger) PipelineOption {
	return func(c *PipelineConfig) {
		c.Logger = logger
	}
}

// WithMetrics sets the pipeline metrics recorder.
func WithMetrics(metrics Metrics) PipelineOption {
	return func(c *PipelineConfig) {
		c.Metrics = metrics
	}
}

// WithCorrelationGenerator sets the source of per-run correlation ids.
func WithCorrelationGenerator(gen IDGenerator) PipelineOption {
	return func(c *PipelineConfig) {
		c.Correlation = gen
	}
}

// UploaderConfig defines how an HTTPUploader talks to MarksDB.
type UploaderConfig struct {
	HTTPClient       HTTPDoer
	Initializer      RequestInitializer
	Logger           Logger
	Boundary         func() string
	BoundaryAttempts int
	ResponseLimit    int64
}

func (c UploaderConfig) withDefaults() UploaderConfig {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Boundary == nil {
		c.Boundary = randomBoundary
	}
	if c.BoundaryAttempts <= 0 {
		c.BoundaryAttempts = defaultBoundaryAttempts
	}
	if c.ResponseLimit <= 0 {
		c.ResponseLimit = defaultResponseLimit
	}

	return c
}

func randomBoundary() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// UploaderOption configures HTTPUploader behavior.
type UploaderOption func(*UploaderConfig)

// WithHTTPClient sets the client used to send uploads.
func WithHTTPClient(client HTTPDoer) UploaderOption {
	return func(c *UploaderConfig) {
		c.HTTPClient = client
	}
}

// WithRequestInitializer sets the hook that attaches credentials.
func WithRequestInitializer(init RequestInitializer) UploaderOption {
	return func(c *UploaderConfig) {
		c.Initializer = init
	}
}

// WithUploaderLogger sets the uploader logger.
func WithUploaderLogger(logger Logger) UploaderOption {
	return func(c *UploaderConfig) {
		c.Logger = logger
	}
}

// WithBoundaryFunc sets the multipart boundary source.
func WithBoundaryFunc(fn func() string) UploaderOption {
	return func(c *UploaderConfig) {
		c.Boundary = fn
	}
}

// WithBoundaryAttempts sets how many boundaries are tried before ErrBoundaryCollision.
func WithBoundaryAttempts(attempts int) UploaderOption {
	return func(c *UploaderConfig) {
		c.BoundaryAttempts = attempts
	}
}

// WithResponseLimit caps how much of the response body is read and logged.
func WithResponseLimit(limit int64) UploaderOption {
	return func(c *UploaderConfig) {
		c.ResponseLimit = limit
	}
}
