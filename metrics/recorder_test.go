package metrics_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/velmie/lordn"
	"github.com/velmie/lordn/memory"
	"github.com/velmie/lordn/metrics"
)

func TestRecorderCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := metrics.NewRecorder(reg)
	require.NoError(t, err)

	r.AddLeased(lordn.PhaseClaims, 3)
	r.AddReported(lordn.PhaseClaims, 2, 1)
	r.ObserveUpload(lordn.PhaseClaims, 202, 10*time.Millisecond)
	r.ObserveUpload(lordn.PhaseClaims, 0, time.Millisecond)
	r.AddRetries("lease", 2)
	r.AddDeleteFailures(lordn.PhaseSunrise, 0)
	r.ObserveRun(lordn.PhaseClaims, lordn.StateDone, time.Second)

	expected := `
# HELP lordn_uploads_total Upload attempts by HTTP status, 0 when no response was received.
# TYPE lordn_uploads_total counter
lordn_uploads_total{phase="claims",status="0"} 1
lordn_uploads_total{phase="claims",status="202"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "lordn_uploads_total"))

	count, err := testutil.GatherAndCount(reg, "lordn_delete_failures_total")
	require.NoError(t, err)
	require.Zero(t, count, "zero additions must not create series")

	count, err = testutil.GatherAndCount(reg, "lordn_runs_total", "lordn_records_leased_total", "lordn_retries_total")
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestRecorderDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.NewRecorder(reg)
	require.NoError(t, err)

	_, err = metrics.NewRecorder(reg)
	require.Error(t, err)
	require.Panics(t, func() { metrics.MustNewRecorder(reg) })

	r, err := metrics.NewRecorder(nil)
	require.NoError(t, err)
	require.NotNil(t, r)
}

func TestRecorderWithPipeline(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	r := metrics.MustNewRecorder(reg)

	q := memory.NewQueue()
	for _, payload := range []string{"b", "a", "a"} {
		_, err := q.Enqueue(ctx, lordn.QueueClaims, lordn.Entry{Tag: "example", Payload: []byte(payload)})
		require.NoError(t, err)
	}
	uploader := uploaderFunc(func(context.Context, string, string, []byte) (string, error) {
		return "https://marksdb.test/LORDN/example/claims/1", nil
	})
	pipeline := lordn.NewPipeline(q, uploader, memory.NewScheduler(), lordn.WithMetrics(r))

	_, err := pipeline.Run(ctx, "example", lordn.PhaseClaims)
	require.NoError(t, err)

	expected := `
# HELP lordn_records_leased_total Queue records leased.
# TYPE lordn_records_leased_total counter
lordn_records_leased_total{phase="claims"} 3
# HELP lordn_lines_reported_total Distinct lines placed in uploaded reports.
# TYPE lordn_lines_reported_total counter
lordn_lines_reported_total{phase="claims"} 2
# HELP lordn_lines_deduplicated_total Duplicate or blank lines dropped while assembling reports.
# TYPE lordn_lines_deduplicated_total counter
lordn_lines_deduplicated_total{phase="claims"} 1
# HELP lordn_runs_total Pipeline runs by phase and terminal state.
# TYPE lordn_runs_total counter
lordn_runs_total{phase="claims",state="done"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"lordn_records_leased_total", "lordn_lines_reported_total", "lordn_lines_deduplicated_total", "lordn_runs_total"))
}

type uploaderFunc func(ctx context.Context, tag, path string, report []byte) (string, error)

func (fn uploaderFunc) Upload(ctx context.Context, tag, path string, report []byte) (string, error) {
	return fn(ctx, tag, path, report)
}
