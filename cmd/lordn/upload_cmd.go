package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/velmie/lordn"
	"github.com/velmie/lordn/metrics"
)

const (
	defaultHTTPTimeout     = time.Minute
	defaultResponseLimit   = "64KiB"
	metricsShutdownTimeout = 5 * time.Second
)

var errMarksDBURLRequired = errors.New("marksdb-url is required")

func newUploadCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Drain the queue of each TLD into one report and upload it to MarksDB",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runUpload(cmd.Context(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.String("marksdb-url", "", "MarksDB base URL, e.g. https://ry.marksdb.org")
	flags.StringSlice("tld", nil, "TLD to upload (repeatable)")
	flags.String("phase", string(lordn.PhaseClaims), "report phase: claims or sunrise")
	flags.String("password", "", "MarksDB LORDN password")
	flags.String("password-file", "", "file holding the MarksDB LORDN password")
	flags.Duration("http-timeout", defaultHTTPTimeout, "timeout of one upload request")
	flags.String("response-limit", defaultResponseLimit, "maximum MarksDB response body read and logged")
	flags.Int("retry-attempts", 0, "attempts per queue or scheduler call (0 uses default)")
	flags.Int("batch-size", lordn.MaxBatchSize, "records leased and deleted per call")
	flags.Duration("verify-delay", lordn.DefaultVerifyDelay, "delay of the verify task")
	flags.Int("concurrency", 1, "TLDs uploaded in parallel")
	flags.Duration("every", 0, "repeat the upload at this interval until interrupted (0 runs once)")
	flags.String("metrics-listen", "", "Prometheus listen address, empty disables")

	return cmd
}

func (a *app) runUpload(ctx context.Context, out io.Writer) error {
	phase, err := a.phase()
	if err != nil {
		return err
	}
	tags, err := a.tags()
	if err != nil {
		return err
	}
	endpoint := a.v.GetString("marksdb-url")
	if endpoint == "" {
		return errMarksDBURLRequired
	}
	passwords, err := a.passwords()
	if err != nil {
		return err
	}
	responseLimit, err := humanize.ParseBytes(a.v.GetString("response-limit"))
	if err != nil {
		return fmt.Errorf("parse --response-limit: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewRecorder(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if addr := a.v.GetString("metrics-listen"); addr != "" {
		stop, err := a.serveMetrics(addr, reg)
		if err != nil {
			return err
		}
		defer stop()
	}

	client := &http.Client{
		Timeout:   a.v.GetDuration("http-timeout"),
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	uploader, err := lordn.NewUploader(endpoint,
		lordn.WithHTTPClient(client),
		lordn.WithRequestInitializer(lordn.BasicAuth{Passwords: passwords}),
		lordn.WithUploaderLogger(a.logger),
		lordn.WithResponseLimit(int64(responseLimit)),
	)
	if err != nil {
		return err
	}

	b, err := a.open(ctx, a.storeSettings(), a.logger)
	if err != nil {
		return err
	}
	defer b.Close()

	pipeline := lordn.NewPipeline(b.queue, uploader, b.tasks,
		lordn.WithBatchSize(a.v.GetInt("batch-size")),
		lordn.WithVerifyDelay(a.v.GetDuration("verify-delay")),
		lordn.WithRetryPolicy(lordn.RetryPolicy{MaxAttempts: a.v.GetInt("retry-attempts")}),
		lordn.WithLogger(a.logger),
		lordn.WithMetrics(recorder),
	)
	concurrency := a.v.GetInt("concurrency")

	runOnce := func() error {
		results, err := pipeline.RunAll(ctx, tags, phase, concurrency)
		writeResults(out, results)

		return err
	}

	every := a.v.GetDuration("every")
	if every <= 0 {
		return runOnce()
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if err := runOnce(); err != nil {
			a.logger.Error("lordn upload round failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *app) serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("lordn metrics server failed", "err", err)
		}
	}()
	a.logger.Info("lordn metrics listening", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func writeResults(out io.Writer, results []lordn.Result) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TLD\tPHASE\tSTATE\tLEASED\tDISTINCT\tSCHEDULED\tLOCATION\tCORRELATION ID")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%t\t%s\t%s\n",
			r.Tag, r.Phase, r.State, r.Leased, r.Distinct, r.Scheduled, r.Locator, r.CorrelationID)
	}
	_ = tw.Flush()
}
