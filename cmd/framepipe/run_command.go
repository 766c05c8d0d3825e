package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/arloliu/framepipe"
	"github.com/arloliu/framepipe/queue"
	"github.com/arloliu/framepipe/sink"
	"github.com/arloliu/framepipe/source"
	"github.com/arloliu/framepipe/types"
)

var errNoInput = errors.New("--input is required")

type runOptions struct {
	input       string
	pattern     string
	chunkSize   int
	output      string
	outputDir   string
	operation   string
	params      map[string]string
	workers     int
	storeDir    string
	redis       bool
	metricsAddr string
	jsonOutput  bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process an artifact and write the ordered output",
		Long: "Split --input into units (one per file for a directory, fixed-size chunks " +
			"for a file), submit them to the queue, collect the results and write them in order.",
		Example: "  framepipe --embedded run --input frames/ --output-dir out/ --op invert --workers 4",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			defer ctx.close()

			return runSession(runCtx, ctx, opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "Input directory (one unit per file) or file (chunked)")
	f.StringVar(&opts.pattern, "pattern", "*", "Glob selecting unit files in an input directory")
	f.IntVar(&opts.chunkSize, "chunk-size", 64*1024, "Unit size in bytes for a file input")
	f.StringVarP(&opts.output, "output", "o", "", "Write the concatenated output to this file")
	f.StringVar(&opts.outputDir, "output-dir", "", "Write one file per unit to this directory")
	f.StringVar(&opts.operation, "op", "identity", "Operation workers apply to each unit")
	f.StringToStringVar(&opts.params, "param", nil, "Operation parameter (key=value, repeatable)")
	f.IntVar(&opts.workers, "workers", 0, "Run this many workers in-process")
	f.StringVar(&opts.storeDir, "store-dir", "", "Use a directory result store instead of JetStream")
	f.BoolVar(&opts.redis, "redis", false, "Publish progress to Redis (REDIS_ADDR) instead of NATS KV")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	f.BoolVar(&opts.jsonOutput, "json", false, "Print the session report as JSON")

	return cmd
}

func runSession(ctx context.Context, cc *commandContext, opts *runOptions, stdout io.Writer) error {
	cfg, _ := cc.ensureConfig()
	logger := cc.logger

	src, closeSrc, err := openSource(opts)
	if err != nil {
		return err
	}
	defer closeSrc()

	out, err := openOutput(opts)
	if err != nil {
		return err
	}

	js, err := cc.jetStream(ctx)
	if err != nil {
		_ = out.Close()
		return err
	}

	q, err := queue.OpenJetStream(ctx, js, cfg.QueueSettings(), queue.WithLogger(logger))
	if err != nil {
		_ = out.Close()
		return err
	}

	results, writer, err := openResultStore(ctx, js, cfg, opts.storeDir, logger)
	if err != nil {
		_ = out.Close()
		return err
	}

	progressSink, closeSink, err := openSink(ctx, js, cfg, opts.redis)
	if err != nil {
		_ = out.Close()
		return err
	}
	defer closeSink()

	reg := prometheus.NewRegistry()
	m := framepipe.NewPrometheusMetrics(reg, "")
	if opts.metricsAddr != "" {
		srv, err := startMetricsServer(opts.metricsAddr, reg, logger)
		if err != nil {
			_ = out.Close()
			return err
		}
		defer func() { _ = srv.Shutdown() }()
	}

	if opts.workers > 0 {
		f, err := startFleet(ctx, js, cfg, writer, fleetOptions{count: opts.workers, metrics: m, logger: logger})
		if err != nil {
			_ = out.Close()
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = f.stop(stopCtx)
		}()
	}

	hooks := &framepipe.Hooks{
		OnSessionStateChanged: func(_ context.Context, sessionID string, from, to framepipe.SessionState) error {
			logger.Info("session state changed", "session_id", sessionID, "from", from.String(), "to", to.String())
			return nil
		},
	}

	p, err := framepipe.NewPipeline(cfg, q, results,
		framepipe.WithLogger(logger),
		framepipe.WithSink(progressSink),
		framepipe.WithMetrics(m),
		framepipe.WithHooks(hooks),
	)
	if err != nil {
		_ = out.Close()
		return err
	}

	directive := framepipe.Directive{Operation: opts.operation, Params: opts.params}
	report, runErr := p.Process(ctx, src, directive, out)
	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close output: %w", err)
	}
	if report != nil {
		if err := printReport(stdout, report, opts.jsonOutput); err != nil && runErr == nil {
			runErr = err
		}
	}

	return runErr
}

func openSource(opts *runOptions) (framepipe.UnitSource, func(), error) {
	if opts.input == "" {
		return nil, nil, errNoInput
	}

	info, err := os.Stat(opts.input)
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		return source.NewDir(opts.input, opts.pattern), func() {}, nil
	}

	f, err := os.Open(opts.input)
	if err != nil {
		return nil, nil, err
	}

	return source.NewChunked(f, opts.chunkSize), func() { _ = f.Close() }, nil
}

func openOutput(opts *runOptions) (outputWriter, error) {
	switch {
	case opts.output != "" && opts.outputDir != "":
		return nil, fmt.Errorf("%w: --output and --output-dir are exclusive", framepipe.ErrInvalidConfig)
	case opts.outputDir != "":
		return newDirWriter(opts.outputDir, filepath.Ext(opts.pattern))
	case opts.output != "":
		return newFileWriter(opts.output)
	default:
		return nil, fmt.Errorf("%w: one of --output or --output-dir is required", framepipe.ErrInvalidConfig)
	}
}

func openSink(ctx context.Context, js jetstream.JetStream, cfg framepipe.Config, useRedis bool) (framepipe.ProgressSink, func(), error) {
	if useRedis {
		ropts := sink.RedisOptionsFromEnv()
		ropts.TTL = cfg.Progress.TTL
		s, client := sink.DialRedis(ropts)

		return s, func() { _ = client.Close() }, nil
	}

	s, err := sink.OpenKV(ctx, js, cfg.ProgressSettings())
	if err != nil {
		return nil, nil, err
	}

	return s, func() {}, nil
}

// reportView is the printed form of a session report.
type reportView struct {
	SessionID  string                       `json:"session_id"`
	State      string                       `json:"state"`
	Total      int                          `json:"total"`
	Written    int                          `json:"written"`
	Failed     []int                        `json:"failed,omitempty"`
	TimedOut   []int                        `json:"timed_out,omitempty"`
	Missing    []int                        `json:"missing,omitempty"`
	Degraded   int                          `json:"degraded"`
	Duplicates int                          `json:"duplicates"`
	Elapsed    string                       `json:"elapsed"`
	Throughput float64                      `json:"throughput"`
	Workers    map[string]types.WorkerStats `json:"workers,omitempty"`
}

func newReportView(r *framepipe.Report) reportView {
	return reportView{
		SessionID:  r.SessionID,
		State:      r.State.String(),
		Total:      r.Total,
		Written:    r.Written,
		Failed:     r.Failed,
		TimedOut:   r.TimedOut,
		Missing:    r.Missing,
		Degraded:   r.Degraded,
		Duplicates: r.Duplicates,
		Elapsed:    r.Summary.Progress.Elapsed.Round(time.Millisecond).String(),
		Throughput: r.Summary.Progress.Throughput,
		Workers:    r.Summary.Workers,
	}
}

func printReport(w io.Writer, r *framepipe.Report, asJSON bool) error {
	view := newReportView(r)
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(view)
	}

	fmt.Fprintf(w, "session:    %s\n", view.SessionID)
	fmt.Fprintf(w, "state:      %s\n", view.State)
	fmt.Fprintf(w, "units:      %d written / %d total\n", view.Written, view.Total)
	fmt.Fprintf(w, "failed:     %d %v\n", len(view.Failed), view.Failed)
	fmt.Fprintf(w, "timed out:  %d\n", len(view.TimedOut))
	fmt.Fprintf(w, "elapsed:    %s (%.1f units/s)\n", view.Elapsed, view.Throughput)

	ids := make([]string, 0, len(view.Workers))
	for id := range view.Workers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		ws := view.Workers[id]
		fmt.Fprintf(w, "worker %-12s %5d units  avg %.1fms  mem %.1fMB\n", id, ws.Units, ws.AvgMS, ws.AvgMemoryMB)
	}

	return nil
}
