package cli

// This file contains the run command: it executes the suites on a simulated
// device, analyses the session against the previous run and renders the report.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/perfgo/perfsuite/analysis"
	"github.com/perfgo/perfsuite/config"
	"github.com/perfgo/perfsuite/history"
	"github.com/perfgo/perfsuite/metrics"
	"github.com/perfgo/perfsuite/model"
	"github.com/perfgo/perfsuite/report"
	"github.com/perfgo/perfsuite/runner"
	"github.com/perfgo/perfsuite/simulator"
	"github.com/perfgo/perfsuite/suites"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

// applyRunFlags overrides cfg with every run flag set on the command line.
func applyRunFlags(ctx *cli.Context, cfg *config.Config) {
	if ctx.IsSet("timeout") {
		cfg.Runner.Timeout = ctx.Duration("timeout")
	}
	if ctx.IsSet("retries") {
		cfg.Runner.Retries = ctx.Int("retries")
	}
	if ctx.IsSet("retry-delay") {
		cfg.Runner.RetryDelay = ctx.Duration("retry-delay")
	}
	if ctx.IsSet("concurrent") {
		cfg.Runner.Concurrent = ctx.Bool("concurrent")
	}
	if ctx.IsSet("parallel-limit") {
		cfg.Runner.ParallelLimit = ctx.Int("parallel-limit")
	}
	if ctx.IsSet("continue-on-error") {
		cfg.Runner.ContinueOnError = ctx.Bool("continue-on-error")
	}
	if ctx.IsSet("device") {
		cfg.Simulator.Device = ctx.String("device")
	}
	if ctx.IsSet("template") {
		cfg.Report.Template = ctx.String("template")
	}
	if ctx.IsSet("format") {
		cfg.Report.Format = ctx.String("format")
	}
}

func (a *App) run(ctx *cli.Context) error {
	startTime := time.Now()

	suiteName := ctx.String("suite")
	testName := ctx.String("test")
	if testName != "" && suiteName == "" {
		return fmt.Errorf("--test requires --suite")
	}

	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	applyRunFlags(ctx, &cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	metricsFormat := ctx.String("metrics-export")
	switch metricsFormat {
	case "", metrics.FormatJSON, metrics.FormatCSV, metrics.FormatPprof:
	default:
		return &metrics.UnsupportedFormatError{Format: metricsFormat}
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}
	sim, err := simulator.New(a.logger, simulator.NewEnvironment(simulator.DefaultHost()), catalog)
	if err != nil {
		return err
	}
	defer sim.Destroy()
	if err := sim.StartSimulation(cfg.Simulator.Device); err != nil {
		return err
	}
	defer sim.StopSimulation()

	collector := metrics.New(a.logger)
	r := runner.New(a.logger,
		runner.WithConfig(cfg.Runner),
		runner.WithSimulator(sim),
		runner.WithCollector(collector),
	)
	if err := suites.New(cfg.Baselines).Register(r); err != nil {
		return err
	}

	store, err := a.openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var previous *model.Session
	if prev, err := store.Latest(ctx.Context); err == nil {
		previous = prev.Session
		a.logger.Debug().Str("id", prev.ShortID()).Msg("Comparing against previous run")
	} else if !errors.Is(err, history.ErrNoHistory) {
		a.logger.Warn().Err(err).Msg("Failed to load previous run")
	}

	stop := a.abortOnInterrupt(r)
	session, runErr := a.execute(ctx.Context, r, suiteName, testName)
	stop()
	if session == nil {
		return runErr
	}
	if runErr != nil {
		a.logger.Warn().Err(runErr).Msg("Test run aborted")
	}

	engine := analysis.New(a.logger, cfg.Baselines, collector)
	result := engine.AnalyzeResults(session, previous)

	gen := report.New(a.logger,
		report.WithHistory(store),
		report.WithCollector(collector),
		report.WithVersion(a.version),
		report.WithCommand(os.Args),
	)
	if err := a.writeReport(ctx.Context, gen, result, cfg, ctx.String("output")); err != nil {
		return err
	}

	if path := ctx.String("advanced"); path != "" {
		if err := writeJSONFile(path, engine.PerformAdvancedAnalysis(session, previous)); err != nil {
			return err
		}
		a.logger.Info().Str("path", path).Msg("Advanced analysis written")
	}

	if path := ctx.String("metrics-file"); path != "" {
		if err := prometheus.WriteToTextfile(path, r.Registry()); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
		a.logger.Info().Str("path", path).Msg("Runner metrics written")
	}

	if metricsFormat != "" {
		path := ctx.String("metrics-output")
		if path == "" {
			path = defaultMetricsPath(metricsFormat)
		}
		if err := writeMetrics(collector, path, metricsFormat); err != nil {
			return err
		}
		a.logger.Info().Str("path", path).Str("format", metricsFormat).Msg("Metrics exported")
	}

	if !ctx.Bool("no-history") {
		h := a.newHistory(session, collector, result.OverallPassed, startTime)
		// Record the run (non-fatal if it fails)
		if err := store.Save(ctx.Context, h); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to record history")
		} else {
			a.logger.Debug().Str("id", h.ShortID()).Msg("Recorded run")
		}
	}

	if runErr != nil {
		return runErr
	}
	if !result.OverallPassed {
		return cli.Exit(fmt.Sprintf("%d of %d tests passed", session.PassedTests(), session.TotalTests()), 1)
	}
	return nil
}

func (a *App) execute(ctx context.Context, r *runner.Runner, suiteName, testName string) (*model.Session, error) {
	switch {
	case testName != "":
		a.logger.Info().Str("suite", suiteName).Str("test", testName).Msg("Running test")
		return r.RunSpecificTest(ctx, suiteName, testName)
	case suiteName != "":
		a.logger.Info().Str("suite", suiteName).Msg("Running suite")
		return r.RunSpecificSuite(ctx, suiteName)
	default:
		return r.RunAllTests(ctx)
	}
}

// abortOnInterrupt requests a cooperative abort on SIGINT/SIGTERM until the returned func is called.
func (a *App) abortOnInterrupt(r *runner.Runner) (stop func()) {
	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			a.logger.Warn().Str("signal", sig.String()).Msg("Aborting test run")
			r.AbortTests()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func (a *App) writeReport(ctx context.Context, gen *report.Generator, result *analysis.Analysis, cfg config.Config, output string) error {
	data, err := gen.ExportResults(ctx, result, cfg.Report.Format, cfg.Report.Template)
	if err != nil {
		return err
	}
	if output == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	a.logger.Info().Str("path", output).Str("format", cfg.Report.Format).Msg("Report written")
	return nil
}

func defaultMetricsPath(format string) string {
	if format == metrics.FormatPprof {
		return "metrics.pb.gz"
	}
	return "metrics." + format
}

func writeMetrics(c *metrics.Collector, path, format string) error {
	return writeFile(path, func(w io.Writer) error { return c.WriteMetrics(w, format) })
}

func writeJSONFile(path string, v any) error {
	return writeFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
