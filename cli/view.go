package cli

// This file contains the view command for re-rendering stored runs.

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/perfgo/perfsuite/analysis"
	"github.com/perfgo/perfsuite/history"
	"github.com/perfgo/perfsuite/metrics"
	"github.com/perfgo/perfsuite/model"
	"github.com/perfgo/perfsuite/report"
	"github.com/urfave/cli/v2"
)

func removeFirstDashDash(in []string) []string {
	if len(in) > 0 && in[0] == "--" {
		return in[1:]
	}
	return in
}

func parseViewArgs(in []string) (idArg string, pprofArgs []string) {
	if len(in) == 0 {
		return "0", nil
	}

	// If first arg is "--", use default "0" and rest are pprof args
	if in[0] == "--" {
		return "0", in[1:]
	}

	// A negative index is "-" followed by only digits (e.g. "-1").
	// Anything else starting with "-" is a pprof flag (e.g. "-top", "-http=:8080").
	if len(in[0]) > 1 && in[0][0] == '-' {
		if _, err := strconv.ParseInt(in[0], 10, 64); err != nil {
			return "0", in
		}
	}

	// First arg is the ID/index, rest are pprof args (with optional "--" removed)
	return in[0], removeFirstDashDash(in[1:])
}

func (a *App) view(ctx *cli.Context) error {
	arg, pprofArgs := parseViewArgs(ctx.Args().Slice())

	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	store, err := a.openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	h, err := history.Find(ctx.Context, store, arg)
	if err != nil {
		return err
	}

	if len(pprofArgs) > 0 {
		return a.displayProfile(h, pprofArgs)
	}

	if h.Session == nil {
		return fmt.Errorf("run %s has no recorded session", h.ShortID())
	}

	var previous *model.Session
	prev, err := history.Previous(ctx.Context, store, h)
	if err != nil {
		return err
	}
	if prev != nil {
		previous = prev.Session
	}

	collector := metrics.New(a.logger)
	if h.Metrics != nil {
		collector.Restore(*h.Metrics)
	}

	result := analysis.New(a.logger, cfg.Baselines, collector).AnalyzeResults(h.Session, previous)
	gen := report.New(a.logger,
		report.WithHistory(store),
		report.WithCollector(collector),
		report.WithVersion(a.version),
		report.WithCommand(h.Args),
	)

	fmt.Fprintln(os.Stderr, summaryLine(h))
	return a.writeReport(ctx.Context, gen, result, cfg, "")
}

// displayProfile writes the run's samples as a pprof profile and opens it in 'go tool pprof'.
func (a *App) displayProfile(h *model.History, pprofArgs []string) error {
	if h.Metrics == nil {
		return fmt.Errorf("run %s has no recorded samples", h.ShortID())
	}

	dir, err := os.MkdirTemp("", "perfsuite-"+h.ShortID())
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(dir)

	profilePath := filepath.Join(dir, "metrics.pb.gz")
	p := h.Metrics.Profile(h.Timestamp)
	if err := writeFile(profilePath, p.Write); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	a.logger.Debug().Str("path", profilePath).Msg("Profile written")

	// Build pprof command with any additional args
	args := []string{"tool", "pprof"}
	args = append(args, pprofArgs...)
	args = append(args, profilePath)

	cmd := exec.Command("go", args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Dir = dir

	return cmd.Run()
}
