package cli

// This file contains the list command for displaying previous runs.

import (
	"fmt"
	"time"

	"github.com/perfgo/perfsuite/model"
	"github.com/urfave/cli/v2"
)

func (a *App) list(ctx *cli.Context) error {
	filterDevice := ctx.String("device")
	limit := ctx.Int("limit")

	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	store, err := a.openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	// Load all runs, newest first
	runs, err := store.List(ctx.Context, 0)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	// Apply device filter if specified
	var filtered []*model.History
	for _, h := range runs {
		if filterDevice == "" || (h.Target != nil && h.Target.Device == filterDevice) {
			filtered = append(filtered, h)
		}
	}

	if len(filtered) == 0 {
		if filterDevice != "" {
			fmt.Printf("No history entries found for device: %s\n", filterDevice)
		} else {
			fmt.Println("No history entries found")
		}
		return nil
	}

	// Apply limit
	displayRuns := filtered
	if limit > 0 && limit < len(displayRuns) {
		displayRuns = displayRuns[:limit]
	}

	fmt.Printf("\n=== History (%d total) ===\n\n", len(filtered))

	for _, h := range displayRuns {
		fmt.Println(summaryLine(h))
		if h.Target != nil {
			if h.Target.Device != "" {
				fmt.Printf("   Device: %s\n", h.Target.Device)
			}
			if h.Target.OS != "" && h.Target.Arch != "" {
				fmt.Printf("   Host: %s/%s (%d CPUs)\n", h.Target.OS, h.Target.Arch, h.Target.CPUs)
			}
		}
		if h.Git != nil && h.Git.Commit != "" {
			fmt.Printf("   Commit: %s", shortCommit(h.Git.Commit))
			if h.Git.Branch != "" {
				fmt.Printf(" (%s)", h.Git.Branch)
			}
			fmt.Println()
		}
		if h.Session != nil {
			for _, c := range h.Session.Categories {
				fmt.Printf("   %s\n", c.Summary)
			}
		}
		fmt.Println()
	}

	fmt.Println("View report: perfsuite view <ID>")

	return nil
}

// summaryLine is the first line printed for a run.
func summaryLine(h *model.History) string {
	status := "✓"
	if !h.Passed {
		status = "✗"
	}
	line := fmt.Sprintf("%s  %s  [%s]  id=%s",
		status,
		h.Timestamp.Format("2006-01-02 15:04:05"),
		h.Duration.Round(time.Millisecond),
		h.ShortID(),
	)
	if h.Session != nil {
		line += fmt.Sprintf("  passed=%d/%d (%.1f%%)  status=%s",
			h.Session.PassedTests(), h.Session.TotalTests(), h.Session.PassRate(), h.Session.Status)
	}
	return line
}

func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}
