package cli

// This file contains run recording: it turns a finished session into the
// history entry stored for later comparison.

import (
	"os"
	"runtime"
	"time"

	"github.com/perfgo/perfsuite/metrics"
	"github.com/perfgo/perfsuite/model"
)

func (a *App) newHistory(session *model.Session, collector *metrics.Collector, passed bool, startTime time.Time) *model.History {
	h := &model.History{
		ID:        session.ID,
		Timestamp: startTime,
		Args:      os.Args,
		Passed:    passed,
		Duration:  time.Since(startTime),
		Session:   session,
		Target: &model.Target{
			OS:     runtime.GOOS,
			Arch:   runtime.GOARCH,
			CPUs:   runtime.NumCPU(),
			Device: session.Device,
		},
	}

	if collector != nil {
		dump := collector.Dump()
		h.Metrics = &dump
	}

	// Capture working directory
	if cwd, err := os.Getwd(); err == nil {
		h.WorkDir = cwd
	}

	// Capture git info (non-fatal if it fails)
	if commit, branch, repo, err := a.getGitInfo(); err == nil {
		h.Git = &model.Git{
			Commit: commit,
			Branch: branch,
			Repo:   repo,
		}
	} else {
		a.logger.Debug().Err(err).Msg("No git information")
	}

	return h
}
