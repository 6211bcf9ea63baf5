package history

// This file contains shared history utilities for storing and looking up
// recorded runs.

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/perfgo/perfsuite/model"
	"github.com/rs/zerolog"
)

// RootDir is the name of the per-repository state directory.
const RootDir = ".perfsuite"

// Backends.
const (
	BackendDir    = "dir"
	BackendSQLite = "sqlite"
)

// ErrNoHistory is returned when a store holds no runs.
var ErrNoHistory = errors.New("no history entries found")

// Store persists recorded runs.
type Store interface {
	// Save records a run.
	Save(ctx context.Context, h *model.History) error
	// Latest returns the newest run or ErrNoHistory.
	Latest(ctx context.Context) (*model.History, error)
	// List returns up to limit runs, newest first. A limit <= 0 returns all runs.
	List(ctx context.Context, limit int) ([]*model.History, error)
	Close() error
}

// GetRoot returns the .perfsuite directory at the git repository root,
// or in the working directory when not inside a repository.
func GetRoot() string {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	output, err := cmd.Output()
	if err != nil {
		return RootDir
	}
	return filepath.Join(strings.TrimSpace(string(output)), RootDir)
}

// Open opens the store for backend rooted at root.
func Open(logger zerolog.Logger, backend, root string) (Store, error) {
	switch backend {
	case BackendDir, "":
		return NewDirStore(logger, root), nil
	case BackendSQLite:
		s, err := OpenSQLite(logger, filepath.Join(root, "history.db"))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown history backend: %q", backend)
	}
}

// Find resolves a view argument against the store: "0" is the newest run,
// "-N" the N-th before it, anything else an ID prefix.
func Find(ctx context.Context, store Store, arg string) (*model.History, error) {
	entries, err := store.List(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if len(entries) == 0 {
		return nil, ErrNoHistory
	}

	if parsed, err := strconv.ParseInt(arg, 10, 64); err == nil {
		if parsed > 0 {
			return nil, fmt.Errorf("invalid index: %s (use 0 for last, -1 for second-to-last, -2 for third-to-last, etc.)", arg)
		}
		index := int(-parsed)
		if index >= len(entries) {
			return nil, fmt.Errorf("index %s out of range (only %d history entries)", arg, len(entries))
		}
		return entries[index], nil
	}

	prefix := strings.ToLower(arg)
	for _, h := range entries {
		if strings.HasPrefix(strings.ToLower(h.ID), prefix) {
			return h, nil
		}
	}
	return nil, fmt.Errorf("no history entry found matching ID: %s", arg)
}

// Previous returns the run recorded just before h, or nil when h is the oldest.
func Previous(ctx context.Context, store Store, h *model.History) (*model.History, error) {
	entries, err := store.List(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	for i, e := range entries {
		if e.ID == h.ID && i+1 < len(entries) {
			return entries[i+1], nil
		}
	}
	return nil, nil
}
