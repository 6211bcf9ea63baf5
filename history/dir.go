package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/perfgo/perfsuite/model"
	"github.com/rs/zerolog"
)

const historyFile = "history.json"

// Entry is a stored run and the path of its history file.
type Entry struct {
	History  model.History
	FullPath string
}

// DirStore keeps one directory per run under <root>/history.
type DirStore struct {
	logger zerolog.Logger
	root   string
}

// NewDirStore returns a store rooted at root. Nothing is created until the first Save.
func NewDirStore(logger zerolog.Logger, root string) *DirStore {
	return &DirStore{logger: logger, root: root}
}

// Save writes h to <root>/history/<timestamp>-<shortid>/history.json.
func (s *DirStore) Save(_ context.Context, h *model.History) error {
	runName := fmt.Sprintf("%s-%s", h.Timestamp.Format("20060102-150405"), h.ShortID())
	runDir := filepath.Join(s.root, "history", runName)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, historyFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}

	s.logger.Debug().Str("dir", runDir).Str("id", h.ID).Msg("Recorded run")
	return nil
}

// LoadEntries loads every history entry, newest first.
// Entries that fail to parse are skipped with a warning.
func (s *DirStore) LoadEntries() ([]Entry, error) {
	var entries []Entry

	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return nil, nil
	}

	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}

		historyPath := filepath.Join(path, historyFile)
		if _, err := os.Stat(historyPath); err != nil {
			return nil
		}
		h, err := parseHistoryJSON(historyPath)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", historyPath).Msg("Failed to parse history.json")
			return nil
		}
		entries = append(entries, Entry{History: h, FullPath: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s directory: %w", s.root, err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].History.Timestamp.After(entries[j].History.Timestamp)
	})
	return entries, nil
}

func (s *DirStore) List(_ context.Context, limit int) ([]*model.History, error) {
	entries, err := s.LoadEntries()
	if err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	out := make([]*model.History, 0, len(entries))
	for i := range entries {
		out = append(out, &entries[i].History)
	}
	return out, nil
}

func (s *DirStore) Latest(ctx context.Context) (*model.History, error) {
	entries, err := s.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoHistory
	}
	return entries[0], nil
}

func (s *DirStore) Close() error { return nil }

// parseHistoryJSON parses a history.json file.
func parseHistoryJSON(historyPath string) (model.History, error) {
	data, err := os.ReadFile(historyPath)
	if err != nil {
		return model.History{}, err
	}

	var history model.History
	if err := json.Unmarshal(data, &history); err != nil {
		return model.History{}, err
	}

	return history, nil
}
