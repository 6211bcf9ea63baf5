package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/perfgo/perfsuite/model"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

type migration struct {
	Version int
	Name    string
	Up      string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "runs",
		Up: `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at INTEGER NOT NULL,
    passed INTEGER NOT NULL,
    duration_ns INTEGER NOT NULL,
    device TEXT,
    data TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`,
	},
}

// SQLiteStore keeps runs in a single SQLite database.
type SQLiteStore struct {
	logger zerolog.Logger
	path   string
	conn   *sql.DB
}

// OpenSQLite opens (and creates) the database at path and applies migrations.
func OpenSQLite(logger zerolog.Logger, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("path is required")
	}

	clean := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(clean), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	conn, err := sql.Open("sqlite", "file:"+filepath.ToSlash(clean)+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// PRAGMAs are per-connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := initDB(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logger.Debug().Str("path", clean).Msg("Opened history database")
	return &SQLiteStore{logger: logger, path: clean, conn: conn}, nil
}

func initDB(conn *sql.DB) error {
	if err := conn.Ping(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if _, err := conn.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("set journal_mode=WAL: %w", err)
	}
	return runMigrations(conn)
}

func runMigrations(conn *sql.DB) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if _, err := tx.Exec(m.Up); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (?)`, m.Version); err != nil {
			return fmt.Errorf("record migration %d (%s): %w", m.Version, m.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Save inserts h, replacing any run with the same ID.
func (s *SQLiteStore) Save(ctx context.Context, h *model.History) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	device := ""
	if h.Target != nil {
		device = h.Target.Device
	}
	passed := 0
	if h.Passed {
		passed = 1
	}

	_, err = s.conn.ExecContext(ctx, `
INSERT OR REPLACE INTO runs (id, started_at, passed, duration_ns, device, data)
VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, h.Timestamp.UnixNano(), passed, int64(h.Duration), device, string(data))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", h.ID, err)
	}

	s.logger.Debug().Str("id", h.ID).Msg("Recorded run")
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*model.History, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.conn.QueryContext(ctx, `SELECT id, data FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []*model.History
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var h model.History
		if err := json.Unmarshal([]byte(data), &h); err != nil {
			s.logger.Warn().Err(err).Str("id", id).Msg("Failed to parse stored run")
			continue
		}
		out = append(out, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Latest(ctx context.Context) (*model.History, error) {
	var data string
	err := s.conn.QueryRowContext(ctx, `SELECT data FROM runs ORDER BY started_at DESC LIMIT 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoHistory
	}
	if err != nil {
		return nil, fmt.Errorf("query latest run: %w", err)
	}
	var h model.History
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return nil, fmt.Errorf("parse latest run: %w", err)
	}
	return &h, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
