// Package history persists finished session summaries in a local SQLite
// database. Transcript text is never stored.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rbright/parla/internal/config"
	"github.com/rbright/parla/internal/pipeline"
	"github.com/rbright/parla/internal/session"
)

// Record is one stored session.
type Record struct {
	ID         string            `json:"id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Duration   time.Duration     `json:"duration"`
	Reason     string            `json:"reason"`
	Unclean    bool              `json:"unclean,omitempty"`
	Error      string            `json:"error,omitempty"`
	Adapters   map[string]string `json:"adapters,omitempty"`
	Stats      pipeline.Snapshot `json:"stats"`
}

// Store wraps the SQLite history database.
type Store struct {
	db     *sql.DB
	retain int
	log    *slog.Logger
}

// DefaultPath places the database under the state directory.
func DefaultPath(stateDir string) string {
	return filepath.Join(stateDir, "history.db")
}

// ResolvePath returns configured when set, else the default under the
// parla state directory.
func ResolvePath(configured string) (string, error) {
	if path := strings.TrimSpace(configured); path != "" {
		return path, nil
	}
	dir, err := config.StateDir()
	if err != nil {
		return "", err
	}
	return DefaultPath(dir), nil
}

// Open creates the database and schema if needed. retain caps stored
// sessions; zero keeps everything.
func Open(ctx context.Context, path string, retain int, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if path == "" {
		return nil, errors.New("history path is empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(2000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, retain: retain, log: log}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    started_at INTEGER NOT NULL,
    finished_at INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    reason TEXT NOT NULL,
    unclean INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    adapters TEXT,
    stats TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init history schema: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores a finished session and applies retention.
func (s *Store) Append(ctx context.Context, summary session.Summary) error {
	adapters, err := json.Marshal(summary.Adapters)
	if err != nil {
		return fmt.Errorf("encode adapters: %w", err)
	}
	stats, err := json.Marshal(summary.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}

	unclean := 0
	if summary.Unclean {
		unclean = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions(id, started_at, finished_at, duration_ms, reason, unclean, error, adapters, stats)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET finished_at=excluded.finished_at, duration_ms=excluded.duration_ms,
		   reason=excluded.reason, unclean=excluded.unclean, error=excluded.error, stats=excluded.stats`,
		summary.ID,
		summary.StartedAt.UnixMilli(),
		summary.FinishedAt.UnixMilli(),
		summary.Duration.Milliseconds(),
		string(summary.Reason),
		unclean,
		summary.ErrorText(),
		string(adapters),
		string(stats),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return s.Prune(ctx)
}

// Recent returns up to limit sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, duration_ms, reason, unclean, COALESCE(error, ''), COALESCE(adapters, ''), stats
		 FROM sessions ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r                             Record
			started, finished, durationMS int64
			unclean                       int
			adapters, stats               string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &durationMS, &r.Reason, &unclean, &r.Error, &adapters, &stats); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		r.FinishedAt = time.UnixMilli(finished)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.Unclean = unclean != 0
		if adapters != "" && adapters != "null" {
			if err := json.Unmarshal([]byte(adapters), &r.Adapters); err != nil {
				return nil, fmt.Errorf("decode adapters for %s: %w", r.ID, err)
			}
		}
		if err := json.Unmarshal([]byte(stats), &r.Stats); err != nil {
			return nil, fmt.Errorf("decode stats for %s: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Prune deletes all but the newest retain sessions.
func (s *Store) Prune(ctx context.Context) error {
	if s.retain <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id NOT IN (
		   SELECT id FROM sessions ORDER BY started_at DESC, id DESC LIMIT ?
		 )`, s.retain)
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	return nil
}

// SessionStarted is a no-op; only finished sessions are recorded.
func (s *Store) SessionStarted(context.Context, session.Info) {}

// SessionFinished records the summary. Failures are logged, never surfaced
// to the session.
func (s *Store) SessionFinished(ctx context.Context, summary session.Summary) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.Append(writeCtx, summary); err != nil {
		s.log.Warn("history write failed", "session_id", summary.ID, "error", err.Error())
	}
}
