package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const busyTimeoutMS = 5000

// Store keeps run history and the resolved-link cache. Uniqueness sets are
// never persisted here.
type Store struct {
	db *sql.DB
}

// SourceRun is the outcome of one source within one topic run.
type SourceRun struct {
	Topic      string
	Source     string
	RunAt      time.Time
	Fetched    int
	Unique     int
	Duplicates int
	Err        string
}

// SourceStats aggregates the recorded runs of one source.
type SourceStats struct {
	Topic       string
	Source      string
	Runs        int
	Fetched     int
	Unique      int
	Duplicates  int
	Failures    int
	LastRun     time.Time
	LastContent time.Time // zero when no run produced a unique post
}

// DuplicateRatio returns Duplicates / (Unique + Duplicates).
func (s SourceStats) DuplicateRatio() float64 {
	total := s.Unique + s.Duplicates
	if total == 0 {
		return 0
	}
	return float64(s.Duplicates) / float64(total)
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// topics record concurrently; one connection serializes writers
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMS)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordSourceRun appends one source outcome to the run history.
func (s *Store) RecordSourceRun(ctx context.Context, in SourceRun) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if strings.TrimSpace(in.Topic) == "" {
		return errors.New("topic is required")
	}
	if strings.TrimSpace(in.Source) == "" {
		return errors.New("source is required")
	}
	if in.RunAt.IsZero() {
		return errors.New("run_at is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_runs (topic, source, run_at, fetched, uniques, duplicates, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		in.Topic,
		in.Source,
		formatTime(in.RunAt),
		in.Fetched,
		in.Unique,
		in.Duplicates,
		in.Err,
	)
	if err != nil {
		return fmt.Errorf("record source run: %w", err)
	}
	return nil
}

// GetSourceStats returns per-source aggregates for runs since the given time,
// ordered by topic and source.
func (s *Store) GetSourceStats(ctx context.Context, since time.Time) ([]SourceStats, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT topic, source,
			COUNT(*) AS runs,
			SUM(fetched),
			SUM(uniques),
			SUM(duplicates),
			SUM(CASE WHEN error != '' THEN 1 ELSE 0 END) AS failures,
			MAX(run_at) AS last_run,
			COALESCE(MAX(CASE WHEN uniques > 0 THEN run_at END), '') AS last_content
		FROM source_runs
		WHERE run_at >= ?
		GROUP BY topic, source
		ORDER BY topic, source
	`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("get source stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []SourceStats
	for rows.Next() {
		var ss SourceStats
		var lastRun, lastContent string
		if err := rows.Scan(&ss.Topic, &ss.Source, &ss.Runs, &ss.Fetched, &ss.Unique, &ss.Duplicates, &ss.Failures, &lastRun, &lastContent); err != nil {
			return nil, fmt.Errorf("scan source stats: %w", err)
		}
		if ss.LastRun, err = parseTime(lastRun); err != nil {
			return nil, fmt.Errorf("parse last_run: %w", err)
		}
		if ss.LastContent, err = parseTime(lastContent); err != nil {
			return nil, fmt.Errorf("parse last_content: %w", err)
		}
		stats = append(stats, ss)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source stats: %w", err)
	}

	return stats, nil
}

// LookupLink returns the cached final URL of link when it was resolved no
// earlier than now - ttl.
func (s *Store) LookupLink(ctx context.Context, link string, ttl time.Duration, now time.Time) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, errors.New("store is not initialized")
	}

	var final, resolvedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT final, resolved_at FROM link_cache WHERE link = ?", link,
	).Scan(&final, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup link: %w", err)
	}

	ts, err := parseTime(resolvedAt)
	if err != nil {
		return "", false, fmt.Errorf("parse resolved_at: %w", err)
	}
	if ttl > 0 && ts.Before(now.Add(-ttl)) {
		return "", false, nil
	}
	return final, true, nil
}

// SaveLink stores or refreshes the final URL of link.
func (s *Store) SaveLink(ctx context.Context, link, final string, resolvedAt time.Time) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if link == "" || final == "" {
		return errors.New("link and final are required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO link_cache (link, final, resolved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(link) DO UPDATE SET
			final = excluded.final,
			resolved_at = excluded.resolved_at
	`, link, final, formatTime(resolvedAt))
	if err != nil {
		return fmt.Errorf("save link: %w", err)
	}
	return nil
}

// PruneOld deletes run history and cached links older than retainDays.
// Returns the number of rows removed.
func (s *Store) PruneOld(ctx context.Context, retainDays int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if retainDays <= 0 {
		return 0, nil
	}

	cutoff := formatTime(time.Now().AddDate(0, 0, -retainDays))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune transaction: %w", err)
	}

	runs, err := tx.ExecContext(ctx, "DELETE FROM source_runs WHERE run_at < ?", cutoff)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prune source runs: %w", err)
	}

	links, err := tx.ExecContext(ctx, "DELETE FROM link_cache WHERE resolved_at < ?", cutoff)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prune link cache: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}

	n, _ := runs.RowsAffected()
	m, _ := links.RowsAffected()
	return n + m, nil
}

// timeLayout has fixed width so stored values compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
