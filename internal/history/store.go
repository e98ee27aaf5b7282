// Package history persists a lightweight audit trail of completed
// analyses and spotlight alerts. The KPI pipeline never reads from it;
// disabling the store changes nothing about the dashboard's numbers.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one completed analysis: an upload plus a window choice.
type Run struct {
	ID          string
	Filename    string
	RowCount    int
	SkippedRows int
	WindowStart time.Time
	WindowEnd   time.Time
	HomeCountry string
	SummaryJSON string
	CreatedAt   time.Time
}

// AlertEvent is a spotlight alert drained from the queue by the
// alert worker.
type AlertEvent struct {
	ID         int64
	RunID      string
	Rule       string
	Score      float64
	ReceivedAt time.Time
}

type Store struct {
	db *sql.DB
}

const timeFormat = time.RFC3339Nano

// NewStore opens (creating if needed) the sqlite database at dbPath
// and brings the schema up to date.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordRun inserts one completed analysis.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_runs
			(id, filename, row_count, skipped_rows, window_start, window_end, home_country, summary_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Filename, run.RowCount, run.SkippedRows,
		run.WindowStart.Format(timeFormat), run.WindowEnd.Format(timeFormat),
		run.HomeCountry, run.SummaryJSON, createdAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert analysis run: %w", err)
	}

	slog.InfoContext(ctx, "Analysis run recorded",
		"run_id", run.ID,
		"filename", run.Filename,
		"row_count", run.RowCount,
		"skipped_rows", run.SkippedRows)
	return nil
}

// RecentRuns returns the newest runs, most recent first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, row_count, skipped_rows, window_start, window_end, home_country, summary_json, created_at
		FROM analysis_runs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query analysis runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var winStart, winEnd, createdAt string
		if err := rows.Scan(&r.ID, &r.Filename, &r.RowCount, &r.SkippedRows,
			&winStart, &winEnd, &r.HomeCountry, &r.SummaryJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan analysis run: %w", err)
		}
		if r.WindowStart, err = time.Parse(timeFormat, winStart); err != nil {
			return nil, fmt.Errorf("parse window_start %q: %w", winStart, err)
		}
		if r.WindowEnd, err = time.Parse(timeFormat, winEnd); err != nil {
			return nil, fmt.Errorf("parse window_end %q: %w", winEnd, err)
		}
		if r.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordAlert inserts one spotlight alert event.
func (s *Store) RecordAlert(ctx context.Context, ev AlertEvent) error {
	receivedAt := ev.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_events (run_id, rule, score, received_at)
		VALUES (?, ?, ?, ?)`,
		ev.RunID, ev.Rule, ev.Score, receivedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("insert alert event: %w", err)
	}

	slog.InfoContext(ctx, "Alert event recorded",
		"run_id", ev.RunID, "rule", ev.Rule, "score", ev.Score)
	return nil
}

// RecentAlerts returns the newest alert events, most recent first.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]AlertEvent, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, rule, score, received_at
		FROM alert_events
		ORDER BY received_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query alert events: %w", err)
	}
	defer rows.Close()

	var out []AlertEvent
	for rows.Next() {
		var ev AlertEvent
		var receivedAt string
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.Rule, &ev.Score, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan alert event: %w", err)
		}
		if ev.ReceivedAt, err = time.Parse(timeFormat, receivedAt); err != nil {
			return nil, fmt.Errorf("parse received_at %q: %w", receivedAt, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
