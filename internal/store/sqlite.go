package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/truthcast/internal/model"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// timeNow returns the current time (can be mocked in tests)
var timeNow = time.Now

// SQLite is a Store backed by a single SQLite database file
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens the database at path and ensures the schema exists
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		// Avoid "database is locked" errors under concurrent verdict writes
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	// PRAGMAs are per connection, and SQLite serializes writers anyway
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the tables if they don't exist
func (s *SQLite) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS parent_works (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		progress_pct INTEGER NOT NULL DEFAULT 0,
		stats TEXT NOT NULL DEFAULT '{}',
		payload TEXT NOT NULL DEFAULT '{}',
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_parent_works_owner ON parent_works(owner_id);

	CREATE TABLE IF NOT EXISTS verdicts (
		id TEXT PRIMARY KEY,
		parent_work_id TEXT NOT NULL REFERENCES parent_works(id) ON DELETE CASCADE,
		claim_id TEXT NOT NULL,
		claim_hash TEXT NOT NULL,
		claim_text TEXT NOT NULL,
		claim_context TEXT NOT NULL DEFAULT '',
		origin_offset_ms INTEGER NOT NULL DEFAULT 0,
		label TEXT NOT NULL,
		confidence INTEGER NOT NULL,
		explanation TEXT NOT NULL DEFAULT '',
		perspectives TEXT NOT NULL DEFAULT '[]',
		sources TEXT NOT NULL DEFAULT '[]',
		is_flagged INTEGER NOT NULL DEFAULT 0,
		processing_time_ms INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		UNIQUE(parent_work_id, claim_hash)
	);
	CREATE INDEX IF NOT EXISTS idx_verdicts_work ON verdicts(parent_work_id, origin_offset_ms);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (s *SQLite) CreateParentWork(ctx context.Context, w *model.ParentWork) error {
	if err := w.Validate(); err != nil {
		return err
	}

	stats, err := encodeJSON(w.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	payload, err := encodePayload(w)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO parent_works (id, owner_id, kind, status, progress_pct, stats, payload, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.OwnerID, string(w.Kind), string(w.Status), w.ProgressPct,
		stats, payload, w.Error, formatTime(w.CreatedAt), formatTime(w.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("parent work %s: %w", w.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("inserting parent work: %w", err)
	}
	return nil
}

func (s *SQLite) LoadParentWork(ctx context.Context, id string) (*model.ParentWork, error) {
	var (
		w                model.ParentWork
		kind, status     string
		stats, payload   string
		created, updated string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, kind, status, progress_pct, stats, payload, error, created_at, updated_at
		FROM parent_works WHERE id = ?`, id,
	).Scan(&w.ID, &w.OwnerID, &kind, &status, &w.ProgressPct, &stats, &payload, &w.Error, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("parent work %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying parent work: %w", err)
	}

	w.Kind = model.WorkKind(kind)
	w.Status = model.Status(status)
	if err := json.Unmarshal([]byte(stats), &w.Stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	if err := decodePayload(payload, &w); err != nil {
		return nil, err
	}
	if w.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if w.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *SQLite) SaveParentWork(ctx context.Context, w *model.ParentWork) error {
	if err := w.Validate(); err != nil {
		return err
	}

	stats, err := encodeJSON(w.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	payload, err := encodePayload(w)
	if err != nil {
		return err
	}

	return s.update(ctx, w.ID, `
		UPDATE parent_works
		SET status = ?, progress_pct = ?, stats = ?, payload = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		string(w.Status), w.ProgressPct, stats, payload, w.Error, formatTime(timeNow()), w.ID,
	)
}

func (s *SQLite) SaveParentWorkStatus(ctx context.Context, id string, status model.Status, progressPct int, errMsg string) error {
	return s.update(ctx, id, `
		UPDATE parent_works SET status = ?, progress_pct = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		string(status), model.Clamp(progressPct, 0, 100), errMsg, formatTime(timeNow()), id,
	)
}

func (s *SQLite) SaveParentWorkStats(ctx context.Context, id string, stats model.Stats) error {
	data, err := encodeJSON(stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	return s.update(ctx, id, `
		UPDATE parent_works SET stats = ?, updated_at = ? WHERE id = ?`,
		data, formatTime(timeNow()), id,
	)
}

// update runs a single-row UPDATE and maps zero affected rows to ErrNotFound
func (s *SQLite) update(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating parent work: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating parent work: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("parent work %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLite) SaveVerdict(ctx context.Context, v model.Verdict) error {
	perspectives, err := encodeJSON(v.Perspectives)
	if err != nil {
		return fmt.Errorf("encode perspectives: %w", err)
	}
	sources, err := encodeJSON(v.Sources)
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}
	created := v.CreatedAt
	if created.IsZero() {
		created = timeNow()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verdicts (
			id, parent_work_id, claim_id, claim_hash, claim_text, claim_context, origin_offset_ms,
			label, confidence, explanation, perspectives, sources, is_flagged, processing_time_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(parent_work_id, claim_hash) DO UPDATE SET
			claim_text = excluded.claim_text,
			claim_context = excluded.claim_context,
			origin_offset_ms = excluded.origin_offset_ms,
			label = excluded.label,
			confidence = excluded.confidence,
			explanation = excluded.explanation,
			perspectives = excluded.perspectives,
			sources = excluded.sources,
			is_flagged = excluded.is_flagged,
			processing_time_ms = excluded.processing_time_ms`,
		v.ID, v.ParentWorkID, v.ClaimID, v.ClaimHash, v.ClaimText, v.ClaimContext, v.OriginOffsetMs,
		string(v.Label), v.Confidence, v.Explanation, perspectives, sources, v.IsFlagged,
		v.ProcessingTimeMs, formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("upserting verdict: %w", err)
	}
	return nil
}

func (s *SQLite) ListVerdicts(ctx context.Context, parentWorkID string) ([]model.Verdict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_work_id, claim_id, claim_hash, claim_text, claim_context, origin_offset_ms,
			label, confidence, explanation, perspectives, sources, is_flagged, processing_time_ms, created_at
		FROM verdicts WHERE parent_work_id = ?
		ORDER BY origin_offset_ms, created_at`, parentWorkID)
	if err != nil {
		return nil, fmt.Errorf("querying verdicts: %w", err)
	}
	defer rows.Close()

	verdicts := []model.Verdict{}
	for rows.Next() {
		var (
			v                     model.Verdict
			label                 string
			perspectives, sources string
			created               string
		)
		if err := rows.Scan(&v.ID, &v.ParentWorkID, &v.ClaimID, &v.ClaimHash, &v.ClaimText, &v.ClaimContext,
			&v.OriginOffsetMs, &label, &v.Confidence, &v.Explanation, &perspectives, &sources,
			&v.IsFlagged, &v.ProcessingTimeMs, &created); err != nil {
			return nil, fmt.Errorf("scanning verdict: %w", err)
		}

		v.Label = model.Label(label)
		if err := json.Unmarshal([]byte(perspectives), &v.Perspectives); err != nil {
			return nil, fmt.Errorf("decode perspectives: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &v.Sources); err != nil {
			return nil, fmt.Errorf("decode sources: %w", err)
		}
		if v.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		verdicts = append(verdicts, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating verdicts: %w", err)
	}
	return verdicts, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
