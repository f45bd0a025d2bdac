// Package store persists batch records and result rows to SQLite so finished
// work survives a restart.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/eeselapp/chatgpt-batch-query/internal/models"
)

// BatchRecord is one persisted batch.
type BatchRecord struct {
	ID         string
	Total      int
	Status     string
	CreatedAt  time.Time
	FinishedAt time.Time // zero while running
}

// SQLiteStore persists batches and their result rows.
type SQLiteStore struct {
	db       *sql.DB
	logger   *slog.Logger
	isMemory bool
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs
// migrations. ":memory:" gives an ephemeral store for tests.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	var connStr string
	isMemory := dbPath == ":memory:"

	if isMemory {
		connStr = "file::memory:?cache=shared&_timeout=5000&_busy_timeout=5000"
	} else {
		dir := filepath.Dir(dbPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
		}
		connStr = dbPath + "?_journal=WAL&_timeout=5000&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite is single-writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db, logger: logger, isMemory: isMemory}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("SQLite result store initialized", "path", dbPath, "in_memory", isMemory)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		total INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'processing',
		created_at TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS results (
		batch_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		sources TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (batch_id, idx)
	);
	CREATE INDEX IF NOT EXISTS idx_results_batch_id ON results(batch_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateBatch records a newly started batch.
func (s *SQLiteStore) CreateBatch(ctx context.Context, id string, total int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (id, total, status, created_at) VALUES (?, ?, 'processing', ?)`,
		id, total, time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

// SaveResult upserts one result row. idx is the 0-based question index.
func (s *SQLiteStore) SaveResult(ctx context.Context, id string, idx int, r models.ScrapeResult) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO results (batch_id, idx, question, answer, sources)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(batch_id, idx) DO UPDATE SET
		question = excluded.question,
		answer = excluded.answer,
		sources = excluded.sources
	`, id, idx, r.Question, r.Answer, r.Sources)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	s.logger.Debug("result persisted", "batch", id, "idx", idx)
	return nil
}

// FinishBatch marks a batch terminal.
func (s *SQLiteStore) FinishBatch(ctx context.Context, id, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE batches SET status = ?, finished_at = ? WHERE id = ?`,
		status, time.Now().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish batch: %w", err)
	}
	return nil
}

// GetBatch loads one batch record. Returns nil when unknown.
func (s *SQLiteStore) GetBatch(ctx context.Context, id string) (*BatchRecord, error) {
	var rec BatchRecord
	var createdAt, finishedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, total, status, created_at, finished_at FROM batches WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Total, &rec.Status, &createdAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load batch: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if finishedAt != "" {
		rec.FinishedAt, _ = time.Parse(time.RFC3339, finishedAt)
	}
	return &rec, nil
}

// Results returns a batch's rows in question order.
func (s *SQLiteStore) Results(ctx context.Context, id string) ([]models.ScrapeResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question, answer, sources FROM results WHERE batch_id = ? ORDER BY idx`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var out []models.ScrapeResult
	for rows.Next() {
		var r models.ScrapeResult
		if err := rows.Scan(&r.Question, &r.Answer, &r.Sources); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListBatches returns all batches, newest first.
func (s *SQLiteStore) ListBatches(ctx context.Context) ([]*BatchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, total, status, created_at, finished_at FROM batches ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var out []*BatchRecord
	for rows.Next() {
		var rec BatchRecord
		var createdAt, finishedAt string
		if err := rows.Scan(&rec.ID, &rec.Total, &rec.Status, &createdAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if finishedAt != "" {
			rec.FinishedAt, _ = time.Parse(time.RFC3339, finishedAt)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteStore) Close() error {
	if !s.isMemory {
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			s.logger.Warn("failed to checkpoint WAL before close", "error", err)
		}
	}
	return s.db.Close()
}
