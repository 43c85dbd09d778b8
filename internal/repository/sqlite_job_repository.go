package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/anime-shed/image-editor-go/pkg/models"
)

// DefaultListLimit caps ListJobs when no positive limit is given
const DefaultListLimit = 50

// SQLiteJobRepository stores job history in SQLite.
// All methods are safe for concurrent use.
type SQLiteJobRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

// OpenSQLite opens or creates the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(path string) (*SQLiteJobRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to :memory: is its own database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	r := &SQLiteJobRepository{db: db}
	if err := r.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return r, nil
}

func (r *SQLiteJobRepository) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		params TEXT NOT NULL,
		total INTEGER NOT NULL,
		completed INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		canceled INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS job_items (
		job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		item_id TEXT NOT NULL,
		status TEXT NOT NULL,
		result_ref TEXT,
		error TEXT,
		PRIMARY KEY (job_id, item_id)
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_finished ON jobs(finished_at DESC);
	`

	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (r *SQLiteJobRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Close()
}

// SaveJob stores a finished job and its outcomes in one transaction
func (r *SQLiteJobRepository) SaveJob(ctx context.Context, rec models.JobRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	params, err := json.Marshal(rec.Operation.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_items WHERE job_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("clear outcomes: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO jobs (
			id, operation, params, total, completed, failed, canceled, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		string(rec.Operation.Kind),
		string(params),
		rec.Total,
		rec.Completed,
		rec.Failed,
		boolToInt(rec.Canceled),
		formatTime(rec.StartedAt),
		formatTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO job_items (job_id, position, item_id, status, result_ref, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, o := range rec.Outcomes {
		if _, err := stmt.ExecContext(ctx, rec.ID, i, o.ItemID, string(o.Status), o.ResultRef, o.Error); err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.ItemID, err)
		}
	}

	return tx.Commit()
}

// GetJob retrieves a job with its outcomes in item order
func (r *SQLiteJobRepository) GetJob(ctx context.Context, id string) (*models.JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, selectJobs+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	recs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	rec := recs[0]

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT item_id, status, COALESCE(result_ref, ''), COALESCE(error, '')
		FROM job_items
		WHERE job_id = ?
		ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	rec.Outcomes = []models.ItemOutcome{}
	for itemRows.Next() {
		var o models.ItemOutcome
		var status string
		if err := itemRows.Scan(&o.ItemID, &status, &o.ResultRef, &o.Error); err != nil {
			return nil, err
		}
		o.Status = models.ItemStatus(status)
		rec.Outcomes = append(rec.Outcomes, o)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	return &rec, nil
}

// ListJobs returns up to limit jobs, most recently finished first
func (r *SQLiteJobRepository) ListJobs(ctx context.Context, limit int) ([]models.JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, selectJobs+` ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

const selectJobs = `
	SELECT id, operation, params, total, completed, failed, canceled, started_at, finished_at
	FROM jobs`

// scanJobs reads job rows and closes rows
func scanJobs(rows *sql.Rows) ([]models.JobRecord, error) {
	defer rows.Close()

	recs := []models.JobRecord{}
	for rows.Next() {
		var rec models.JobRecord
		var kind, params, startedAt, finishedAt string
		var canceled int
		if err := rows.Scan(
			&rec.ID,
			&kind,
			&params,
			&rec.Total,
			&rec.Completed,
			&rec.Failed,
			&canceled,
			&startedAt,
			&finishedAt,
		); err != nil {
			return nil, err
		}

		rec.Operation.Kind = models.OperationKind(kind)
		if err := json.Unmarshal([]byte(params), &rec.Operation.Params); err != nil {
			return nil, fmt.Errorf("decode params of %s: %w", rec.ID, err)
		}
		if rec.Operation.Params == nil {
			rec.Operation.Params = map[string]any{}
		}
		rec.Canceled = canceled != 0

		var err error
		if rec.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if rec.FinishedAt, err = parseTime(finishedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// timeLayout is fixed width so that text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// IsNotFound reports whether err means the job does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound)
}
