package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"finadvisor/internal/domain"
)

// SQLiteJournal implements domain.RunJournal using SQLite.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) the journal database at dbPath and
// runs the schema migration. The parent directory is created if missing.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal db: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL,
			thread_id  TEXT NOT NULL DEFAULT '',
			run_id     TEXT NOT NULL DEFAULT '',
			persona_id TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL DEFAULT '',
			error_code TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			ended_at   TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_request ON runs(request_id)`)
	return err
}

// Close closes the underlying database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// Record appends rec to the journal.
func (j *SQLiteJournal) Record(ctx context.Context, rec domain.RunRecord) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (request_id, thread_id, run_id, persona_id, status, error_code, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.ThreadID, rec.RunID, rec.PersonaID,
		string(rec.Status), string(rec.ErrorCode),
		rec.StartedAt.UTC().Format(time.RFC3339Nano), rec.EndedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrJournalWrite, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT request_id, thread_id, run_id, persona_id, status, error_code, started_at, ended_at
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []domain.RunRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(rows *sql.Rows) (domain.RunRecord, error) {
	var (
		rec                domain.RunRecord
		status, code       string
		startedAt, endedAt string
	)
	if err := rows.Scan(&rec.RequestID, &rec.ThreadID, &rec.RunID, &rec.PersonaID,
		&status, &code, &startedAt, &endedAt); err != nil {
		return rec, fmt.Errorf("scan run: %w", err)
	}
	rec.Status = domain.RunStatus(status)
	rec.ErrorCode = domain.ErrorCode(code)
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	rec.EndedAt, _ = time.Parse(time.RFC3339Nano, endedAt)
	return rec, nil
}

var _ domain.RunJournal = (*SQLiteJournal)(nil)
