// Package sqlite implements ports.RunJournal using SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aretw0/arepl/pkg/domain"
	"github.com/google/uuid"
)

// Journal persists completed runs in SQLite.
type Journal struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path.
func New(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL lets `arepl history` read while a session writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Journal{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			document    TEXT NOT NULL,
			seq         INTEGER NOT NULL DEFAULT 0,
			started_at  INTEGER NOT NULL,
			elapsed_ns  INTEGER NOT NULL DEFAULT 0,
			error       TEXT NOT NULL DEFAULT '',
			variables   INTEGER NOT NULL DEFAULT 0,
			interrupted INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_runs_document_started
			ON runs(document, started_at);
	`)
	return err
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record inserts run, assigning an ID when it has none.
func (j *Journal) Record(ctx context.Context, run domain.RunRecord) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, document, seq, started_at, elapsed_ns, error, variables, interrupted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Document), int64(run.Seq), run.StartedAt.UnixNano(),
		int64(run.Elapsed), run.Error, run.Variables, run.Interrupted,
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// List returns the runs of document, newest first.
func (j *Journal) List(ctx context.Context, document domain.DocumentID, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, document, seq, started_at, elapsed_ns, error, variables, interrupted
		 FROM runs WHERE document = ? ORDER BY started_at DESC, seq DESC LIMIT ?`,
		string(document), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		var (
			run       domain.RunRecord
			doc       string
			seq       int64
			startedAt int64
			elapsed   int64
		)
		if err := rows.Scan(&run.ID, &doc, &seq, &startedAt, &elapsed, &run.Error, &run.Variables, &run.Interrupted); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.Document = domain.DocumentID(doc)
		run.Seq = uint64(seq)
		run.StartedAt = time.Unix(0, startedAt).UTC()
		run.Elapsed = time.Duration(elapsed)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
