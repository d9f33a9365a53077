// Package audit keeps a SQLite journal of completed turns.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"yinsen/internal/domain"
)

var _ domain.TurnRecorder = (*Store)(nil)

// Store implements domain.TurnRecorder on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the journal at dbPath and runs the schema
// migration. ":memory:" is accepted for tests.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// One writer at a time; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS turns (
			id             TEXT PRIMARY KEY,
			created_at     TEXT NOT NULL,
			source         TEXT NOT NULL,
			input          TEXT NOT NULL,
			agent_type     TEXT NOT NULL,
			agent_name     TEXT NOT NULL,
			branch         TEXT NOT NULL DEFAULT '',
			tool_error     INTEGER NOT NULL DEFAULT 0,
			final_response TEXT NOT NULL DEFAULT '',
			summary        TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS turns_created_at ON turns (created_at);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one turn. A zero CreatedAt is stamped with the current time.
func (s *Store) Record(ctx context.Context, rec domain.TurnRecord) error {
	if rec.ID == "" {
		return domain.NewDomainError("audit.Record", domain.ErrInvalidInput, "empty turn id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (id, created_at, source, input, agent_type, agent_name, branch, tool_error, final_response, summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.Source, rec.Input,
		rec.AgentType, rec.AgentName, string(rec.Branch), boolInt(rec.ToolError),
		rec.FinalResponse, rec.Summary,
	)
	if err != nil {
		return domain.WrapOp("audit.Record", err)
	}
	return nil
}

// Recent returns up to n turns, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]domain.TurnRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, source, input, agent_type, agent_name, branch, tool_error, final_response, summary
		 FROM turns ORDER BY created_at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, domain.WrapOp("audit.Recent", err)
	}
	defer rows.Close()

	var out []domain.TurnRecord
	for rows.Next() {
		var (
			rec       domain.TurnRecord
			created   string
			branch    string
			toolError int
		)
		if err := rows.Scan(&rec.ID, &created, &rec.Source, &rec.Input, &rec.AgentType, &rec.AgentName,
			&branch, &toolError, &rec.FinalResponse, &rec.Summary); err != nil {
			return nil, domain.WrapOp("audit.Recent", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		rec.Branch = domain.Branch(branch)
		rec.ToolError = toolError != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes turns older than maxAge and returns how many went.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, "DELETE FROM turns WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, domain.WrapOp("audit.Prune", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
