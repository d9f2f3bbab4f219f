// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run is one row of the ledger.
type Run struct {
	ID           int64
	Rule         string
	Input        string
	Output       string
	Policy       string // truncate, append, or check
	Lines        int
	Records      int
	Unmatched    int
	Bytes        int64
	Digest       string
	StartedAt    time.Time
	FinishedAt   time.Time
	ErrorCode    string // empty when the run succeeded
	ErrorMessage string
}

// Failed reports whether the run ended with an error.
func (r *Run) Failed() bool {
	return r.ErrorCode != ""
}

const runColumns = `id, rule, input_path, output_path, policy, lines, records, unmatched, bytes,
		digest, started_at, finished_at, error_code, error_message`

// InsertRun inserts a Run and returns its assigned ID.
func (s *SQLiteStore) InsertRun(ctx context.Context, run *Run) (int64, error) {
	const query = `
		INSERT INTO runs (rule, input_path, output_path, policy, lines, records, unmatched, bytes,
		                  digest, started_at, finished_at, error_code, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		run.Rule,
		run.Input,
		run.Output,
		run.Policy,
		run.Lines,
		run.Records,
		run.Unmatched,
		run.Bytes,
		nullString(run.Digest),
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		nullString(run.ErrorCode),
		nullString(run.ErrorMessage),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	run.ID = id
	return id, nil
}

// GetRun retrieves a Run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. A limit less than
// one returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// LastRunFor returns the most recent successful run that wrote to the
// output path. It returns nil, nil if there is none.
func (s *SQLiteStore) LastRunFor(ctx context.Context, output string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs
		WHERE output_path = ? AND error_code IS NULL AND policy != 'check'
		ORDER BY id DESC LIMIT 1`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, output))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("last run: %w", err)
	}
	return run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var digest, errorCode, errorMessage sql.NullString
	var startedAt, finishedAt string
	if err := row.Scan(
		&run.ID,
		&run.Rule,
		&run.Input,
		&run.Output,
		&run.Policy,
		&run.Lines,
		&run.Records,
		&run.Unmatched,
		&run.Bytes,
		&digest,
		&startedAt,
		&finishedAt,
		&errorCode,
		&errorMessage,
	); err != nil {
		return nil, err
	}
	run.Digest = digest.String
	run.ErrorCode = errorCode.String
	run.ErrorMessage = errorMessage.String
	if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		run.StartedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, finishedAt); err == nil {
		run.FinishedAt = t
	}
	return &run, nil
}
