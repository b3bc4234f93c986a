package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RecordSweep inserts rec with its paths and failures. An empty ID is
// replaced with a new UUID; the assigned ID is returned.
func (s *Store) RecordSweep(rec *SweepRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sweeps
		(id, started_at, finished_at, dry_run, success, message, recovery_suggestion,
		 selected, removed, skipped, failed, escalated, bytes_selected)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.StartedAt.UTC().Format(timeLayout),
		rec.FinishedAt.UTC().Format(timeLayout),
		rec.DryRun,
		rec.Success,
		rec.Message,
		rec.RecoverySuggestion,
		rec.Selected,
		rec.Removed,
		rec.Skipped,
		rec.Failed,
		rec.Escalated,
		rec.BytesSelected,
	)
	if err != nil {
		return "", wrapQueryErr("failed to insert sweep", err)
	}

	for _, path := range rec.Paths {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO sweep_paths (sweep_id, path) VALUES (?, ?)`, rec.ID, path); err != nil {
			return "", fmt.Errorf("failed to insert sweep path %s: %w", path, err)
		}
	}

	for _, f := range rec.Failures {
		if _, err := tx.Exec(`INSERT INTO sweep_failures (sweep_id, path, reason, detail) VALUES (?, ?, ?, ?)`,
			rec.ID, f.Path, f.Reason, f.Detail); err != nil {
			return "", fmt.Errorf("failed to insert sweep failure %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit sweep: %w", err)
	}
	return rec.ID, nil
}

const sweepColumns = `id, started_at, finished_at, dry_run, success, message, recovery_suggestion,
	selected, removed, skipped, failed, escalated, bytes_selected`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSweep(row rowScanner) (*SweepRecord, error) {
	var rec SweepRecord
	var startedAt, finishedAt string
	var suggestion sql.NullString

	err := row.Scan(
		&rec.ID,
		&startedAt,
		&finishedAt,
		&rec.DryRun,
		&rec.Success,
		&rec.Message,
		&suggestion,
		&rec.Selected,
		&rec.Removed,
		&rec.Skipped,
		&rec.Failed,
		&rec.Escalated,
		&rec.BytesSelected,
	)
	if err != nil {
		return nil, err
	}
	rec.RecoverySuggestion = suggestion.String

	if rec.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return nil, fmt.Errorf("failed to parse started_at for %s: %w", rec.ID, err)
	}
	if rec.FinishedAt, err = time.Parse(timeLayout, finishedAt); err != nil {
		return nil, fmt.Errorf("failed to parse finished_at for %s: %w", rec.ID, err)
	}
	return &rec, nil
}

// ListSweeps returns the most recent sweeps first, without paths or
// failures. limit <= 0 returns every record.
func (s *Store) ListSweeps(limit int) ([]*SweepRecord, error) {
	query := `SELECT ` + sweepColumns + ` FROM sweeps ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrapQueryErr("failed to list sweeps", err)
	}
	defer rows.Close()

	var records []*SweepRecord
	for rows.Next() {
		rec, err := scanSweep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sweep row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sweeps: %w", err)
	}
	return records, nil
}

// GetSweep returns one sweep with its paths and failures
func (s *Store) GetSweep(id string) (*SweepRecord, error) {
	row := s.db.QueryRow(`SELECT `+sweepColumns+` FROM sweeps WHERE id = ?`, id)
	rec, err := scanSweep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sweep %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, wrapQueryErr(fmt.Sprintf("failed to get sweep %s", id), err)
	}

	paths, err := s.db.Query(`SELECT path FROM sweep_paths WHERE sweep_id = ? ORDER BY path`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get sweep paths: %w", err)
	}
	defer paths.Close()
	for paths.Next() {
		var p string
		if err := paths.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan sweep path: %w", err)
		}
		rec.Paths = append(rec.Paths, p)
	}
	if err := paths.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sweep paths: %w", err)
	}
	paths.Close()

	failures, err := s.db.Query(`SELECT path, reason, detail FROM sweep_failures WHERE sweep_id = ? ORDER BY path`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get sweep failures: %w", err)
	}
	defer failures.Close()
	for failures.Next() {
		var f FailureRecord
		var detail sql.NullString
		if err := failures.Scan(&f.Path, &f.Reason, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan sweep failure: %w", err)
		}
		f.Detail = detail.String
		rec.Failures = append(rec.Failures, f)
	}
	if err := failures.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sweep failures: %w", err)
	}

	return rec, nil
}

// PruneBefore deletes sweeps that started before cutoff and returns how
// many were removed
func (s *Store) PruneBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM sweeps WHERE started_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, wrapQueryErr("failed to prune sweeps", err)
	}
	return res.RowsAffected()
}
