package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// SaveRun saves or updates a run summary.
func (s *SQLiteStore) SaveRun(ctx context.Context, run RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, status, product_name, expected, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			product_name = excluded.product_name,
			expected = excluded.expected,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`, run.ID, run.Status, run.ProductName, strings.Join(run.Expected, ","), run.Error,
		unixNano(run.StartedAt), unixNano(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun retrieves a run summary.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, product_name, expected, error, started_at, finished_at
		FROM runs
		WHERE id = ?
	`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return RunRecord{}, fmt.Errorf("run %q: %w", runID, ErrNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to query run: %w", err)
	}
	return run, nil
}

// ListRuns returns every run, oldest first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, product_name, expected, error, started_at, finished_at
		FROM runs
		ORDER BY started_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var run RunRecord
	var expected string
	var started, finished int64
	if err := row.Scan(&run.ID, &run.Status, &run.ProductName, &expected, &run.Error, &started, &finished); err != nil {
		return RunRecord{}, err
	}
	if expected != "" {
		run.Expected = strings.Split(expected, ",")
	}
	run.StartedAt = fromUnixNano(started)
	run.FinishedAt = fromUnixNano(finished)
	return run, nil
}

// SaveOutput stores a page as JSON. The run must exist.
func (s *SQLiteStore) SaveOutput(ctx context.Context, runID, name string, page any) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to encode page %s: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO outputs (run_id, name, page)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, name) DO UPDATE SET page = excluded.page
	`, runID, name, string(data))
	if err != nil {
		return fmt.Errorf("failed to save output %s/%s: %w", runID, name, err)
	}
	return nil
}

// GetOutputs returns a run's pages ordered by name.
func (s *SQLiteStore) GetOutputs(ctx context.Context, runID string) ([]OutputRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, name, page
		FROM outputs
		WHERE run_id = ?
		ORDER BY name
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outputs: %w", err)
	}
	defer rows.Close()

	var out []OutputRecord
	for rows.Next() {
		var rec OutputRecord
		var page string
		if err := rows.Scan(&rec.RunID, &rec.Name, &page); err != nil {
			return nil, fmt.Errorf("failed to scan output: %w", err)
		}
		rec.Page = json.RawMessage(page)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outputs: %w", err)
	}
	return out, nil
}
