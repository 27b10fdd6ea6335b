package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrRunNotFound is returned when a run id is unknown or no run exists.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, status, first_year, last_year, started_at, completed_at, index_documents, error`

// CreateRun creates a new pipeline run.
func (s *SQLiteStore) CreateRun(ctx context.Context, firstYear, lastYear int) (*Run, error) {
	if err := s.opened(); err != nil {
		return nil, err
	}

	run := &Run{
		ID:        generateID(),
		Status:    RunStatusRunning,
		FirstYear: firstYear,
		LastYear:  lastYear,
		StartedAt: time.Now().UTC(),
	}

	s.logger.Debug("creating run", slog.String("id", run.ID), slog.Int("first_year", firstYear), slog.Int("last_year", lastYear))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, first_year, last_year, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), run.FirstYear, run.LastYear, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, status RunStatus, indexDocuments int, errMsg string) error {
	if err := s.opened(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, index_documents = ?, error = ? WHERE id = ?`,
		string(status), time.Now().UTC(), indexDocuments, nullable(errMsg), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	if err := s.opened(); err != nil {
		return nil, err
	}

	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetLatestRun retrieves the most recently started run.
func (s *SQLiteStore) GetLatestRun(ctx context.Context) (*Run, error) {
	if err := s.opened(); err != nil {
		return nil, err
	}

	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. A non-positive limit
// returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if err := s.opened(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// RecordYear inserts or replaces the outcome of one year of a run.
func (s *SQLiteStore) RecordYear(ctx context.Context, y *YearOutcome) error {
	if err := s.opened(); err != nil {
		return err
	}
	if y.CompletedAt.IsZero() {
		y.CompletedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_years (run_id, year, status, archives, tables, rows_loaded, dropped_rows, error, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, year) DO UPDATE SET
			status = excluded.status,
			archives = excluded.archives,
			tables = excluded.tables,
			rows_loaded = excluded.rows_loaded,
			dropped_rows = excluded.dropped_rows,
			error = excluded.error,
			completed_at = excluded.completed_at`,
		y.RunID, y.Year, string(y.Status), y.Archives, y.Tables, y.Rows, y.DroppedRows, nullable(y.Error), y.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record year %d: %w", y.Year, err)
	}
	return nil
}

// GetYearOutcomes returns the year outcomes of a run, by year.
func (s *SQLiteStore) GetYearOutcomes(ctx context.Context, runID string) ([]*YearOutcome, error) {
	if err := s.opened(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, year, status, archives, tables, rows_loaded, dropped_rows, error, completed_at
		FROM run_years WHERE run_id = ? ORDER BY year`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get year outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*YearOutcome
	for rows.Next() {
		var (
			y      YearOutcome
			status string
			errMsg sql.NullString
		)
		if err := rows.Scan(&y.RunID, &y.Year, &status, &y.Archives, &y.Tables, &y.Rows, &y.DroppedRows, &errMsg, &y.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan year outcome: %w", err)
		}
		y.Status = YearStatus(status)
		y.Error = errMsg.String
		out = append(out, &y)
	}
	return out, rows.Err()
}

// RecordArchive inserts or replaces the outcome of one archive of a run.
func (s *SQLiteStore) RecordArchive(ctx context.Context, a *ArchiveOutcome) error {
	if err := s.opened(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_archives (run_id, year, url, status, bytes, skipped, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, url) DO UPDATE SET
			year = excluded.year,
			status = excluded.status,
			bytes = excluded.bytes,
			skipped = excluded.skipped,
			error = excluded.error`,
		a.RunID, a.Year, a.URL, string(a.Status), a.Bytes, a.Skipped, nullable(a.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to record archive %s: %w", a.URL, err)
	}
	return nil
}

// GetArchiveOutcomes returns the archive outcomes of a run, by year and URL.
func (s *SQLiteStore) GetArchiveOutcomes(ctx context.Context, runID string) ([]*ArchiveOutcome, error) {
	if err := s.opened(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, year, url, status, bytes, skipped, error
		FROM run_archives WHERE run_id = ? ORDER BY year, url`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get archive outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*ArchiveOutcome
	for rows.Next() {
		var (
			a      ArchiveOutcome
			status string
			errMsg sql.NullString
		)
		if err := rows.Scan(&a.RunID, &a.Year, &a.URL, &status, &a.Bytes, &a.Skipped, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan archive outcome: %w", err)
		}
		a.Status = ArchiveStatus(status)
		a.Error = errMsg.String
		out = append(out, &a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run         Run
		status      string
		completedAt sql.NullTime
		errMsg      sql.NullString
	)
	if err := row.Scan(&run.ID, &status, &run.FirstYear, &run.LastYear, &run.StartedAt,
		&completedAt, &run.IndexDocuments, &errMsg); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	run.Error = errMsg.String
	return &run, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
