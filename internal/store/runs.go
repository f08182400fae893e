package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/qadhya/drivesync/internal/errors"
	"github.com/qadhya/drivesync/internal/runlog"
)

const (
	defaultRunHistory = 20
	maxRunHistory     = 200

	runColumns = `id, tenant_id, provider, status, started_at, completed_at, files_scanned,
	files_added, files_updated, files_needs_classification, stale_count, errors, duration_ms`
)

// CreateSyncRun inserts a new run row.
func (s *Store) CreateSyncRun(ctx context.Context, run *runlog.Run) error {
	errs, err := encodeErrors(run.Errors)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `
		INSERT INTO sync_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.TenantID, run.Provider, string(run.Status), run.StartedAt.UTC(), nullTime(run.CompletedAt),
		run.Scanned, run.Added, run.Updated, run.NeedsClassification, run.StaleCount, errs, run.DurationMs)
	if err != nil {
		return fmt.Errorf("insert sync run %s: %w", run.ID, err)
	}
	return nil
}

// FinalizeSyncRun writes the terminal state and counters of a run.
func (s *Store) FinalizeSyncRun(ctx context.Context, run *runlog.Run) error {
	errs, err := encodeErrors(run.Errors)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, `
		UPDATE sync_runs SET
			status = ?, completed_at = ?, files_scanned = ?, files_added = ?, files_updated = ?,
			files_needs_classification = ?, stale_count = ?, errors = ?, duration_ms = ?
		WHERE id = ?`,
		string(run.Status), nullTime(run.CompletedAt), run.Scanned, run.Added, run.Updated,
		run.NeedsClassification, run.StaleCount, errs, run.DurationMs, run.ID)
	if err != nil {
		return fmt.Errorf("finalize sync run %s: %w", run.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize sync run %s: %w", run.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("finalize sync run %s: %w", run.ID, apperrors.ErrRunNotFound)
	}
	return nil
}

// GetSyncRun loads a run by id.
func (s *Store) GetSyncRun(ctx context.Context, runID string) (*runlog.Run, error) {
	row := s.queryRow(ctx, `SELECT `+runColumns+` FROM sync_runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sync run %s: %w", runID, apperrors.ErrRunNotFound)
	}
	return run, err
}

// ListSyncRuns returns the tenant's most recent runs, newest first. A
// non-positive limit selects the default; large limits are capped.
func (s *Store) ListSyncRuns(ctx context.Context, tenantID string, limit int) ([]*runlog.Run, error) {
	if limit <= 0 {
		limit = defaultRunHistory
	}
	limit = min(limit, maxRunHistory)

	rows, err := s.query(ctx, `SELECT `+runColumns+`
		FROM sync_runs WHERE tenant_id = ?
		ORDER BY started_at DESC, id DESC LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("query sync runs: %w", err)
	}
	defer rows.Close()

	var out []*runlog.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(sc scanner) (*runlog.Run, error) {
	var (
		run         runlog.Run
		status      string
		completedAt sql.NullTime
		errs        string
	)
	err := sc.Scan(&run.ID, &run.TenantID, &run.Provider, &status, &run.StartedAt, &completedAt,
		&run.Scanned, &run.Added, &run.Updated, &run.NeedsClassification, &run.StaleCount, &errs, &run.DurationMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan sync run: %w", err)
	}

	run.Status = runlog.Status(status)
	run.StartedAt = run.StartedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		run.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(errs), &run.Errors); err != nil {
		return nil, fmt.Errorf("decode errors of sync run %s: %w", run.ID, err)
	}
	return &run, nil
}

func encodeErrors(errs []string) (string, error) {
	if errs == nil {
		errs = []string{}
	}
	data, err := json.Marshal(errs)
	if err != nil {
		return "", fmt.Errorf("encode run errors: %w", err)
	}
	return string(data), nil
}
