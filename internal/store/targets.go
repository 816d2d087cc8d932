package store

import (
	"context"
	"fmt"

	"github.com/upmon/upmon/internal/monitor"
)

const targetColumns = `id, name, url, check_interval_sec, timeout_ms, retry_count, retry_backoff_ms, sla_target, is_active, created_at, updated_at`

func scanTarget(row rowScanner) (monitor.Target, error) {
	var t monitor.Target
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.URL,
		&t.CheckIntervalSec,
		&t.TimeoutMS,
		&t.RetryCount,
		&t.RetryBackoffMS,
		&t.SLATarget,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}

// CreateTarget inserts a new monitored endpoint and returns it with the
// database-assigned fields populated. A URL collision surfaces as
// ErrDuplicateURL.
func (s *Store) CreateTarget(ctx context.Context, t monitor.Target) (monitor.Target, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO targets (name, url, check_interval_sec, timeout_ms, retry_count, retry_backoff_ms, sla_target, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+targetColumns,
		t.Name, t.URL, t.CheckIntervalSec, t.TimeoutMS, t.RetryCount, t.RetryBackoffMS, t.SLATarget, t.IsActive)

	created, err := scanTarget(row)
	if err != nil {
		return monitor.Target{}, fmt.Errorf("insert target: %w", classify(err, ErrDuplicateURL))
	}
	return created, nil
}

// GetTarget fetches a single target by id.
func (s *Store) GetTarget(ctx context.Context, id int64) (monitor.Target, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+targetColumns+` FROM targets WHERE id = $1`, id)

	t, err := scanTarget(row)
	if err != nil {
		return monitor.Target{}, fmt.Errorf("get target %d: %w", id, noRowsAsNotFound(err))
	}
	return t, nil
}

// ListTargets returns targets ordered by id. With onlyActive set, paused
// targets are filtered out.
func (s *Store) ListTargets(ctx context.Context, onlyActive bool) ([]monitor.Target, error) {
	query := `SELECT ` + targetColumns + ` FROM targets`
	if onlyActive {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var targets []monitor.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// UpdateTarget persists the mutable fields of a target and bumps
// updated_at. The returned value reflects the stored row.
func (s *Store) UpdateTarget(ctx context.Context, t monitor.Target) (monitor.Target, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE targets
		SET name = $2, url = $3, check_interval_sec = $4, timeout_ms = $5,
		    retry_count = $6, retry_backoff_ms = $7, sla_target = $8,
		    is_active = $9, updated_at = now()
		WHERE id = $1
		RETURNING `+targetColumns,
		t.ID, t.Name, t.URL, t.CheckIntervalSec, t.TimeoutMS, t.RetryCount, t.RetryBackoffMS, t.SLATarget, t.IsActive)

	updated, err := scanTarget(row)
	if err != nil {
		return monitor.Target{}, fmt.Errorf("update target %d: %w", t.ID, noRowsAsNotFound(classify(err, ErrDuplicateURL)))
	}
	return updated, nil
}

// DeleteTarget removes a target. Check history, incidents and the scheduler
// entry go with it through ON DELETE CASCADE.
func (s *Store) DeleteTarget(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM targets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete target %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
