package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/upmon/upmon/internal/monitor"
)

const checkColumns = `id, target_id, status, http_status, latency_ms, error, checked_at`

func scanCheck(row rowScanner) (monitor.CheckResult, error) {
	var c monitor.CheckResult
	err := row.Scan(
		&c.ID,
		&c.TargetID,
		&c.Status,
		&c.HTTPStatus,
		&c.LatencyMS,
		&c.Error,
		&c.CheckedAt,
	)
	return c, err
}

func collectChecks(rows pgx.Rows) ([]monitor.CheckResult, error) {
	defer rows.Close()

	var checks []monitor.CheckResult
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("scan check result: %w", err)
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

// insertCheck appends a check result inside the completion transaction and
// fills in the assigned id.
func insertCheck(ctx context.Context, tx pgx.Tx, c monitor.CheckResult) (monitor.CheckResult, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO check_results (target_id, status, http_status, latency_ms, error, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		c.TargetID, c.Status, c.HTTPStatus, c.LatencyMS, c.Error, c.CheckedAt)

	if err := row.Scan(&c.ID); err != nil {
		return c, fmt.Errorf("insert check result: %w", err)
	}
	return c, nil
}

// ListChecks returns the most recent checks for a target, newest first.
func (s *Store) ListChecks(ctx context.Context, targetID int64, limit int) ([]monitor.CheckResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+checkColumns+`
		FROM check_results
		WHERE target_id = $1
		ORDER BY checked_at DESC, id DESC
		LIMIT $2`, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("list checks for target %d: %w", targetID, err)
	}
	return collectChecks(rows)
}

// LatestCheck returns the newest check for a target, or ErrNotFound when
// the target has never been probed.
func (s *Store) LatestCheck(ctx context.Context, targetID int64) (monitor.CheckResult, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+checkColumns+`
		FROM check_results
		WHERE target_id = $1
		ORDER BY checked_at DESC, id DESC
		LIMIT 1`, targetID)

	c, err := scanCheck(row)
	if err != nil {
		return monitor.CheckResult{}, fmt.Errorf("latest check for target %d: %w", targetID, noRowsAsNotFound(err))
	}
	return c, nil
}

// LastStatusBefore returns the status of the last check strictly before the
// given instant, or nil when no such check exists.
func (s *Store) LastStatusBefore(ctx context.Context, targetID int64, before time.Time) (*monitor.Status, error) {
	var status monitor.Status
	err := s.pool.QueryRow(ctx, `
		SELECT status
		FROM check_results
		WHERE target_id = $1 AND checked_at < $2
		ORDER BY checked_at DESC, id DESC
		LIMIT 1`, targetID, before).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last status before %s for target %d: %w", before.Format(time.RFC3339), targetID, err)
	}
	return &status, nil
}

// ChecksBetween returns checks with from <= checked_at < to in ascending
// order, the shape the availability engine walks.
func (s *Store) ChecksBetween(ctx context.Context, targetID int64, from, to time.Time) ([]monitor.CheckResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+checkColumns+`
		FROM check_results
		WHERE target_id = $1 AND checked_at >= $2 AND checked_at < $3
		ORDER BY checked_at ASC, id ASC`, targetID, from, to)
	if err != nil {
		return nil, fmt.Errorf("checks between for target %d: %w", targetID, err)
	}
	return collectChecks(rows)
}

// PruneChecksBefore deletes up to limit check rows older than the cutoff
// and reports how many went. Callers loop until it returns less than limit,
// which keeps any single delete short-lived.
func (s *Store) PruneChecksBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM check_results
		WHERE id IN (
			SELECT id FROM check_results
			WHERE checked_at < $1
			ORDER BY checked_at ASC
			LIMIT $2
		)`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("prune check results: %w", err)
	}
	return tag.RowsAffected(), nil
}
