package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/upmon/upmon/internal/monitor"
)

const incidentColumns = `id, target_id, start_ts, end_ts, last_status, resolved`

func scanIncident(row rowScanner) (monitor.Incident, error) {
	var inc monitor.Incident
	err := row.Scan(
		&inc.ID,
		&inc.TargetID,
		&inc.StartTS,
		&inc.EndTS,
		&inc.LastStatus,
		&inc.Resolved,
	)
	return inc, err
}

// GetIncident fetches a single incident by id.
func (s *Store) GetIncident(ctx context.Context, id int64) (monitor.Incident, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id)

	inc, err := scanIncident(row)
	if err != nil {
		return monitor.Incident{}, fmt.Errorf("get incident %d: %w", id, noRowsAsNotFound(err))
	}
	return inc, nil
}

// ListIncidents returns incidents newest first, optionally filtered by
// target and resolution state.
func (s *Store) ListIncidents(ctx context.Context, targetID *int64, resolved *bool, limit int) ([]monitor.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents`
	var (
		where []string
		args  []any
	)
	if targetID != nil {
		args = append(args, *targetID)
		where = append(where, fmt.Sprintf("target_id = $%d", len(args)))
	}
	if resolved != nil {
		args = append(args, *resolved)
		where = append(where, fmt.Sprintf("resolved = $%d", len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY start_ts DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []monitor.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

// openIncidentForUpdate locks and returns the target's unresolved incident,
// or nil when there is none. A row held by a concurrent transaction is
// skipped rather than waited on; the caller's insert will then trip the
// partial unique index and retry.
func openIncidentForUpdate(ctx context.Context, tx pgx.Tx, targetID int64) (*monitor.Incident, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE target_id = $1 AND NOT resolved
		FOR UPDATE SKIP LOCKED`, targetID)

	inc, err := scanIncident(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock open incident for target %d: %w", targetID, err)
	}
	return &inc, nil
}

// openIncident starts a new incident at the failing check's timestamp. A
// unique violation on the open-incident index means another worker opened
// one concurrently; that maps to ErrContention so the caller retries.
func openIncident(ctx context.Context, tx pgx.Tx, c monitor.CheckResult) (monitor.Incident, error) {
	inc := monitor.Incident{
		TargetID:   c.TargetID,
		StartTS:    c.CheckedAt,
		LastStatus: c.Status,
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO incidents (target_id, start_ts, last_status, resolved)
		VALUES ($1, $2, $3, FALSE)
		RETURNING id`, c.TargetID, c.CheckedAt, c.Status)

	if err := row.Scan(&inc.ID); err != nil {
		return inc, fmt.Errorf("open incident: %w", classify(err, ErrContention))
	}
	return inc, nil
}

// refreshIncident records a repeated failure on an already-open incident.
func refreshIncident(ctx context.Context, tx pgx.Tx, inc *monitor.Incident, c monitor.CheckResult) error {
	if _, err := tx.Exec(ctx, `
		UPDATE incidents SET last_status = $2 WHERE id = $1`, inc.ID, c.Status); err != nil {
		return fmt.Errorf("refresh incident %d: %w", inc.ID, err)
	}
	inc.LastStatus = c.Status
	return nil
}

// resolveIncident closes an open incident at the recovering check's
// timestamp.
func resolveIncident(ctx context.Context, tx pgx.Tx, inc *monitor.Incident, c monitor.CheckResult) error {
	if _, err := tx.Exec(ctx, `
		UPDATE incidents SET end_ts = $2, last_status = $3, resolved = TRUE
		WHERE id = $1`, inc.ID, c.CheckedAt, c.Status); err != nil {
		return fmt.Errorf("resolve incident %d: %w", inc.ID, err)
	}
	inc.EndTS = &c.CheckedAt
	inc.LastStatus = c.Status
	inc.Resolved = true
	return nil
}
