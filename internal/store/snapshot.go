package store

import (
	"context"
	"fmt"
	"time"

	"github.com/upmon/upmon/internal/monitor"
)

// TargetStatus is one row of the fleet snapshot: a target with its most
// recent check, if any, and its open incident, if any.
type TargetStatus struct {
	TargetID       int64              `json:"target_id"`
	Name           string             `json:"name"`
	URL            string             `json:"url"`
	IsActive       bool               `json:"is_active"`
	Status         *monitor.Status    `json:"status"`
	HTTPStatus     *int               `json:"http_status"`
	LatencyMS      *int64             `json:"latency_ms"`
	Error          *monitor.ErrorKind `json:"error"`
	LastCheckedAt  *time.Time         `json:"last_checked_at"`
	OpenIncidentID *int64             `json:"open_incident_id"`
}

// FleetSnapshot is the periodic dashboard broadcast.
type FleetSnapshot struct {
	GeneratedAt   time.Time      `json:"generated_at"`
	TotalTargets  int            `json:"total_targets"`
	ActiveTargets int            `json:"active_targets"`
	TargetsUp     int            `json:"targets_up"`
	TargetsDown   int            `json:"targets_down"`
	OpenIncidents int            `json:"open_incidents"`
	DueEntries    int            `json:"due_entries"`
	Targets       []TargetStatus `json:"targets"`
}

// FleetSnapshot assembles the read-only dashboard view: every target with
// its latest check and open incident, plus fleet-wide counters.
func (s *Store) FleetSnapshot(ctx context.Context) (*FleetSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.name, t.url, t.is_active,
		       c.status, c.http_status, c.latency_ms, c.error, c.checked_at,
		       i.id
		FROM targets t
		LEFT JOIN LATERAL (
			SELECT status, http_status, latency_ms, error, checked_at
			FROM check_results
			WHERE target_id = t.id
			ORDER BY checked_at DESC, id DESC
			LIMIT 1
		) c ON TRUE
		LEFT JOIN incidents i ON i.target_id = t.id AND NOT i.resolved
		ORDER BY t.id`)
	if err != nil {
		return nil, fmt.Errorf("snapshot targets: %w", err)
	}
	defer rows.Close()

	snap := &FleetSnapshot{
		GeneratedAt: time.Now().UTC(),
		Targets:     []TargetStatus{},
	}
	for rows.Next() {
		var ts TargetStatus
		if err := rows.Scan(
			&ts.TargetID, &ts.Name, &ts.URL, &ts.IsActive,
			&ts.Status, &ts.HTTPStatus, &ts.LatencyMS, &ts.Error, &ts.LastCheckedAt,
			&ts.OpenIncidentID,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}

		snap.TotalTargets++
		if ts.IsActive {
			snap.ActiveTargets++
		}
		if ts.Status != nil {
			switch *ts.Status {
			case monitor.StatusUp:
				snap.TargetsUp++
			case monitor.StatusDown:
				snap.TargetsDown++
			}
		}
		if ts.OpenIncidentID != nil {
			snap.OpenIncidents++
		}
		snap.Targets = append(snap.Targets, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read snapshot rows: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM scheduler_state s
		JOIN targets t ON t.id = s.target_id
		WHERE t.is_active
		  AND s.next_run_at <= now()
		  AND (s.lease_expires_at IS NULL OR s.lease_expires_at <= now())`).Scan(&snap.DueEntries)
	if err != nil {
		return nil, fmt.Errorf("count due entries: %w", err)
	}
	return snap, nil
}
