package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"

	"github.com/upmon/upmon/internal/monitor"
)

// enqueueTransition writes one QUEUED outbox row per active notification
// channel, plus one with a null channel id per builtin env-configured
// sender. It runs inside the completion transaction, so the alert commits
// atomically with the incident change.
func enqueueTransition(ctx context.Context, tx pgx.Tx, incidentID int64, kind monitor.TransitionKind, builtins []monitor.ChannelType) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO notification_events (incident_id, channel_id, channel, kind)
		SELECT $1, c.id, c.type, $2
		FROM notification_channels c
		WHERE c.is_active`, incidentID, kind); err != nil {
		return fmt.Errorf("enqueue channel notifications: %w", err)
	}

	for _, ch := range builtins {
		if _, err := tx.Exec(ctx, `
			INSERT INTO notification_events (incident_id, channel, kind)
			VALUES ($1, $2, $3)`, incidentID, ch, kind); err != nil {
			return fmt.Errorf("enqueue builtin %s notification: %w", ch, err)
		}
	}
	return nil
}

// ClaimQueued leases up to limit queued notifications for delivery, oldest
// first, and bumps their attempt counters in the same transaction. Rows
// claimed by a concurrent dispatcher are skipped. The returned attempt
// numbers count the claim being made, so a first delivery reports 1.
//
// The alert payload is rebuilt from current incident, target and opening
// check state rather than stored, which keeps redelivery after a crash
// consistent with the database.
func (s *Store) ClaimQueued(ctx context.Context, limit, maxAttempts int) ([]monitor.PendingNotification, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT e.id, e.channel, e.kind, e.attempts,
		       i.id, i.target_id, i.start_ts, i.end_ts, i.last_status, i.resolved,
		       t.id, t.name, t.url,
		       COALESCE(c.config, '{}'::jsonb),
		       cr.error
		FROM notification_events e
		JOIN incidents i ON i.id = e.incident_id
		JOIN targets t ON t.id = i.target_id
		LEFT JOIN notification_channels c ON c.id = e.channel_id
		LEFT JOIN LATERAL (
			SELECT error
			FROM check_results
			WHERE target_id = i.target_id AND checked_at = i.start_ts
			ORDER BY id ASC
			LIMIT 1
		) cr ON TRUE
		WHERE e.status = 'QUEUED' AND e.attempts < $1
		ORDER BY e.created_at ASC, e.id ASC
		LIMIT $2
		FOR UPDATE OF e SKIP LOCKED`, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("select queued notifications: %w", err)
	}
	defer rows.Close()

	var pending []monitor.PendingNotification
	for rows.Next() {
		var (
			p       monitor.PendingNotification
			kind    monitor.TransitionKind
			inc     monitor.Incident
			target  monitor.Target
			errKind *monitor.ErrorKind
		)
		if err := rows.Scan(
			&p.EventID, &p.Channel, &kind, &p.Attempts,
			&inc.ID, &inc.TargetID, &inc.StartTS, &inc.EndTS, &inc.LastStatus, &inc.Resolved,
			&target.ID, &target.Name, &target.URL,
			&p.ChannelConfig,
			&errKind,
		); err != nil {
			return nil, fmt.Errorf("scan queued notification: %w", err)
		}
		p.Attempts++
		p.Event = monitor.EventForTransition(kind, inc, target, errKind)
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read queued notifications: %w", err)
	}

	if len(pending) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := lo.Map(pending, func(p monitor.PendingNotification, _ int) int64 { return p.EventID })
	if _, err := tx.Exec(ctx, `
		UPDATE notification_events SET attempts = attempts + 1
		WHERE id = ANY($1)`, ids); err != nil {
		return nil, fmt.Errorf("bump notification attempts: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return pending, nil
}

// MarkSent records a successful delivery.
func (s *Store) MarkSent(ctx context.Context, eventID int64) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE notification_events
		SET status = 'SENT', sent_at = now(), error = NULL
		WHERE id = $1`, eventID); err != nil {
		return fmt.Errorf("mark notification %d sent: %w", eventID, err)
	}
	return nil
}

// MarkFailed records a delivery failure. Non-final failures keep the row
// QUEUED for a later sweep; final ones dead-letter it as FAILED.
func (s *Store) MarkFailed(ctx context.Context, eventID int64, message string, final bool) error {
	status := monitor.EventQueued
	if final {
		status = monitor.EventFailed
	}
	if _, err := s.pool.Exec(ctx, `
		UPDATE notification_events SET status = $2, error = $3
		WHERE id = $1`, eventID, status, message); err != nil {
		return fmt.Errorf("mark notification %d failed: %w", eventID, err)
	}
	return nil
}

// FailExhausted dead-letters QUEUED rows whose attempts ran out without a
// terminal mark, which happens when a dispatcher dies between claiming and
// marking.
func (s *Store) FailExhausted(ctx context.Context, maxAttempts int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notification_events
		SET status = 'FAILED', error = COALESCE(error, 'delivery attempts exhausted')
		WHERE status = 'QUEUED' AND attempts >= $1`, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("fail exhausted notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PruneEventsBefore deletes up to limit terminally-delivered outbox rows
// older than the cutoff. QUEUED rows are never pruned.
func (s *Store) PruneEventsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM notification_events
		WHERE id IN (
			SELECT id FROM notification_events
			WHERE status <> 'QUEUED' AND created_at < $1
			ORDER BY created_at ASC
			LIMIT $2
		)`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("prune notification events: %w", err)
	}
	return tag.RowsAffected(), nil
}
