package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"

	"github.com/upmon/upmon/internal/monitor"
)

// EnsureEntries inserts a scheduler row, due immediately, for every target
// that lacks one. Inactive targets get a row too; AcquireDue filters them
// out until they are activated. Existing rows are untouched, so this is
// safe to run on every poll cycle.
func (s *Store) EnsureEntries(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO scheduler_state (target_id, next_run_at)
		SELECT id, now() FROM targets
		ON CONFLICT (target_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("ensure scheduler entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// AcquireDue leases up to limit due scheduler entries for this worker and
// returns them as jobs, earliest due first. Rows locked by concurrent
// workers are skipped, not waited on, so two workers never lease the same
// entry and never block each other.
func (s *Store) AcquireDue(ctx context.Context, limit int, workerID string, leaseTimeout time.Duration) ([]monitor.Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin acquire: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	rows, err := tx.Query(ctx, `
		SELECT s.id, t.id, t.name, t.url, t.check_interval_sec, t.timeout_ms,
		       t.retry_count, t.retry_backoff_ms, t.sla_target, t.is_active,
		       t.created_at, t.updated_at
		FROM scheduler_state s
		JOIN targets t ON t.id = s.target_id
		WHERE t.is_active
		  AND s.next_run_at <= $1
		  AND (s.lease_expires_at IS NULL OR s.lease_expires_at <= $1)
		ORDER BY s.next_run_at ASC
		LIMIT $2
		FOR UPDATE OF s SKIP LOCKED`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select due entries: %w", err)
	}
	defer rows.Close()

	var jobs []monitor.Job
	for rows.Next() {
		var job monitor.Job
		t := &job.Target
		if err := rows.Scan(
			&job.SchedulerID,
			&t.ID, &t.Name, &t.URL, &t.CheckIntervalSec, &t.TimeoutMS,
			&t.RetryCount, &t.RetryBackoffMS, &t.SLATarget, &t.IsActive,
			&t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan due entry: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read due entries: %w", err)
	}

	if len(jobs) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := lo.Map(jobs, func(j monitor.Job, _ int) int64 { return j.SchedulerID })
	if _, err := tx.Exec(ctx, `
		UPDATE scheduler_state
		SET lease_owner = $2, lease_expires_at = $3
		WHERE id = ANY($1)`, ids, workerID, now.Add(leaseTimeout)); err != nil {
		return nil, fmt.Errorf("write leases: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit acquire: %w", err)
	}
	return jobs, nil
}

// CompleteResult reports what a completed job changed: the stored check,
// the incident it touched, and the state-machine transition if one fired.
type CompleteResult struct {
	Check      monitor.CheckResult
	Incident   *monitor.Incident
	Transition *monitor.TransitionKind
}

// CompleteJob persists a finished probe in a single transaction: the check
// row, the incident state machine step, any queued notifications for a
// transition, and the reschedule to checked_at + interval with the lease
// cleared.
//
// A nil result with nil error means the scheduler entry disappeared while
// the probe ran (target deleted); the outcome is discarded. Errors wrapping
// ErrContention are safe to retry with the same arguments.
func (s *Store) CompleteJob(ctx context.Context, job monitor.Job, check monitor.CheckResult, builtins []monitor.ChannelType) (*CompleteResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin complete: %w", err)
	}
	defer tx.Rollback(ctx)

	var targetID int64
	err = tx.QueryRow(ctx, `
		SELECT target_id FROM scheduler_state WHERE id = $1
		FOR UPDATE`, job.SchedulerID).Scan(&targetID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock scheduler entry %d: %w", job.SchedulerID, err)
	}

	check.TargetID = targetID
	check, err = insertCheck(ctx, tx, check)
	if err != nil {
		return nil, err
	}

	incident, err := openIncidentForUpdate(ctx, tx, targetID)
	if err != nil {
		return nil, err
	}

	action := monitor.NextIncidentAction(incident != nil, check.Status)
	switch action {
	case monitor.IncidentOpen:
		opened, err := openIncident(ctx, tx, check)
		if err != nil {
			return nil, err
		}
		incident = &opened
	case monitor.IncidentRefresh:
		if err := refreshIncident(ctx, tx, incident, check); err != nil {
			return nil, err
		}
	case monitor.IncidentResolve:
		if err := resolveIncident(ctx, tx, incident, check); err != nil {
			return nil, err
		}
	}

	result := &CompleteResult{Check: check, Incident: incident}
	if kind, ok := action.Transition(); ok {
		if err := enqueueTransition(ctx, tx, incident.ID, kind, builtins); err != nil {
			return nil, err
		}
		result.Transition = &kind
	}

	if _, err := tx.Exec(ctx, `
		UPDATE scheduler_state
		SET next_run_at = $2, lease_owner = NULL, lease_expires_at = NULL
		WHERE id = $1`, job.SchedulerID, check.CheckedAt.Add(job.Target.Interval())); err != nil {
		return nil, fmt.Errorf("reschedule entry %d: %w", job.SchedulerID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit complete: %w", classify(err, ErrContention))
	}
	return result, nil
}
