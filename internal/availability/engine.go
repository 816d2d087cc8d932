// Package availability converts a target's sparse check stream into uptime
// and downtime seconds over a window, plus an SLA verdict.
package availability

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/upmon/upmon/internal/monitor"
)

// Store is the slice of the persistent store the engine reads.
type Store interface {
	// LastStatusBefore returns the status of the most recent check strictly
	// before the given instant, or nil when none exists.
	LastStatusBefore(ctx context.Context, targetID int64, before time.Time) (*monitor.Status, error)
	// ChecksBetween returns checks with checked_at in [from, to], ascending.
	ChecksBetween(ctx context.Context, targetID int64, from, to time.Time) ([]monitor.CheckResult, error)
}

// Report is the uptime record served to the read path.
type Report struct {
	TargetID          int64     `json:"target_id"`
	WindowHours       int       `json:"window_hours"`
	UptimeSeconds     float64   `json:"uptime_seconds"`
	DowntimeSeconds   float64   `json:"downtime_seconds"`
	Availability      *float64  `json:"availability"`
	SampleCount       int       `json:"sample_count"`
	FromTS            time.Time `json:"from_ts"`
	ToTS              time.Time `json:"to_ts"`
	SLATargetPerMille int       `json:"sla_target_per_mille"`
	SLAMet            *bool     `json:"sla_met"`
}

// Engine computes availability reports. Reports are cached for a short TTL
// because the read path may be polled far more often than checks land.
type Engine struct {
	store               Store
	cache               *gocache.Cache
	assumeUnknownAsDown bool
	now                 func() time.Time
}

// NewEngine returns an engine over the given store. cacheTTL of zero
// disables caching. Windows with no information at all are attributed as
// DOWN (assume-unknown-as-down policy).
func NewEngine(store Store, cacheTTL time.Duration) *Engine {
	e := &Engine{
		store:               store,
		assumeUnknownAsDown: true,
		now:                 time.Now,
	}
	if cacheTTL > 0 {
		e.cache = gocache.New(cacheTTL, 2*cacheTTL)
	}
	return e
}

// Report computes the uptime record for a target over the trailing window.
// slaOverride, when non-nil, replaces the target's own SLA threshold.
func (e *Engine) Report(ctx context.Context, target monitor.Target, windowHours int, slaOverride *int) (*Report, error) {
	sla := target.SLATarget
	if slaOverride != nil {
		sla = *slaOverride
	}

	key := fmt.Sprintf("%d:%d:%d", target.ID, windowHours, sla)
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			return v.(*Report), nil
		}
	}

	to := e.now().UTC()
	from := to.Add(-time.Duration(windowHours) * time.Hour)

	prev, err := e.store.LastStatusBefore(ctx, target.ID, from)
	if err != nil {
		return nil, fmt.Errorf("load pre-window status: %w", err)
	}
	checks, err := e.store.ChecksBetween(ctx, target.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load window checks: %w", err)
	}

	uptime, downtime := accumulate(prev, checks, from, to, e.assumeUnknownAsDown)

	rep := &Report{
		TargetID:          target.ID,
		WindowHours:       windowHours,
		UptimeSeconds:     uptime,
		DowntimeSeconds:   downtime,
		SampleCount:       len(checks),
		FromTS:            from,
		ToTS:              to,
		SLATargetPerMille: sla,
	}
	if total := uptime + downtime; total > 0 {
		av := uptime / total
		met := av >= float64(sla)/1000.0
		rep.Availability = &av
		rep.SLAMet = &met
	}

	if e.cache != nil {
		e.cache.Set(key, rep, gocache.DefaultExpiration)
	}
	return rep, nil
}

// accumulate walks the window and attributes each stretch of time to the
// status in force at its start.
//
// The baseline is the last pre-window check when one exists; otherwise the
// first in-window check, starting at its own timestamp (time before the
// first sample is not attributed); otherwise the whole window is DOWN when
// assumeUnknownAsDown holds, and unattributed when it does not.
func accumulate(prev *monitor.Status, checks []monitor.CheckResult, from, to time.Time, assumeUnknownAsDown bool) (uptime, downtime float64) {
	var (
		status monitor.Status
		cursor time.Time
		rest   []monitor.CheckResult
	)
	switch {
	case prev != nil:
		status, cursor, rest = *prev, from, checks
	case len(checks) > 0:
		status, cursor, rest = checks[0].Status, checks[0].CheckedAt, checks[1:]
	case assumeUnknownAsDown:
		status, cursor = monitor.StatusDown, from
	default:
		return 0, 0
	}

	add := func(d time.Duration) {
		if d <= 0 {
			return
		}
		if status == monitor.StatusUp {
			uptime += d.Seconds()
		} else {
			downtime += d.Seconds()
		}
	}

	for _, c := range rest {
		if c.CheckedAt.Before(cursor) {
			// Out-of-order commit from a recovered lease; skip, never error.
			continue
		}
		add(c.CheckedAt.Sub(cursor))
		cursor, status = c.CheckedAt, c.Status
	}
	add(to.Sub(cursor))

	return uptime, downtime
}
