package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/upmon/upmon/internal/monitor"
)

const (
	// MaxAttempts is the delivery ceiling per outbox row; rows that fail
	// this many times are dead-lettered as FAILED.
	MaxAttempts = 5

	claimBatch  = 50
	sendTimeout = 15 * time.Second
)

// OutboxStore is the slice of the store the dispatcher needs.
type OutboxStore interface {
	ClaimQueued(ctx context.Context, limit, maxAttempts int) ([]monitor.PendingNotification, error)
	MarkSent(ctx context.Context, eventID int64) error
	MarkFailed(ctx context.Context, eventID int64, message string, final bool) error
	FailExhausted(ctx context.Context, maxAttempts int) (int64, error)
}

// Dispatcher drains the notification outbox: claim, send, mark. The worker
// nudges it after every transition; a sweep timer picks up redeliveries and
// rows left behind by crashed dispatchers. Delivery is at-least-once.
type Dispatcher struct {
	store    OutboxStore
	registry *Registry
	logger   *slog.Logger
	interval time.Duration
	wake     chan struct{}
}

func NewDispatcher(store OutboxStore, registry *Registry, logger *slog.Logger, sweepInterval time.Duration) *Dispatcher {
	return &Dispatcher{
		store:    store,
		registry: registry,
		logger:   logger.With("component", "dispatcher"),
		interval: sweepInterval,
		wake:     make(chan struct{}, 1),
	}
}

// Nudge wakes the dispatcher without waiting for the sweep timer. Safe from
// any goroutine; concurrent nudges coalesce into one pending wake.
func (d *Dispatcher) Nudge() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run delivers until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started", "sweep_interval", d.interval)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	// Anything left queued by a previous run goes out first.
	d.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return nil
		case <-d.wake:
		case <-ticker.C:
			if n, err := d.store.FailExhausted(ctx, MaxAttempts); err != nil {
				if ctx.Err() == nil {
					d.logger.Error("dead-letter sweep failed", "error", err)
				}
			} else if n > 0 {
				d.logger.Warn("notifications dead-lettered", "count", n)
			}
		}
		d.drain(ctx)
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for ctx.Err() == nil {
		pending, err := d.store.ClaimQueued(ctx, claimBatch, MaxAttempts)
		if err != nil {
			if ctx.Err() == nil {
				d.logger.Error("claim queued notifications", "error", err)
			}
			return
		}
		if len(pending) == 0 {
			return
		}
		for _, p := range pending {
			d.deliver(ctx, p)
		}
		if len(pending) < claimBatch {
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, p monitor.PendingNotification) {
	sender, ok := d.registry.Resolve(p.Channel)
	if !ok {
		// No retry can fix an unregistered channel type.
		d.logger.Error("no sender for channel", "channel", p.Channel, "event_id", p.EventID)
		d.markFailed(ctx, p, "no sender registered for channel "+string(p.Channel), true)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	err := sender.Send(sendCtx, p.Event, p.ChannelConfig)
	cancel()
	if err != nil {
		final := p.Attempts >= MaxAttempts
		d.logger.Warn("notification delivery failed",
			"event_id", p.EventID,
			"channel", p.Channel,
			"attempt", p.Attempts,
			"final", final,
			"error", err)
		d.markFailed(ctx, p, err.Error(), final)
		return
	}

	if err := d.store.MarkSent(ctx, p.EventID); err != nil {
		if ctx.Err() == nil {
			d.logger.Error("mark notification sent", "event_id", p.EventID, "error", err)
		}
		return
	}
	notificationsTotal.WithLabelValues(string(p.Channel), "sent").Inc()
	d.logger.Info("notification delivered",
		"event_id", p.EventID,
		"channel", p.Channel,
		"kind", p.Event.Kind,
		"target", p.Event.TargetName)
}

func (d *Dispatcher) markFailed(ctx context.Context, p monitor.PendingNotification, message string, final bool) {
	result := "retried"
	if final {
		result = "failed"
	}
	notificationsTotal.WithLabelValues(string(p.Channel), result).Inc()
	if err := d.store.MarkFailed(ctx, p.EventID, message, final); err != nil && ctx.Err() == nil {
		d.logger.Error("mark notification failed", "event_id", p.EventID, "error", err)
	}
}
