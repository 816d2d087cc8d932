package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const pruneBatchSize = 10000

// JanitorStore is the slice of the store the janitor prunes.
type JanitorStore interface {
	PruneChecksBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	PruneEventsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// Janitor deletes check history and delivered outbox rows past the
// retention horizon, in batches, on a cron schedule.
type Janitor struct {
	store     JanitorStore
	logger    *slog.Logger
	schedule  string
	retention time.Duration
}

func NewJanitor(st JanitorStore, logger *slog.Logger, schedule string, retentionDays int) *Janitor {
	return &Janitor{
		store:     st,
		logger:    logger.With("component", "janitor"),
		schedule:  schedule,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
}

// Run installs the cron entry and blocks until ctx is cancelled. A firing
// in progress finishes before Run returns.
func (j *Janitor) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(j.schedule, func() { j.prune(ctx) }); err != nil {
		return fmt.Errorf("install prune schedule %q: %w", j.schedule, err)
	}
	c.Start()
	j.logger.Info("janitor started", "schedule", j.schedule, "retention", j.retention)

	<-ctx.Done()
	<-c.Stop().Done()
	j.logger.Info("janitor stopped")
	return nil
}

func (j *Janitor) prune(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-j.retention)

	checks, err := j.pruneAll(ctx, cutoff, j.store.PruneChecksBefore)
	if err != nil && ctx.Err() == nil {
		j.logger.Error("prune check results", "error", err)
	}
	events, err := j.pruneAll(ctx, cutoff, j.store.PruneEventsBefore)
	if err != nil && ctx.Err() == nil {
		j.logger.Error("prune notification events", "error", err)
	}

	j.logger.Info("retention prune complete",
		"cutoff", cutoff,
		"checks_deleted", checks,
		"events_deleted", events)
}

// pruneAll repeats batched deletes until the table is clean below the
// cutoff. Partial progress is kept on error.
func (j *Janitor) pruneAll(ctx context.Context, cutoff time.Time, del func(context.Context, time.Time, int) (int64, error)) (int64, error) {
	var total int64
	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := del(ctx, cutoff, pruneBatchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < pruneBatchSize {
			return total, nil
		}
	}
}
