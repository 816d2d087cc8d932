// Package worker runs the probe scheduler loop: lease due targets from the
// store, probe them under a bounded concurrency cap, and commit results
// through the completion transaction. Any number of worker processes share
// the schedule safely through row leases.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/google/uuid"

	"github.com/upmon/upmon/internal/config"
	"github.com/upmon/upmon/internal/monitor"
	"github.com/upmon/upmon/internal/probe"
	"github.com/upmon/upmon/internal/store"
)

const (
	// ensureInterval is how often the runner re-sweeps for targets that
	// appeared after startup and still lack a scheduler entry.
	ensureInterval = 15 * time.Second

	// completeAttempts bounds retries of the completion transaction when
	// it loses a race on the open-incident index.
	completeAttempts = 3
)

// Store is the slice of the persistence layer the runner drives.
type Store interface {
	EnsureEntries(ctx context.Context) (int64, error)
	AcquireDue(ctx context.Context, limit int, workerID string, leaseTimeout time.Duration) ([]monitor.Job, error)
	CompleteJob(ctx context.Context, job monitor.Job, check monitor.CheckResult, builtins []monitor.ChannelType) (*store.CompleteResult, error)
}

// Prober executes one probe cycle. Injectable for testing.
type Prober interface {
	Run(ctx context.Context, req probe.Request) (probe.Outcome, error)
}

// Notifier is nudged after a committed transition so queued notifications
// leave without waiting for the next outbox sweep.
type Notifier interface {
	Nudge()
}

// Runner is one worker process's scheduler loop.
type Runner struct {
	store    Store
	prober   Prober
	notifier Notifier
	logger   *slog.Logger

	workerID     string
	pollInterval time.Duration
	leaseTimeout time.Duration
	batchSize    int
	builtins     []monitor.ChannelType

	sem chan struct{}
	wg  sync.WaitGroup
}

func NewRunner(cfg *config.Config, st Store, prober Prober, notifier Notifier, logger *slog.Logger) *Runner {
	workerID := "worker-" + uuid.NewString()

	// Builtin senders get one outbox row per transition even with no
	// channels configured in the database.
	var builtins []monitor.ChannelType
	if cfg.TelegramEnabled() {
		builtins = append(builtins, monitor.ChannelTelegram)
	}

	return &Runner{
		store:        st,
		prober:       prober,
		notifier:     notifier,
		logger:       logger.With("component", "worker", "worker_id", workerID),
		workerID:     workerID,
		pollInterval: cfg.PollInterval,
		leaseTimeout: cfg.LeaseTimeout,
		batchSize:    cfg.FetchBatchSize,
		builtins:     builtins,
		sem:          make(chan struct{}, cfg.CheckerConcurrency),
	}
}

// Run drives the loop until ctx is cancelled, then waits for in-flight
// probes to finish. Store outages back off exponentially; a healthy poll
// resets the backoff.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("worker started",
		"concurrency", cap(r.sem),
		"batch_size", r.batchSize,
		"poll_interval", r.pollInterval,
		"lease_timeout", r.leaseTimeout)

	if _, err := r.store.EnsureEntries(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("ensure scheduler entries", "error", err)
	}

	backoff := NewBackoff(1*time.Second, 1*time.Minute)
	lastEnsure := time.Now()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("worker stopping, draining in-flight probes")
			r.wg.Wait()
			r.logger.Info("worker stopped")
			return nil
		default:
		}

		if time.Since(lastEnsure) >= ensureInterval {
			if _, err := r.store.EnsureEntries(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("ensure scheduler entries", "error", err)
			}
			lastEnsure = time.Now()
		}

		// Poll only with free probe slots, and never lease more than we
		// can start right away.
		free := cap(r.sem) - len(r.sem)
		if free == 0 {
			r.sleep(ctx, r.pollInterval)
			continue
		}

		jobs, err := r.store.AcquireDue(ctx, min(free, r.batchSize), r.workerID, r.leaseTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			delay := backoff.Next()
			r.logger.Error("acquire due targets failed", "error", err, "retry_in", delay)
			r.sleep(ctx, delay)
			continue
		}
		backoff.Reset()

		if len(jobs) == 0 {
			r.sleep(ctx, r.pollInterval)
			continue
		}
		leasesAcquired.Add(float64(len(jobs)))

		for _, job := range jobs {
			if !r.acquireSlot(ctx) {
				// Shutdown mid-batch; unstarted leases expire on their own.
				break
			}
			r.wg.Add(1)
			go func(job monitor.Job) {
				defer r.wg.Done()
				defer func() { <-r.sem }()
				r.runJob(ctx, job)
			}(job)
		}
	}
}

func (r *Runner) acquireSlot(ctx context.Context) bool {
	select {
	case r.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

// runJob probes one leased target and commits the outcome. Contention on
// the open-incident index retries the whole completion transaction.
func (r *Runner) runJob(ctx context.Context, job monitor.Job) {
	probesInflight.Inc()
	defer probesInflight.Dec()

	outcome, err := r.prober.Run(ctx, probe.Request{
		URL:          job.Target.URL,
		Timeout:      job.Target.Timeout(),
		RetryCount:   job.Target.RetryCount,
		RetryBackoff: job.Target.RetryBackoff(),
	})
	if err != nil {
		// Cancelled mid-probe. Nothing is persisted; the lease expires and
		// another worker reruns the target.
		return
	}

	probesTotal.WithLabelValues(string(outcome.Status)).Inc()
	probeDuration.Observe(float64(outcome.LatencyMS) / 1000)
	if outcome.ErrorKind != nil {
		probeErrors.WithLabelValues(string(*outcome.ErrorKind)).Inc()
	}

	check := monitor.CheckResult{
		TargetID:   job.Target.ID,
		Status:     outcome.Status,
		HTTPStatus: outcome.HTTPStatus,
		LatencyMS:  &outcome.LatencyMS,
		Error:      outcome.ErrorKind,
		CheckedAt:  outcome.CheckedAt,
	}

	var result *store.CompleteResult
	err = retry.Do(
		func() error {
			var err error
			result, err = r.store.CompleteJob(ctx, job, check, r.builtins)
			return err
		},
		retry.RetryIf(store.IsContention),
		retry.Attempts(completeAttempts),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			completeRetries.Inc()
			r.logger.Debug("completion retried after contention",
				"target_id", job.Target.ID, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("complete job failed, lease will expire",
				"target_id", job.Target.ID, "url", job.Target.URL, "error", err)
		}
		return
	}
	if result == nil {
		r.logger.Info("scheduler entry gone, probe result discarded", "target_id", job.Target.ID)
		return
	}

	r.logger.Debug("check committed",
		"target_id", job.Target.ID,
		"status", result.Check.Status,
		"latency_ms", outcome.LatencyMS)

	if result.Transition == nil {
		return
	}
	switch *result.Transition {
	case monitor.TransitionOpened:
		incidentsOpened.Inc()
		r.logger.Warn("incident opened",
			"target_id", job.Target.ID,
			"url", job.Target.URL,
			"incident_id", result.Incident.ID)
	case monitor.TransitionResolved:
		incidentsResolved.Inc()
		r.logger.Info("incident resolved",
			"target_id", job.Target.ID,
			"url", job.Target.URL,
			"incident_id", result.Incident.ID)
	}
	if r.notifier != nil {
		r.notifier.Nudge()
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
