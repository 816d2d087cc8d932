// The api binary serves the REST API, the websocket fleet stream and the
// retention janitor. It never probes; the worker binary owns the schedule.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/upmon/upmon/internal/availability"
	"github.com/upmon/upmon/internal/config"
	"github.com/upmon/upmon/internal/server"
	"github.com/upmon/upmon/internal/store"
	"github.com/upmon/upmon/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("store init failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	engine := availability.NewEngine(st, cfg.MetricsCacheTTL)
	hub := server.NewHub(st, logger)
	srv := server.New(cfg, st, engine, hub, logger)
	janitor := worker.NewJanitor(st, logger, cfg.PruneSchedule, cfg.RetentionDays)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(ctx) })
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return janitor.Run(ctx) })

	if err := g.Wait(); err != nil {
		logger.Error("api process failed", "error", err)
		os.Exit(1)
	}
	logger.Info("api process exited cleanly")
}
