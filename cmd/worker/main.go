// The worker binary runs database migrations, the probe scheduler loop and
// the notification dispatcher. Any number of workers can share one database;
// scheduler leases keep them from double-probing.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/upmon/upmon/internal/alert"
	"github.com/upmon/upmon/internal/config"
	"github.com/upmon/upmon/internal/probe"
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

	if err := st.Migrate(ctx); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	senders := []alert.Sender{alert.NewLogSender(logger)}
	if cfg.TelegramEnabled() {
		senders = append(senders, alert.NewTelegramSender(
			cfg.TelegramBotToken, cfg.TelegramChatID, cfg.TelegramParseMode))
	}
	registry := alert.NewRegistry(senders...)

	dispatcher := alert.NewDispatcher(st, registry, logger, cfg.OutboxSweepInterval)
	runner := worker.NewRunner(cfg, st, probe.NewExecutor(nil), dispatcher, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(ctx) })
	g.Go(func() error { return dispatcher.Run(ctx) })

	if err := g.Wait(); err != nil {
		logger.Error("worker process failed", "error", err)
		os.Exit(1)
	}
	logger.Info("worker process exited cleanly")
}
