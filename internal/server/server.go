// Package server implements the REST API and websocket surface: target and
// channel management, check history, incidents, uptime reports, health and
// Prometheus endpoints. It is read-mostly; all probing happens in the worker
// process.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/upmon/upmon/internal/availability"
	"github.com/upmon/upmon/internal/config"
	"github.com/upmon/upmon/internal/monitor"
)

// Store is the slice of the persistence layer the handlers read and write.
type Store interface {
	Ping(ctx context.Context) error

	CreateTarget(ctx context.Context, t monitor.Target) (monitor.Target, error)
	GetTarget(ctx context.Context, id int64) (monitor.Target, error)
	ListTargets(ctx context.Context, onlyActive bool) ([]monitor.Target, error)
	UpdateTarget(ctx context.Context, t monitor.Target) (monitor.Target, error)
	DeleteTarget(ctx context.Context, id int64) error

	ListChecks(ctx context.Context, targetID int64, limit int) ([]monitor.CheckResult, error)
	LatestCheck(ctx context.Context, targetID int64) (monitor.CheckResult, error)

	GetIncident(ctx context.Context, id int64) (monitor.Incident, error)
	ListIncidents(ctx context.Context, targetID *int64, resolved *bool, limit int) ([]monitor.Incident, error)

	ListChannels(ctx context.Context) ([]monitor.NotificationChannel, error)
	CreateChannel(ctx context.Context, ch monitor.NotificationChannel) (monitor.NotificationChannel, error)
	DeleteChannel(ctx context.Context, id int64) error
}

// Server is the API process's HTTP server.
type Server struct {
	cfg      *config.Config
	store    Store
	engine   *availability.Engine
	hub      *Hub
	logger   *slog.Logger
	validate *validator.Validate
}

func New(cfg *config.Config, st Store, engine *availability.Engine, hub *Hub, logger *slog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		engine:   engine,
		hub:      hub,
		logger:   logger.With("component", "api"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Router builds the full route tree with middleware applied.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	if s.hub != nil {
		r.Get("/ws/events", s.hub.ServeWS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/targets", func(r chi.Router) {
			r.Get("/", s.handleListTargets)
			r.Post("/", s.handleCreateTarget)
			r.Route("/{targetID}", func(r chi.Router) {
				r.Get("/", s.handleGetTarget)
				r.Put("/", s.handleUpdateTarget)
				r.Patch("/", s.handleUpdateTarget)
				r.Delete("/", s.handleDeleteTarget)
				r.Get("/checks", s.handleListChecks)
				r.Get("/checks/latest", s.handleLatestCheck)
			})
		})
		r.Route("/incidents", func(r chi.Router) {
			r.Get("/", s.handleListIncidents)
			r.Get("/{incidentID}", s.handleGetIncident)
		})
		r.Get("/metrics/uptime", s.handleUptime)
		r.Route("/channels", func(r chi.Router) {
			r.Get("/", s.handleListChannels)
			r.Post("/", s.handleCreateChannel)
			r.Delete("/{channelID}", s.handleDeleteChannel)
		})
	})

	return r
}

// Start serves the API until ctx is cancelled, then shuts down gracefully
// within the configured timeout. The listener is bound before Start spawns
// the serve goroutine, so a nil-error start means the port is held.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.APIAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	lc := &net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.APIAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.APIAddr, err)
	}
	s.logger.Info("api listening", "addr", s.cfg.APIAddr)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.logger.Info("api shutting down", "timeout", s.cfg.ShutdownTimeout)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		s.logger.Info("api stopped")
		return nil
	case err := <-errCh:
		return err
	}
}
