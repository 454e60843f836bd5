// Package api serves lineage queries and ingestion over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/eclipse-efbt/efbt-sub000/internal/ingest"
	"github.com/eclipse-efbt/efbt-sub000/internal/lineage"
	"github.com/eclipse-efbt/efbt-sub000/internal/schema"
	"github.com/eclipse-efbt/efbt-sub000/pkg/core"
)

// Server is the lineage HTTP server.
type Server struct {
	store    core.Store
	engine   *lineage.Engine
	recorder *lineage.Recorder
	ingester *ingest.Ingester
	registry *schema.Registry

	addr              string
	readHeaderTimeout time.Duration
	shutdownTimeout   time.Duration
	watchSchema       bool
	logger            *slog.Logger
}

// Config holds configuration for the server.
type Config struct {
	Store    core.Store
	Engine   *lineage.Engine
	Recorder *lineage.Recorder
	Registry *schema.Registry

	Addr              string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	// WatchSchema reloads the registry when its file changes.
	WatchSchema bool
	Logger      *slog.Logger
}

// NewServer creates a new server instance.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		store:             cfg.Store,
		engine:            cfg.Engine,
		recorder:          cfg.Recorder,
		ingester:          ingest.New(cfg.Recorder, logger),
		registry:          cfg.Registry,
		addr:              cfg.Addr,
		readHeaderTimeout: cfg.ReadHeaderTimeout,
		shutdownTimeout:   cfg.ShutdownTimeout,
		watchSchema:       cfg.WatchSchema,
		logger:            logger,
	}
	if s.addr == "" {
		s.addr = ":8080"
	}
	if s.readHeaderTimeout <= 0 {
		s.readHeaderTimeout = 10 * time.Second
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = 5 * time.Second
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)
	s.routes(r)
	return r
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting lineage API", "addr", s.addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: s.readHeaderTimeout,
	}

	if s.watchSchema && s.registry.Path() != "" {
		eg.Go(func() error {
			return s.registry.Watch(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		s.logger.Debug("shutting down lineage API...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
