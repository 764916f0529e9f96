/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server assembles the HTTP process: the chi router, the
// playback engine, and the metrics/health surface around it.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir-playback/internal/api"
	"github.com/friendsincode/grimnir-playback/internal/config"
	"github.com/friendsincode/grimnir-playback/internal/db"
	"github.com/friendsincode/grimnir-playback/internal/engine"
	"github.com/friendsincode/grimnir-playback/internal/events"
	"github.com/friendsincode/grimnir-playback/internal/eventbus"
	"github.com/friendsincode/grimnir-playback/internal/telemetry"
)

// Server bundles the HTTP listener, the playback engine, and their
// shared dependencies.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db     *gorm.DB
	bus    *events.Bus
	engine *engine.Engine
	api    *api.API

	metricsServer *http.Server
}

// New constructs the server and wires dependencies, but does not yet
// start the engine or accept connections; call Start for that.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.MetricsMiddleware)
	// SSE connections on /api/v1/events are long-lived; exempt them from
	// the request timeout rather than trying to guess a stream deadline.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(30 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/v1/events" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:    addr,
		Handler: srv.router,
		// SSE responses are streamed indefinitely; only bound the time
		// spent reading the request.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	srv.metricsServer = &http.Server{
		Addr:    cfg.MetricsBind,
		Handler: telemetry.Handler(),
	}

	return srv, nil
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	s.engine = engine.New(database, s.bus, s.logger)

	settings, err := engine.LoadSettings(context.Background(), database)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	s.api = api.New(database, s.engine, s.bus, settings.APISharedSecret, s.logger)

	natsCfg := eventbus.DefaultNATSConfig()
	natsCfg.URL = s.cfg.NATSURL
	bridge := eventbus.NewNATSBridge(natsCfg, s.bus, s.logger)
	s.DeferClose(bridge.Close)

	return nil
}

// Start brings the playback engine up (opening the audio device,
// restoring the queue) and begins serving HTTP and metrics traffic.
// It blocks until ctx is cancelled or the HTTP listener fails.
func (s *Server) Start(ctx context.Context) error {
	if err := s.engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	errc := make(chan error, 2)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("api server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- fmt.Errorf("api server: %w", err)
			return
		}
		errc <- nil
	}()
	go func() {
		s.logger.Info().Str("addr", s.metricsServer.Addr).Msg("metrics server listening")
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- fmt.Errorf("metrics server: %w", err)
			return
		}
		errc <- nil
	}()

	select {
	case <-ctx.Done():
		return s.Close()
	case err := <-errc:
		closeErr := s.Close()
		if err != nil {
			return err
		}
		return closeErr
	}
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close shuts down the listeners and the engine, then releases every
// resource registered with DeferClose, in reverse registration order.
func (s *Server) Close() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.engine != nil {
		if err := s.engine.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook run by Close, in reverse order.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// securityHeadersMiddleware sets the baseline response headers every
// endpoint gets, including the SSE stream. HSTS is only advertised once
// the request arrives over (or is proxied from) HTTPS, so a plain HTTP
// deployment never sends it.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.api.Routes(s.router)
}
