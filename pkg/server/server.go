// Copyright 2025 The Doclens Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server wires the doclens HTTP API: the gated analysis endpoint,
// the usage endpoint, health, and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/doclens/doclens/pkg/admission"
	"github.com/doclens/doclens/pkg/analyzer"
	"github.com/doclens/doclens/pkg/auth"
	"github.com/doclens/doclens/pkg/config"
	"github.com/doclens/doclens/pkg/observability"
)

// RouteAnalyze is the route name the analysis endpoint is gated under;
// rate limit policies and env overrides reference it.
const RouteAnalyze = "analyze"

// Server is the doclens HTTP server.
type Server struct {
	cfg      *config.ServerConfig
	guard    *admission.Guard
	analyzer analyzer.Analyzer

	validator auth.TokenValidator
	metrics   *observability.Metrics

	httpServer *http.Server
}

// Option configures the server.
type Option func(*Server)

// WithValidator sets the bearer token validator. Without one, every
// caller takes the guest path.
func WithValidator(v auth.TokenValidator) Option {
	return func(s *Server) {
		s.validator = v
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates the server.
func New(cfg *config.ServerConfig, guard *admission.Guard, a analyzer.Analyzer, opts ...Option) (*Server, error) {
	if guard == nil {
		return nil, fmt.Errorf("admission guard is required")
	}
	if a == nil {
		return nil, fmt.Errorf("analyzer is required")
	}

	s := &Server{
		cfg:      cfg,
		guard:    guard,
		analyzer: a,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout.Std(),
		WriteTimeout: cfg.WriteTimeout.Std(),
	}

	return s, nil
}

// routes builds the router. The analyze endpoint sits behind the
// admission gate; usage resolves identity through the same gate in
// read-only mode, so an exhausted caller can still see their allowance.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	gate := admission.MiddlewareConfig{
		Guard:     s.guard,
		Validator: s.validator,
		OnDecision: func(d admission.Decision) {
			s.metrics.RecordAdmission(context.Background(), RouteAnalyze, string(d.Code))
		},
	}

	r.Route("/v1", func(r chi.Router) {
		r.With(admission.Gate(RouteAnalyze, gate)).Post("/analyze", s.handleAnalyze)
		r.With(admission.Gate("usage", admission.MiddlewareConfig{
			Guard:     s.guard,
			Validator: s.validator,
			ReadOnly:  true,
		})).Get("/usage", s.handleUsage)
	})

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", observability.Handler())

	return r
}

// Start runs the server until ctx is canceled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("HTTP server listening", "address", s.cfg.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Std())
		defer cancel()

		slog.Info("HTTP server shutting down")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// requestLogger logs one line per request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
		)
	})
}
