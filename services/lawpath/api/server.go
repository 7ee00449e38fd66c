// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes the lawpath pipeline over HTTP.
//
// The server holds one prepared law corpus for its lifetime. Violation
// documents are posted per request and never retained.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/lawpath/pkg/extensions"
	"github.com/AleutianAI/lawpath/pkg/telemetry"
	"github.com/AleutianAI/lawpath/services/lawpath/config"
	"github.com/AleutianAI/lawpath/services/lawpath/lawcorpus"
	"github.com/AleutianAI/lawpath/services/lawpath/pipeline"
)

// ServiceName labels server spans.
const ServiceName = "lawpath-api"

// shutdownTimeout bounds graceful shutdown once the run context ends.
const shutdownTimeout = 10 * time.Second

// Server serves match, pathway and discovery requests against one law
// corpus.
//
// Thread Safety: Safe for concurrent requests. The law corpus is read-only
// after NewServer.
type Server struct {
	pipeline *pipeline.Pipeline
	laws     *lawcorpus.Corpus
	cfg      config.ServerConfig
	logger   *slog.Logger
	opts     extensions.ServiceOptions
	router   *gin.Engine
}

// NewServer builds the router for a pipeline and a prepared law corpus.
//
// Description:
//
//	laws must already carry law and form vectors (Pipeline.PrepareLaws).
//	The router carries otelgin tracing and serves /metrics from the
//	telemetry prometheus handler when one is installed, otherwise from the
//	default prometheus registry. Every /v1 route except /v1/health passes
//	through opts.AuthProvider and is recorded with opts.AuditLogger.
//
// Inputs:
//
//	p - Pipeline whose configuration supplies the server settings.
//	laws - Prepared law corpus. Must not be nil.
//	logger - Request and lifecycle logger. Default: slog.Default()
//	opts - Auth and audit hooks. Nil fields default to no-ops.
//
// Outputs:
//
//	*Server - Ready to serve.
//	error - Non-nil when p or laws is nil.
func NewServer(p *pipeline.Pipeline, laws *lawcorpus.Corpus, logger *slog.Logger, opts extensions.ServiceOptions) (*Server, error) {
	if p == nil {
		return nil, errors.New("api: pipeline is required")
	}
	if laws == nil {
		return nil, errors.New("api: law corpus is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		pipeline: p,
		laws:     laws,
		cfg:      p.Config().Server,
		logger:   logger,
		opts:     opts.WithDefaults(),
	}
	s.initRouter()
	return s, nil
}

func (s *Server) initRouter() {
	s.router = gin.New()
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.router.Use(otelgin.Middleware(ServiceName))

	metrics := telemetry.MetricsHandler()
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	s.router.GET("/metrics", gin.WrapH(metrics))

	v1 := s.router.Group("/v1")
	v1.GET("/health", s.handleHealth)

	secured := v1.Group("", s.authenticate())
	{
		secured.POST("/match", s.handleMatch)
		secured.POST("/pathways", s.handlePathways)
		secured.POST("/discover", s.handleDiscover)
	}
}

// Router returns the gin engine, for tests and embedding.
func (s *Server) Router() *gin.Engine { return s.router }

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API listening", slog.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("api: serve %s: %w", s.cfg.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("API shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	if err := s.opts.AuditLogger.Flush(shutdownCtx); err != nil {
		return fmt.Errorf("api: flush audit log: %w", err)
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("Request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
