// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/lawpath/services/lawpath/discovery"
	"github.com/AleutianAI/lawpath/services/lawpath/documents"
	"github.com/AleutianAI/lawpath/services/lawpath/lawcorpus"
	"github.com/AleutianAI/lawpath/services/lawpath/violations"
)

// HealthResponse is the body of GET /v1/health.
type HealthResponse struct {
	Status    string          `json:"status"`
	Model     string          `json:"model"`
	Dimension int             `json:"dimension"`
	Laws      lawcorpus.Stats `json:"laws"`
}

// DiscoverResponse is the body of POST /v1/discover.
type DiscoverResponse struct {
	Report     discovery.Report      `json:"report"`
	Merge      violations.MergeStats `json:"merge"`
	Violations violations.Document   `json:"violations"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Model:     s.pipeline.Embedder().Model(),
		Dimension: s.laws.Dimension(),
		Laws:      s.laws.Stats(),
	})
}

// handleMatch ranks laws for every violation in the posted document.
func (s *Server) handleMatch(c *gin.Context) {
	corpus, ok := s.readViolations(c, true)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	out, err := s.pipeline.Match(ctx, s.laws, corpus)
	if err != nil {
		s.fail(c, err)
		return
	}
	run := s.pipeline.NewRun()
	c.Set(runIDKey, run.ID)
	s.respond(c, s.pipeline.MatchDocument(run, out))
}

// handlePathways matches the posted violations and analyses the resulting
// connection graph.
func (s *Server) handlePathways(c *gin.Context) {
	corpus, ok := s.readViolations(c, true)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	match, err := s.pipeline.Match(ctx, s.laws, corpus)
	if err != nil {
		s.fail(c, err)
		return
	}
	pw, err := s.pipeline.Pathways(ctx, s.laws, match)
	if err != nil {
		s.fail(c, err)
		return
	}
	run := s.pipeline.NewRun()
	c.Set(runIDKey, run.ID)
	s.respond(c, s.pipeline.PathwayDocument(run, pw))
}

// handleDiscover runs discovery over the configured source root against
// the posted violations (or an empty corpus when the body is empty) and
// returns the merged document.
func (s *Server) handleDiscover(c *gin.Context) {
	corpus, ok := s.readViolations(c, false)
	if !ok {
		return
	}

	out, err := s.pipeline.Discover(c.Request.Context(), s.pipeline.Config().Discovery.Root, corpus)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, DiscoverResponse{
		Report:     out.Report,
		Merge:      out.Merge,
		Violations: corpus.Document(),
	})
}

// readViolations reads, schema-checks and parses the request body. An
// empty body is an error only when required is set. On failure the
// response has been written and ok is false.
func (s *Server) readViolations(c *gin.Context, required bool) (*violations.Corpus, bool) {
	body := c.Request.Body
	if s.cfg.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(c.Writer, body, s.cfg.MaxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request"})
		return nil, false
	}

	if len(bytes.TrimSpace(data)) == 0 {
		if required {
			c.JSON(http.StatusBadRequest, gin.H{"error": "violation document required"})
			return nil, false
		}
		return violations.New(nil), true
	}

	if err := documents.Validate(documents.KindViolations, data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	corpus, _, err := s.pipeline.LoadViolations(data)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return corpus, true
}

// respond writes v as JSON. With ?canonical=true the body is the RFC 8785
// canonical encoding used for document files.
func (s *Server) respond(c *gin.Context, v any) {
	canonical, _ := strconv.ParseBool(c.Query("canonical"))
	if !canonical {
		c.JSON(http.StatusOK, v)
		return
	}
	data, err := documents.Canonical(v)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	ctxErr := c.Request.Context().Err()
	switch {
	case errors.Is(err, documents.ErrInvalidDocument),
		errors.Is(err, violations.ErrInvalidDocument):
		status = http.StatusBadRequest
	case ctxErr != nil && errors.Is(err, ctxErr):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
