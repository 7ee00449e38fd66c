// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/lawpath/services/lawpath/documents"
	"github.com/AleutianAI/lawpath/services/lawpath/lawcorpus"
	"github.com/AleutianAI/lawpath/services/lawpath/matcher"
	"github.com/AleutianAI/lawpath/services/lawpath/pathway"
	"github.com/AleutianAI/lawpath/services/lawpath/violations"
)

// DocumentStore reads and writes whole documents by location.
// docstore.Router satisfies it.
type DocumentStore interface {
	Read(ctx context.Context, location string) ([]byte, error)
	Write(ctx context.Context, location string, data []byte) error
}

// Paths addresses the documents of a full run. Inputs are required;
// outputs left empty are not written.
type Paths struct {
	Laws       string
	Violations string

	// SourceRoot enables discovery over this directory before matching.
	SourceRoot string

	AugmentedLaws string
	ViolationsOut string
	Matches       string
	Pathways      string

	// Canonical writes match and pathway documents as RFC 8785 JSON.
	Canonical bool
}

// Summary reports what a full run did.
type Summary struct {
	RunID      string                 `json:"run_id"`
	Augment    lawcorpus.AugmentStats `json:"augment"`
	Violations violations.LoadStats   `json:"violations"`
	Discovery  *DiscoverOutput        `json:"discovery,omitempty"`
	Match      matcher.Stats          `json:"match"`
	Pathways   pathway.Summary        `json:"pathways"`
	DurationMs int64                  `json:"duration_ms"`
}

// Run executes every stage over the documents in paths.
//
// Description:
//
//	Reads and schema-validates the law reference and violation documents,
//	embeds missing law and form vectors, optionally runs discovery and
//	merges its findings, matches every violation, builds the connection
//	graph and analyses pathways. Each configured output is written as it
//	becomes available, so a failure late in the run keeps earlier outputs.
//
// Inputs:
//
//	ctx - Cancellation aborts the run.
//	store - Document I/O.
//	paths - Input and output locations.
//
// Outputs:
//
//	*Summary - Stage statistics.
//	error - Input, schema, corpus or I/O failure.
func (p *Pipeline) Run(ctx context.Context, store DocumentStore, paths Paths) (*Summary, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "pipeline.Run")
	defer span.End()

	if paths.Laws == "" || paths.Violations == "" {
		return nil, spanErr(span, errors.New("pipeline: laws and violations locations are required"))
	}
	run := p.NewRun()
	summary := &Summary{RunID: run.ID}

	laws, err := p.readLaws(ctx, store, paths.Laws)
	if err != nil {
		return nil, spanErr(span, err)
	}
	if summary.Augment, err = p.PrepareLaws(ctx, laws); err != nil {
		return nil, spanErr(span, err)
	}
	if paths.AugmentedLaws != "" {
		var buf bytes.Buffer
		if err := laws.Encode(&buf); err != nil {
			return nil, spanErr(span, err)
		}
		if err := store.Write(ctx, paths.AugmentedLaws, buf.Bytes()); err != nil {
			return nil, spanErr(span, err)
		}
	}

	corpus, loadStats, err := p.readViolations(ctx, store, paths.Violations)
	if err != nil {
		return nil, spanErr(span, err)
	}
	summary.Violations = loadStats

	if paths.SourceRoot != "" {
		if summary.Discovery, err = p.Discover(ctx, paths.SourceRoot, corpus); err != nil {
			return nil, spanErr(span, err)
		}
	}
	if paths.ViolationsOut != "" {
		var buf bytes.Buffer
		if err := corpus.Encode(&buf); err != nil {
			return nil, spanErr(span, err)
		}
		if err := store.Write(ctx, paths.ViolationsOut, buf.Bytes()); err != nil {
			return nil, spanErr(span, err)
		}
	}

	match, err := p.Match(ctx, laws, corpus)
	if err != nil {
		return nil, spanErr(span, err)
	}
	summary.Match = match.Stats
	if err := writeDocument(ctx, store, paths.Matches, p.MatchDocument(run, match), paths.Canonical); err != nil {
		return nil, spanErr(span, err)
	}

	pw, err := p.Pathways(ctx, laws, match)
	if err != nil {
		return nil, spanErr(span, err)
	}
	summary.Pathways = pw.Analysis.Summary
	if err := writeDocument(ctx, store, paths.Pathways, p.PathwayDocument(run, pw), paths.Canonical); err != nil {
		return nil, spanErr(span, err)
	}

	summary.DurationMs = time.Since(start).Milliseconds()
	p.logger.Info("Run complete",
		slog.String("run_id", run.ID),
		slog.Int("matches", summary.Match.TotalMatches),
		slog.Int("violation_form_pairs", summary.Pathways.TotalViolationFormPairs),
		slog.Int64("duration_ms", summary.DurationMs),
	)
	return summary, nil
}

func (p *Pipeline) readLaws(ctx context.Context, store DocumentStore, location string) (*lawcorpus.Corpus, error) {
	data, err := store.Read(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("read law reference document: %w", err)
	}
	if err := documents.Validate(documents.KindLaws, data); err != nil {
		return nil, err
	}
	return p.LoadLaws(data)
}

func (p *Pipeline) readViolations(ctx context.Context, store DocumentStore, location string) (*violations.Corpus, violations.LoadStats, error) {
	data, err := store.Read(ctx, location)
	if err != nil {
		return nil, violations.LoadStats{}, fmt.Errorf("read violation document: %w", err)
	}
	if err := documents.Validate(documents.KindViolations, data); err != nil {
		return nil, violations.LoadStats{}, err
	}
	return p.LoadViolations(data)
}

// LoadViolations parses a violation document.
func (p *Pipeline) LoadViolations(data []byte) (*violations.Corpus, violations.LoadStats, error) {
	return violations.Parse(data, &violations.Options{Logger: p.logger, Now: p.now})
}

func writeDocument(ctx context.Context, store DocumentStore, location string, doc any, canonical bool) error {
	if location == "" {
		return nil
	}
	var buf bytes.Buffer
	if err := documents.Write(&buf, doc, canonical); err != nil {
		return err
	}
	return store.Write(ctx, location, buf.Bytes())
}
