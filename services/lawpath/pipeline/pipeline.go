// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline wires the lawpath stages into runnable units.
//
// Each stage is a method on Pipeline and can run alone: law corpus
// augmentation, violation matching, graph and pathway analysis, and
// discovery. Run chains them over documents addressed by path or URI.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/lawpath/services/lawpath/config"
	"github.com/AleutianAI/lawpath/services/lawpath/discovery"
	"github.com/AleutianAI/lawpath/services/lawpath/documents"
	"github.com/AleutianAI/lawpath/services/lawpath/embed"
	"github.com/AleutianAI/lawpath/services/lawpath/graph"
	"github.com/AleutianAI/lawpath/services/lawpath/lawcorpus"
	"github.com/AleutianAI/lawpath/services/lawpath/matcher"
	"github.com/AleutianAI/lawpath/services/lawpath/pathway"
	"github.com/AleutianAI/lawpath/services/lawpath/records"
	"github.com/AleutianAI/lawpath/services/lawpath/textbuild"
	"github.com/AleutianAI/lawpath/services/lawpath/vectorstore"
	"github.com/AleutianAI/lawpath/services/lawpath/violations"
)

// ErrNoEmbedder is returned by New when Deps.Embedder is nil.
var ErrNoEmbedder = errors.New("pipeline: embedder is required")

// Deps are the collaborators a Pipeline does not build itself.
type Deps struct {
	Embedder embed.Embedder

	// VectorStore enables ML discovery. Nil disables it.
	VectorStore vectorstore.Store

	Logger *slog.Logger

	// Now stamps documents and discovered records. Default: time.Now
	Now func() time.Time

	// RunID fixes the document run ID. Default: a fresh UUID per run.
	RunID string
}

// Pipeline runs lawpath stages with one configuration.
//
// Thread Safety: Safe for concurrent use; stages share no mutable state.
type Pipeline struct {
	cfg      config.Config
	embedder embed.Embedder
	vectors  vectorstore.Store
	logger   *slog.Logger
	now      func() time.Time
	runID    string
}

// New creates a pipeline. cfg is validated.
func New(cfg config.Config, deps Deps) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Embedder == nil {
		return nil, ErrNoEmbedder
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{
		cfg:      cfg,
		embedder: deps.Embedder,
		vectors:  deps.VectorStore,
		logger:   deps.Logger,
		now:      deps.Now,
		runID:    deps.RunID,
	}, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() config.Config { return p.cfg }

// Embedder returns the pipeline embedder.
func (p *Pipeline) Embedder() embed.Embedder { return p.embedder }

// NewRun stamps a document run.
func (p *Pipeline) NewRun() documents.Run {
	run := documents.NewRun(p.now)
	if p.runID != "" {
		run.ID = p.runID
	}
	return run
}

// =============================================================================
// Law corpus
// =============================================================================

// LoadLaws parses a law reference document without checking vectors.
func (p *Pipeline) LoadLaws(data []byte) (*lawcorpus.Corpus, error) {
	return lawcorpus.Parse(data, &lawcorpus.Options{Dimension: p.cfg.Dimension, Logger: p.logger})
}

// PrepareLaws embeds laws and forms missing vectors, then checks the corpus.
func (p *Pipeline) PrepareLaws(ctx context.Context, corpus *lawcorpus.Corpus) (lawcorpus.AugmentStats, error) {
	ctx, span := tracer.Start(ctx, "pipeline.PrepareLaws")
	defer span.End()

	stats, err := corpus.Augment(ctx, p.embedder)
	if err != nil {
		return stats, spanErr(span, fmt.Errorf("augment law corpus: %w", err))
	}
	if err := corpus.EmbedForms(ctx, p.embedder); err != nil {
		return stats, spanErr(span, fmt.Errorf("embed forms: %w", err))
	}
	if err := corpus.Check(); err != nil {
		return stats, spanErr(span, err)
	}
	span.SetAttributes(
		attribute.Int("lawcorpus.embedded", stats.Embedded),
		attribute.Int("lawcorpus.reused", stats.Reused),
	)
	return stats, nil
}

// =============================================================================
// Matching
// =============================================================================

// Embedded is a violation with its text and vector.
type Embedded struct {
	violations.Entry
	Text      string
	Embedding []float32
}

// EmbedViolations embeds every record of corpus in IterAll order.
func (p *Pipeline) EmbedViolations(ctx context.Context, corpus *violations.Corpus) ([]Embedded, error) {
	entries := corpus.IterAll()
	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = textbuild.ViolationText(e.Violation)
	}
	vecs, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed violations: %w", err)
	}
	out := make([]Embedded, len(entries))
	for i, e := range entries {
		out[i] = Embedded{Entry: e, Text: texts[i], Embedding: vecs[i]}
	}
	return out, nil
}

// MatchOutput is the result of Match.
type MatchOutput struct {
	Violations []Embedded
	Results    []matcher.Result
	Stats      matcher.Stats
	Laws       []lawcorpus.Entry
}

// Match embeds the violations and ranks laws for each.
func (p *Pipeline) Match(ctx context.Context, laws *lawcorpus.Corpus, corpus *violations.Corpus) (*MatchOutput, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "pipeline.Match",
		trace.WithAttributes(attribute.Int("violations.count", corpus.Len())),
	)
	defer span.End()

	embedded, err := p.EmbedViolations(ctx, corpus)
	if err != nil {
		return nil, spanErr(span, err)
	}

	m, err := matcher.New(laws.Enumerate(), &matcher.Options{
		TopK:       p.cfg.TopK,
		Workers:    p.cfg.Workers,
		JobTimeout: p.cfg.JobTimeout,
		Logger:     p.logger,
	})
	if err != nil {
		return nil, spanErr(span, err)
	}

	queries := make([]matcher.Query, len(embedded))
	for i, e := range embedded {
		queries[i] = matcher.Query{
			ID:        e.ID,
			Category:  e.Category,
			Violation: e.Violation,
			Embedding: e.Embedding,
			Text:      e.Text,
		}
	}
	results, stats, err := m.Match(ctx, queries)
	if err != nil {
		return nil, spanErr(span, err)
	}

	recordStage(ctx, "match", time.Since(start))
	p.logger.Info("Matched violations",
		slog.Int("violations", stats.TotalEvidence),
		slog.Int("laws", stats.TotalLaws),
		slog.Int("matches", stats.TotalMatches),
		slog.Duration("duration", time.Since(start)),
	)
	return &MatchOutput{Violations: embedded, Results: results, Stats: stats, Laws: m.Laws()}, nil
}

// MatchDocument renders a match run.
func (p *Pipeline) MatchDocument(run documents.Run, out *MatchOutput) *documents.MatchDocument {
	return documents.NewMatchDocument(run, documents.MatchSettings{
		Model:     p.embedder.Model(),
		Workers:   p.cfg.Workers,
		BatchSize: p.cfg.BatchSize,
		TopK:      p.cfg.TopK,
	}, out.Results, out.Stats)
}

// =============================================================================
// Graph and pathways
// =============================================================================

// PathwayOutput is the result of Pathways.
type PathwayOutput struct {
	Graph      *graph.Graph
	BuildStats graph.BuildStats
	Analysis   *pathway.Analysis
}

// Pathways builds the connection graph from a match run and analyses it.
// Form vectors must already be present (PrepareLaws).
func (p *Pipeline) Pathways(ctx context.Context, laws *lawcorpus.Corpus, match *MatchOutput) (*PathwayOutput, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "pipeline.Pathways")
	defer span.End()

	in := graph.BuildInput{
		Violations: make([]graph.ViolationNode, len(match.Violations)),
		Laws:       graph.LawNodes(match.Laws),
		Forms:      graph.FormNodes(laws.Forms()),
		Results:    match.Results,
	}
	for i, v := range match.Violations {
		in.Violations[i] = graph.ViolationNode{ID: v.ID, Label: violationLabel(v.Violation), Embedding: v.Embedding}
	}

	g, stats, err := graph.Build(ctx, in, p.buildOptions())
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("build graph: %w", err))
	}

	analysis, err := pathway.Analyze(ctx, g, &pathway.Options{
		MaxPathLength: p.cfg.MaxPathLength,
		Workers:       p.cfg.Workers,
		PairTimeout:   p.cfg.JobTimeout,
		Logger:        p.logger,
	})
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("analyze pathways: %w", err))
	}

	recordStage(ctx, "pathways", time.Since(start))
	return &PathwayOutput{Graph: g, BuildStats: stats, Analysis: analysis}, nil
}

func (p *Pipeline) buildOptions() *graph.BuildOptions {
	return &graph.BuildOptions{
		TauVL:             p.cfg.TauVL,
		TauVF:             p.cfg.TauVF,
		TauVV:             p.cfg.TauVV,
		FormsPerViolation: p.cfg.FormsPerViolation,
		Workers:           p.cfg.Workers,
		Logger:            p.logger,
	}
}

// PathwayDocument renders a pathway run.
func (p *Pipeline) PathwayDocument(run documents.Run, out *PathwayOutput) *documents.PathwayDocument {
	return documents.NewPathwayDocument(run, documents.PathwaySettings{
		MaxPathLength: p.cfg.MaxPathLength,
		Thresholds: documents.Thresholds{
			ViolationLaw:       p.cfg.TauVL,
			ViolationForm:      p.cfg.TauVF,
			ViolationViolation: p.cfg.TauVV,
		},
		Build: out.BuildStats,
	}, out.Analysis)
}

func violationLabel(v *records.Violation) string {
	if v == nil {
		return ""
	}
	switch {
	case v.EntityName != "" && v.ViolationType != "":
		return v.EntityName + ": " + v.ViolationType
	case v.EntityName != "":
		return v.EntityName
	default:
		return v.ViolationType
	}
}

// =============================================================================
// Discovery
// =============================================================================

// DiscoverOutput is the result of Discover.
type DiscoverOutput struct {
	Report discovery.Report      `json:"report"`
	Merge  violations.MergeStats `json:"merge"`
}

// Discover scans root (and the vector store, when configured) for new
// violations and merges them into corpus.
func (p *Pipeline) Discover(ctx context.Context, root string, corpus *violations.Corpus) (*DiscoverOutput, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "pipeline.Discover")
	defer span.End()

	opts := &discovery.Options{
		Root:       root,
		Workers:    p.cfg.Workers,
		JobTimeout: p.cfg.JobTimeout,
		Logger:     p.logger,
		Now:        p.now,
	}
	if p.vectors != nil {
		opts.ML = &discovery.MLDiscovery{
			Store:     p.vectors,
			Embedder:  p.embedder,
			Threshold: p.cfg.Discovery.MLThreshold,
			Logger:    p.logger,
		}
	}

	res, err := discovery.Run(ctx, corpus, opts)
	if err != nil {
		return nil, spanErr(span, err)
	}
	merged := corpus.Merge(res.Found)

	recordStage(ctx, "discover", time.Since(start))
	span.SetAttributes(attribute.Int("discovery.added", merged.Added))
	return &DiscoverOutput{Report: res.Report, Merge: merged}, nil
}

// IndexVectors embeds records that have text but no vector and stores all
// of them in the configured vector store.
func (p *Pipeline) IndexVectors(ctx context.Context, vectors []vectorstore.Vector) (int, error) {
	if p.vectors == nil {
		return 0, errors.New("pipeline: no vector store configured")
	}
	var texts []string
	var idx []int
	for i, v := range vectors {
		if len(v.Embedding) == 0 && v.Text != "" {
			texts = append(texts, v.Text)
			idx = append(idx, i)
		}
	}
	if len(texts) > 0 {
		vecs, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed vector texts: %w", err)
		}
		for j, i := range idx {
			vectors[i].Embedding = vecs[j]
		}
	}
	if err := p.vectors.Put(ctx, vectors); err != nil {
		return 0, err
	}
	return len(texts), nil
}

func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
