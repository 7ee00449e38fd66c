// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/lawpath/services/lawpath/embed"
	"github.com/AleutianAI/lawpath/services/lawpath/lawcorpus"
	"github.com/AleutianAI/lawpath/services/lawpath/matcher"
)

// Default builder thresholds.
const (
	// DefaultTauVL is the minimum cosine for a violation -> law edge.
	DefaultTauVL = 0.70

	// DefaultTauVV is the minimum cosine for a violation <-> violation link.
	DefaultTauVV = 0.70

	// DefaultFormsPerViolation is how many forms a violation links to.
	DefaultFormsPerViolation = 3

	// minTauVF is the floor of the derived violation -> form threshold.
	minTauVF = 0.5
)

// ViolationNode is a violation to place in the graph.
type ViolationNode struct {
	// ID is the violation corpus ID, e.g. "tax_forfeitures[0]".
	ID        string
	Label     string
	Embedding []float32
}

// LawNode is a law to place in the graph.
type LawNode struct {
	// ID is the law path.
	ID        string
	Label     string
	Embedding []float32
}

// FormNode is a form table entry to place in the graph.
type FormNode struct {
	ID string

	// LawID is the path of the owning law.
	LawID     string
	Label     string
	Embedding []float32
}

// BuildInput is everything the builder reads. Nothing in it is mutated.
type BuildInput struct {
	Violations []ViolationNode
	Laws       []LawNode
	Forms      []FormNode
	Results    []matcher.Result
}

// LawNodes converts matcher entries into law nodes.
func LawNodes(entries []lawcorpus.Entry) []LawNode {
	out := make([]LawNode, 0, len(entries))
	for _, e := range entries {
		out = append(out, LawNode{ID: e.LawID, Label: e.Law.Name, Embedding: e.Embedding})
	}
	return out
}

// FormNodes converts form table entries into form nodes.
func FormNodes(forms []*lawcorpus.FormEntry) []FormNode {
	out := make([]FormNode, 0, len(forms))
	for _, f := range forms {
		label := f.Form.FormName
		if label == "" {
			label = f.Form.Key()
		}
		out = append(out, FormNode{ID: f.ID, LawID: f.LawID, Label: label, Embedding: f.Embedding})
	}
	return out
}

// BuildOptions configures graph construction.
type BuildOptions struct {
	// TauVL is the violation -> law cosine threshold. Default: 0.70
	TauVL float64

	// TauVF is the violation -> form cosine threshold.
	// Default: max(0.5, TauVL - 0.10)
	TauVF float64

	// TauVV is the violation <-> violation cosine threshold. Default: 0.70
	TauVV float64

	// FormsPerViolation is the number of violation -> form edges kept per
	// violation. Default: 3
	FormsPerViolation int

	// SkipViolationLinks disables violation <-> violation edges.
	SkipViolationLinks bool

	// Workers bounds the parallel similarity scans. Default: runtime.NumCPU()
	Workers int

	Logger *slog.Logger
}

// Validate applies defaults for invalid values.
func (o *BuildOptions) Validate() {
	if o.TauVL <= 0 || o.TauVL > 1 {
		o.TauVL = DefaultTauVL
	}
	if o.TauVF <= 0 || o.TauVF > 1 {
		o.TauVF = math.Max(minTauVF, o.TauVL-0.10)
	}
	if o.TauVV <= 0 || o.TauVV > 1 {
		o.TauVV = DefaultTauVV
	}
	if o.FormsPerViolation <= 0 {
		o.FormsPerViolation = DefaultFormsPerViolation
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// DefaultBuildOptions returns the documented thresholds.
func DefaultBuildOptions() *BuildOptions {
	o := &BuildOptions{}
	o.Validate()
	return o
}

// BuildStats counts what a build produced and skipped.
type BuildStats struct {
	Violations int `json:"violations"`
	Laws       int `json:"laws"`
	Forms      int `json:"forms"`

	ViolationLawEdges       int `json:"violation_law_edges"`
	ViolationFormEdges      int `json:"violation_form_edges"`
	LawFormEdges            int `json:"law_form_edges"`
	ViolationViolationEdges int `json:"violation_violation_edges"`

	// SkippedEdges counts edges dropped because they referenced a missing
	// node, lacked vectors or were otherwise invalid.
	SkippedEdges int `json:"skipped_edges"`

	// SkippedNodes counts duplicate or invalid node IDs.
	SkippedNodes int `json:"skipped_nodes"`
}

// builder holds the state of one Build call.
type builder struct {
	g     *Graph
	opts  *BuildOptions
	stats BuildStats
}

// Build constructs and freezes the connection graph.
//
// Description:
//
//	Adds every violation, law and form node, then:
//	  - violation -> law for every match with cosine >= TauVL
//	  - violation -> form for the FormsPerViolation most similar forms with
//	    cosine >= TauVF
//	  - law -> form for every owned form, weighted by the law/form cosine
//	  - violation <-> violation for pairs with cosine >= TauVV, unless
//	    SkipViolationLinks is set
//
//	Every edge has weight 1 - cosine. Edges that reference missing nodes,
//	would be self-loops or duplicates, or lack comparable vectors are
//	skipped, logged and counted; they never fail the build.
//
// Inputs:
//
//   - ctx: Context for cancellation.
//   - in: Nodes and matcher results.
//   - opts: Options. If nil, defaults are used.
//
// Outputs:
//
//   - *Graph: The frozen graph.
//   - BuildStats: Node and edge counts.
//   - error: Only ctx.Err() on cancellation.
//
// Thread Safety: Safe for concurrent use; each call builds its own graph.
func Build(ctx context.Context, in BuildInput, opts *BuildOptions) (*Graph, BuildStats, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "graph.Build")
	defer span.End()

	if opts == nil {
		opts = DefaultBuildOptions()
	} else {
		opts.Validate()
	}
	span.SetAttributes(
		attribute.Int("violations", len(in.Violations)),
		attribute.Int("laws", len(in.Laws)),
		attribute.Int("forms", len(in.Forms)),
		attribute.Float64("tau_vl", opts.TauVL),
		attribute.Float64("tau_vf", opts.TauVF),
	)

	b := &builder{g: NewGraph(), opts: opts}
	b.addNodes(in)

	if err := b.addViolationLawEdges(ctx, in.Results); err != nil {
		return b.fail(ctx, span, start, err)
	}
	if err := b.addViolationFormEdges(ctx, in.Violations, in.Forms); err != nil {
		return b.fail(ctx, span, start, err)
	}
	b.addLawFormEdges(in.Laws, in.Forms)
	if !opts.SkipViolationLinks {
		if err := b.addViolationLinks(ctx, in.Violations); err != nil {
			return b.fail(ctx, span, start, err)
		}
	}

	b.g.Freeze()

	span.SetAttributes(
		attribute.Int("graph.node_count", b.g.NodeCount()),
		attribute.Int("graph.edge_count", b.g.EdgeCount()),
		attribute.Int("graph.skipped_edges", b.stats.SkippedEdges),
	)
	recordBuildMetrics(ctx, time.Since(start), b.g.NodeCount(), b.g.EdgeCount(), b.stats.SkippedEdges, true)
	opts.Logger.Info("connection graph built",
		slog.Int("nodes", b.g.NodeCount()),
		slog.Int("edges", b.g.EdgeCount()),
		slog.Int("violation_law_edges", b.stats.ViolationLawEdges),
		slog.Int("violation_form_edges", b.stats.ViolationFormEdges),
		slog.Int("law_form_edges", b.stats.LawFormEdges),
		slog.Int("violation_violation_edges", b.stats.ViolationViolationEdges),
		slog.Int("skipped_edges", b.stats.SkippedEdges),
		slog.Duration("duration", time.Since(start)),
	)
	return b.g, b.stats, nil
}

func (b *builder) fail(ctx context.Context, span trace.Span, start time.Time, err error) (*Graph, BuildStats, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "graph build cancelled")
	recordBuildMetrics(ctx, time.Since(start), 0, 0, b.stats.SkippedEdges, false)
	return nil, b.stats, err
}

func (b *builder) addNodes(in BuildInput) {
	add := func(id string, kind NodeKind, label string) bool {
		if _, err := b.g.AddNode(id, kind, label); err != nil {
			b.stats.SkippedNodes++
			b.opts.Logger.Warn("graph node skipped", slog.String("node", id), slog.String("error", err.Error()))
			return false
		}
		return true
	}
	for _, v := range in.Violations {
		if add(ViolationNodeID(v.ID), NodeKindViolation, v.Label) {
			b.stats.Violations++
		}
	}
	for _, l := range in.Laws {
		if add(LawNodeID(l.ID), NodeKindLaw, l.Label) {
			b.stats.Laws++
		}
	}
	for _, f := range in.Forms {
		if add(FormNodeID(f.ID), NodeKindForm, f.Label) {
			b.stats.Forms++
		}
	}
}

// addEdge adds one edge, logging and counting it as skipped on failure.
func (b *builder) addEdge(from, to string, kind EdgeKind, sim float64) bool {
	if _, err := b.g.AddEdge(from, to, kind, sim); err != nil {
		b.skip(from, to, kind, err)
		return false
	}
	return true
}

func (b *builder) skip(from, to string, kind EdgeKind, err error) {
	b.stats.SkippedEdges++
	level := slog.LevelWarn
	if errors.Is(err, ErrDuplicateEdge) {
		level = slog.LevelDebug
	}
	b.opts.Logger.Log(context.Background(), level, "graph edge skipped",
		slog.String("from", from),
		slog.String("to", to),
		slog.String("kind", kind.String()),
		slog.String("error", err.Error()),
	)
}

func (b *builder) addViolationLawEdges(ctx context.Context, results []matcher.Result) error {
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, m := range r.Matches {
			cos := m.Similarities.Cosine
			if cos < b.opts.TauVL {
				continue
			}
			if b.addEdge(ViolationNodeID(r.ViolationID), LawNodeID(m.LawID), EdgeKindViolationLaw, cos) {
				b.stats.ViolationLawEdges++
			}
		}
	}
	return nil
}

type scored struct {
	id  string
	cos float64
}

func (b *builder) addViolationFormEdges(ctx context.Context, violations []ViolationNode, forms []FormNode) error {
	top := make([][]scored, len(violations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for i, v := range violations {
		if len(v.Embedding) == 0 {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cands := make([]scored, 0, len(forms))
			for _, f := range forms {
				cos, ok := cosine(v.Embedding, f.Embedding)
				if !ok || cos < b.opts.TauVF {
					continue
				}
				cands = append(cands, scored{id: f.ID, cos: cos})
			}
			sort.Slice(cands, func(x, y int) bool {
				if cands[x].cos != cands[y].cos {
					return cands[x].cos > cands[y].cos
				}
				return cands[x].id < cands[y].id
			})
			if len(cands) > b.opts.FormsPerViolation {
				cands = cands[:b.opts.FormsPerViolation]
			}
			top[i] = cands
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, v := range violations {
		for _, f := range top[i] {
			if b.addEdge(ViolationNodeID(v.ID), FormNodeID(f.id), EdgeKindViolationForm, f.cos) {
				b.stats.ViolationFormEdges++
			}
		}
	}
	return nil
}

func (b *builder) addLawFormEdges(laws []LawNode, forms []FormNode) {
	vectors := make(map[string][]float32, len(laws))
	for _, l := range laws {
		vectors[l.ID] = l.Embedding
	}
	for _, f := range forms {
		from, to := LawNodeID(f.LawID), FormNodeID(f.ID)
		lawVec, ok := vectors[f.LawID]
		if !ok {
			b.skip(from, to, EdgeKindLawForm, fmt.Errorf("%w: owning law %s", ErrNodeNotFound, f.LawID))
			continue
		}
		cos, ok := cosine(lawVec, f.Embedding)
		if !ok {
			b.skip(from, to, EdgeKindLawForm, errors.New("missing or mismatched vectors"))
			continue
		}
		if b.addEdge(from, to, EdgeKindLawForm, cos) {
			b.stats.LawFormEdges++
		}
	}
}

func (b *builder) addViolationLinks(ctx context.Context, violations []ViolationNode) error {
	partners := make([][]scored, len(violations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for i := range violations {
		if len(violations[i].Embedding) == 0 {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for j := i + 1; j < len(violations); j++ {
				cos, ok := cosine(violations[i].Embedding, violations[j].Embedding)
				if ok && cos >= b.opts.TauVV {
					partners[i] = append(partners[i], scored{id: violations[j].ID, cos: cos})
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, v := range violations {
		a := ViolationNodeID(v.ID)
		for _, p := range partners[i] {
			other := ViolationNodeID(p.id)
			if b.addEdge(a, other, EdgeKindViolationViolation, p.cos) {
				b.stats.ViolationViolationEdges++
			}
			if b.addEdge(other, a, EdgeKindViolationViolation, p.cos) {
				b.stats.ViolationViolationEdges++
			}
		}
	}
	return nil
}

// cosine returns the cosine of two vectors, or false when either is empty
// or their lengths differ.
func cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	na, nb := embed.Norm(a), embed.Norm(b)
	if na == 0 || nb == 0 {
		return 0, false
	}
	c := embed.Dot(a, b) / (na * nb)
	if math.IsNaN(c) {
		return 0, false
	}
	return c, true
}
