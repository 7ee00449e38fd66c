// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pathway finds and ranks the routes from violations to reporting
// forms through the connection graph.
//
// For every (violation, form) pair it records the direct edge, the
// Dijkstra shortest path and every simple path up to a length bound. It then
// selects per-pair optimal pathways, ranks nodes by four centrality
// measures and partitions the graph into communities.
//
// # Thread Safety
//
// Analyze is safe for concurrent use; it only reads the frozen graph.
package pathway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/lawpath/services/lawpath/graph"
)

// Defaults.
const (
	DefaultMaxPathLength  = 3
	DefaultTopCentrality  = 20
	DefaultTopCommonPaths = 20
	DefaultSamplePairs    = 10
	DefaultPairTimeout    = 30 * time.Second
)

// Algorithm tags on path entries.
const (
	AlgorithmDirect      = "direct"
	AlgorithmDijkstra    = "dijkstra"
	AlgorithmSimplePaths = "all_simple_paths"
)

// Options configures Analyze.
type Options struct {
	// MaxPathLength is the simple-path cutoff L in edges. Default: 3
	MaxPathLength int

	// MaxPathsPerPair caps simple-path enumeration per pair.
	// Default: graph.DefaultMaxSimplePaths
	MaxPathsPerPair int

	// TopCentrality is how many nodes each centrality ranking keeps. Default: 20
	TopCentrality int

	// TopCommonPaths is how many path strings most_common keeps. Default: 20
	TopCommonPaths int

	// SamplePairs is how many pairs the report samples. Default: 10
	SamplePairs int

	// Workers bounds concurrent pair searches. Default: runtime.NumCPU()
	Workers int

	// PairTimeout is the per-pair search budget. Default: 30s
	PairTimeout time.Duration

	PageRank   *graph.PageRankOptions
	Centrality *graph.CentralityOptions
	Louvain    *graph.LouvainOptions

	Logger *slog.Logger
}

// Validate applies defaults for invalid values.
func (o *Options) Validate() {
	if o.MaxPathLength <= 0 {
		o.MaxPathLength = DefaultMaxPathLength
	}
	if o.MaxPathsPerPair <= 0 {
		o.MaxPathsPerPair = graph.DefaultMaxSimplePaths
	}
	if o.TopCentrality <= 0 {
		o.TopCentrality = DefaultTopCentrality
	}
	if o.TopCommonPaths <= 0 {
		o.TopCommonPaths = DefaultTopCommonPaths
	}
	if o.SamplePairs <= 0 {
		o.SamplePairs = DefaultSamplePairs
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.PairTimeout <= 0 {
		o.PairTimeout = DefaultPairTimeout
	}
	if o.Centrality == nil {
		o.Centrality = &graph.CentralityOptions{Workers: o.Workers}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// =============================================================================
// Result Types
// =============================================================================

// Entry is one route between a violation and a form.
type Entry struct {
	Path      []string `json:"path"`
	Length    int      `json:"length"`
	Algorithm string   `json:"algorithm"`
	Weight    float64  `json:"weight"`

	// Similarity is the similarity of the weakest edge on the path.
	Similarity float64 `json:"similarity"`
}

// String joins the path with graph.PathSeparator.
func (e Entry) String() string {
	return graph.Path{Nodes: e.Path}.String()
}

// Pair holds every route found for one (violation, form) pair.
type Pair struct {
	// Key is "<violation node>→<form node>".
	Key         string  `json:"pair"`
	ViolationID string  `json:"violation"`
	FormID      string  `json:"form"`
	Entries     []Entry `json:"paths"`
	HasDirect   bool    `json:"has_direct"`
	Truncated   bool    `json:"truncated,omitempty"`
}

// PairKey returns the pair key for two node IDs.
func PairKey(violationID, formID string) string {
	return violationID + graph.PathSeparator + formID
}

// Summary counts pairs and routes.
type Summary struct {
	// TotalViolationFormPairs is the number of pairs with at least one path.
	TotalViolationFormPairs int `json:"total_violation_form_pairs"`
	TotalPathsFound         int `json:"total_paths_found"`
	DirectPaths             int `json:"direct_paths"`
	IndirectPaths           int `json:"indirect_paths"`

	PairsAnalyzed  int `json:"pairs_analyzed"`
	NoPathPairs    int `json:"no_path_pairs"`
	TruncatedPairs int `json:"truncated_pairs"`
	Timeouts       int `json:"timeouts"`
}

// Centrality holds the top-ranked nodes of each measure.
type Centrality struct {
	Degree      []graph.RankedNode `json:"degree"`
	Betweenness []graph.RankedNode `json:"betweenness"`
	Closeness   []graph.RankedNode `json:"closeness"`
	PageRank    []graph.RankedNode `json:"pagerank"`
}

// Communities is the community partition in document form.
type Communities struct {
	Communities  map[string][]string `json:"communities"`
	NCommunities int                 `json:"n_communities"`
	Modularity   float64             `json:"modularity"`
}

// Analysis is the full output of Analyze.
type Analysis struct {
	NodeCounts  map[string]int   `json:"node_counts"`
	EdgeCounts  map[string]int   `json:"edge_counts"`
	Statistics  graph.Statistics `json:"graph_statistics"`
	Summary     Summary          `json:"pathways"`
	Centrality  Centrality       `json:"centrality"`
	Communities Communities      `json:"communities"`
	Optimal     OptimalPathways  `json:"optimal_pathways"`
	Pairs       []Pair           `json:"-"`
}

// SamplePaths returns the routes of the first n pairs in key order.
func (a *Analysis) SamplePaths(n int) map[string][]Entry {
	out := make(map[string][]Entry)
	for i, p := range a.Pairs {
		if i >= n {
			break
		}
		out[p.Key] = p.Entries
	}
	return out
}

// Pair returns the routes of one pair, if any path was found.
func (a *Analysis) Pair(violationID, formID string) (Pair, bool) {
	key := PairKey(violationID, formID)
	i := sort.Search(len(a.Pairs), func(i int) bool { return a.Pairs[i].Key >= key })
	if i < len(a.Pairs) && a.Pairs[i].Key == key {
		return a.Pairs[i], true
	}
	return Pair{}, false
}

// =============================================================================
// Analyze
// =============================================================================

// Analyze runs the pathway engine over a frozen graph.
//
// Description:
//
//	Enumerates every (violation, form) pair in node ID order and searches
//	them in parallel, each under its own timeout. A pair whose search
//	times out is counted and skipped; a pair without a path is recorded as
//	no path. Centrality, communities and graph statistics are computed on
//	the same analytics view, then optimal pathways are selected.
//
// Inputs:
//
//   - ctx: Context for cancellation.
//   - g: Frozen connection graph.
//   - opts: Options. If nil, defaults are used.
//
// Outputs:
//
//   - *Analysis: The report content. Pairs are sorted by key.
//   - error: graph.ErrGraphNotFrozen or ctx.Err().
//
// Thread Safety: Safe for concurrent use.
func Analyze(ctx context.Context, g *graph.Graph, opts *Options) (*Analysis, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "pathway.Analyze")
	defer span.End()

	if opts == nil {
		opts = &Options{}
	}
	opts.Validate()

	ga, err := graph.NewGraphAnalytics(g)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "graph not frozen")
		return nil, err
	}

	violations := g.NodesOfKind(graph.NodeKindViolation)
	forms := g.NodesOfKind(graph.NodeKindForm)
	span.SetAttributes(
		attribute.Int("violations", len(violations)),
		attribute.Int("forms", len(forms)),
		attribute.Int("max_path_length", opts.MaxPathLength),
	)

	pairs, summary, err := searchPairs(ctx, ga, violations, forms, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pathway search cancelled")
		return nil, err
	}

	centrality, err := rankCentrality(ctx, ga, opts)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	comm, err := ga.DetectCommunities(ctx, opts.Louvain)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	analysis := &Analysis{
		NodeCounts:  g.NodeCounts(),
		EdgeCounts:  g.EdgeCounts(),
		Statistics:  ga.Statistics(ctx),
		Summary:     summary,
		Centrality:  centrality,
		Communities: communitiesDoc(comm),
		Optimal:     SelectOptimal(pairs, opts.TopCommonPaths),
		Pairs:       pairs,
	}

	span.SetAttributes(
		attribute.Int("pairs_with_paths", summary.TotalViolationFormPairs),
		attribute.Int("paths_found", summary.TotalPathsFound),
		attribute.Int("timeouts", summary.Timeouts),
	)
	recordAnalyze(ctx, time.Since(start), summary)
	opts.Logger.Info("pathway analysis complete",
		slog.Int("pairs_analyzed", summary.PairsAnalyzed),
		slog.Int("pairs_with_paths", summary.TotalViolationFormPairs),
		slog.Int("direct_paths", summary.DirectPaths),
		slog.Int("indirect_paths", summary.IndirectPaths),
		slog.Int("communities", len(comm.Communities)),
		slog.Duration("duration", time.Since(start)),
	)
	return analysis, nil
}

// pairOutcome is the result slot of one pair search.
type pairOutcome struct {
	pair    Pair
	found   bool
	timeout bool
}

func searchPairs(ctx context.Context, ga *graph.GraphAnalytics, violations, forms []*graph.Node, opts *Options) ([]Pair, Summary, error) {
	outcomes := make([]pairOutcome, len(violations)*len(forms))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for vi, v := range violations {
		for fi, f := range forms {
			slot := vi*len(forms) + fi
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				pctx, cancel := context.WithTimeout(gctx, opts.PairTimeout)
				defer cancel()

				pair, err := FindPaths(pctx, ga, v.ID, f.ID, opts.MaxPathLength, opts.MaxPathsPerPair)
				switch {
				case err == nil:
					outcomes[slot] = pairOutcome{pair: pair, found: len(pair.Entries) > 0}
					return nil
				case gctx.Err() != nil:
					return gctx.Err()
				case errors.Is(err, context.DeadlineExceeded):
					opts.Logger.Warn("pathway search timed out",
						slog.String("violation", v.ID),
						slog.String("form", f.ID),
						slog.Duration("budget", opts.PairTimeout),
					)
					outcomes[slot] = pairOutcome{timeout: true}
					return nil
				default:
					opts.Logger.Warn("pathway search failed",
						slog.String("violation", v.ID),
						slog.String("form", f.ID),
						slog.String("error", err.Error()),
					)
					return nil
				}
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, Summary{}, err
	}

	var s Summary
	s.PairsAnalyzed = len(outcomes)
	pairs := make([]Pair, 0)
	for _, o := range outcomes {
		switch {
		case o.timeout:
			s.Timeouts++
		case !o.found:
			s.NoPathPairs++
		default:
			pairs = append(pairs, o.pair)
			s.TotalViolationFormPairs++
			s.TotalPathsFound += len(o.pair.Entries)
			if o.pair.Truncated {
				s.TruncatedPairs++
			}
			for _, e := range o.pair.Entries {
				if e.Length == 1 {
					s.DirectPaths++
				} else {
					s.IndirectPaths++
				}
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
	return pairs, s, nil
}

// FindPaths collects the direct edge, the Dijkstra path and all simple
// paths up to maxLength edges for one pair, tagged by algorithm.
//
// A pair without any route returns a Pair with no entries and a nil error.
func FindPaths(ctx context.Context, ga *graph.GraphAnalytics, violationID, formID string, maxLength, limit int) (Pair, error) {
	pair := Pair{
		Key:         PairKey(violationID, formID),
		ViolationID: violationID,
		FormID:      formID,
	}

	if e, ok := ga.Graph().Edge(violationID, formID, graph.EdgeKindViolationForm); ok {
		pair.HasDirect = true
		pair.Entries = append(pair.Entries, Entry{
			Path:       []string{violationID, formID},
			Length:     1,
			Algorithm:  AlgorithmDirect,
			Weight:     e.Weight,
			Similarity: e.Similarity,
		})
	}

	p, ok, err := ga.ShortestPath(ctx, violationID, formID)
	if err != nil {
		return Pair{}, err
	}
	if ok && p.Hops() > 0 {
		pair.Entries = append(pair.Entries, entryFrom(p, AlgorithmDijkstra))
	}

	simple, truncated, err := ga.AllSimplePaths(ctx, violationID, formID, maxLength, limit)
	if err != nil {
		return Pair{}, err
	}
	pair.Truncated = truncated
	for _, sp := range simple {
		pair.Entries = append(pair.Entries, entryFrom(sp, AlgorithmSimplePaths))
	}
	return pair, nil
}

func entryFrom(p graph.Path, algorithm string) Entry {
	return Entry{
		Path:       p.Nodes,
		Length:     p.Hops(),
		Algorithm:  algorithm,
		Weight:     p.Weight,
		Similarity: p.MinSimilarity,
	}
}

// =============================================================================
// Centrality and Communities
// =============================================================================

func rankCentrality(ctx context.Context, ga *graph.GraphAnalytics, opts *Options) (Centrality, error) {
	var c Centrality
	c.Degree = graph.TopN(ga.DegreeCentrality(ctx), opts.TopCentrality)

	bc, err := ga.Betweenness(ctx, opts.Centrality)
	if err != nil {
		return c, fmt.Errorf("betweenness: %w", err)
	}
	c.Betweenness = graph.TopN(bc, opts.TopCentrality)

	cc, err := ga.Closeness(ctx, opts.Centrality)
	if err != nil {
		return c, fmt.Errorf("closeness: %w", err)
	}
	c.Closeness = graph.TopN(cc, opts.TopCentrality)

	pr := ga.PageRank(ctx, opts.PageRank)
	if err := ctx.Err(); err != nil {
		return c, fmt.Errorf("pagerank: %w", err)
	}
	c.PageRank = graph.TopN(pr.Scores, opts.TopCentrality)
	return c, nil
}

func communitiesDoc(res *graph.CommunityResult) Communities {
	out := Communities{
		Communities:  make(map[string][]string, len(res.Communities)),
		NCommunities: len(res.Communities),
		Modularity:   res.Modularity,
	}
	for _, c := range res.Communities {
		out.Communities[strconv.Itoa(c.ID)] = c.Nodes
	}
	return out
}
