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
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Louvain Community Detection
// =============================================================================

// Louvain configuration constants.
const (
	// DefaultMaxLevels is the maximum number of aggregation levels.
	DefaultMaxLevels = 32

	// DefaultMaxPasses is the maximum local-move passes per level.
	DefaultMaxPasses = 100

	// DefaultConvergenceThreshold stops a level if modularity gain < this.
	DefaultConvergenceThreshold = 1e-7

	// DefaultResolution affects community granularity.
	// Higher values = smaller communities, lower = larger communities.
	DefaultResolution = 1.0
)

// LouvainOptions configures community detection.
type LouvainOptions struct {
	// MaxLevels limits aggregation levels. Default: 32
	MaxLevels int

	// MaxPasses limits local-move passes per level. Default: 100
	MaxPasses int

	// ConvergenceThreshold stops a level early if modularity gain < this.
	// Default: 1e-7
	ConvergenceThreshold float64

	// Resolution affects community granularity. Default: 1.0
	Resolution float64
}

// Validate checks options and applies defaults for invalid values.
func (o *LouvainOptions) Validate() {
	if o.MaxLevels <= 0 {
		o.MaxLevels = DefaultMaxLevels
	}
	if o.MaxPasses <= 0 {
		o.MaxPasses = DefaultMaxPasses
	}
	if o.ConvergenceThreshold <= 0 {
		o.ConvergenceThreshold = DefaultConvergenceThreshold
	}
	if o.Resolution <= 0 {
		o.Resolution = DefaultResolution
	}
}

// DefaultLouvainOptions returns sensible defaults.
func DefaultLouvainOptions() *LouvainOptions {
	return &LouvainOptions{
		MaxLevels:            DefaultMaxLevels,
		MaxPasses:            DefaultMaxPasses,
		ConvergenceThreshold: DefaultConvergenceThreshold,
		Resolution:           DefaultResolution,
	}
}

// Community is one detected group of nodes.
type Community struct {
	// ID is the community index; communities are numbered in order of
	// their smallest member ID.
	ID int `json:"id"`

	// Nodes contains the member node IDs in ascending order.
	Nodes []string `json:"nodes"`
}

// CommunityResult contains the full Louvain output.
type CommunityResult struct {
	Communities []Community `json:"communities"`

	// Modularity is the modularity Q of the final partition on the
	// undirected, unweighted graph.
	Modularity float64 `json:"modularity"`

	// Levels is the number of aggregation levels completed.
	Levels int `json:"levels"`

	// Converged indicates the last level made no moves.
	Converged bool `json:"converged"`

	NodeCount int `json:"node_count"`
	EdgeCount int `json:"edge_count"`
}

// Partition returns the community ID of every node.
func (r *CommunityResult) Partition() map[string]int {
	out := make(map[string]int, r.NodeCount)
	for _, c := range r.Communities {
		for _, id := range c.Nodes {
			out[id] = c.ID
		}
	}
	return out
}

// levelGraph is the (possibly aggregated) undirected weighted graph of one
// Louvain level.
type levelGraph struct {
	adj  []map[int]float64
	self []float64
	deg  []float64
	m    float64
}

func (lg *levelGraph) size() int { return len(lg.adj) }

// sortedNeighbours returns neighbour indices in ascending order.
func (lg *levelGraph) sortedNeighbours(i int) []int {
	out := make([]int, 0, len(lg.adj[i]))
	for j := range lg.adj[i] {
		out = append(out, j)
	}
	sort.Ints(out)
	return out
}

// DetectCommunities partitions the undirected graph with Louvain.
//
// Description:
//
//	Converts the graph to undirected form (every edge kind, including
//	violation-violation links, with unit weight) and runs Louvain:
//	repeated local moves of single nodes to the neighbouring community
//	with the largest modularity gain, then aggregation of communities into
//	super-nodes, until a level moves nothing. Nodes and candidate
//	communities are visited in ascending index order and ties keep the
//	earlier candidate, so the partition is deterministic.
//
// Inputs:
//
//   - ctx: Context for cancellation. Checked between passes.
//   - opts: Configuration options. If nil, defaults are used.
//
// Outputs:
//
//   - *CommunityResult: Partition and modularity.
//   - error: ctx.Err() when cancelled.
//
// Thread Safety: Safe for concurrent use (read-only on graph).
//
// Complexity: O(E) per pass, typically few passes and levels.
func (a *GraphAnalytics) DetectCommunities(ctx context.Context, opts *LouvainOptions) (*CommunityResult, error) {
	start := time.Now()
	n := len(a.ids)
	base := a.undirectedLevel()
	ctx, span := startAnalyticsSpan(ctx, "DetectCommunities", n, int(base.m))
	defer span.End()

	if opts == nil {
		opts = DefaultLouvainOptions()
	} else {
		opts.Validate()
	}
	span.SetAttributes(attribute.Float64("resolution", opts.Resolution))

	commOf := make([]int, n)
	for i := range commOf {
		commOf[i] = i
	}

	if n == 0 {
		span.AddEvent("empty_graph")
		return &CommunityResult{Converged: true}, nil
	}
	if base.m == 0 {
		span.AddEvent("no_edges")
		res := a.buildCommunityResult(commOf, 0)
		res.Converged = true
		return res, nil
	}

	lg := base
	levels := 0
	converged := false
	for levels < opts.MaxLevels {
		if err := ctx.Err(); err != nil {
			span.AddEvent("cancelled", trace.WithAttributes(attribute.Int("levels_completed", levels)))
			return nil, err
		}

		levelComm, moved, err := oneLevel(ctx, lg, opts)
		if err != nil {
			span.AddEvent("cancelled", trace.WithAttributes(attribute.Int("levels_completed", levels)))
			return nil, err
		}
		levels++
		if !moved {
			converged = true
			break
		}

		renumbered, count := renumber(levelComm)
		for i := range commOf {
			commOf[i] = renumbered[commOf[i]]
		}
		lg = aggregate(lg, renumbered, count)
	}

	res := a.buildCommunityResult(commOf, levelModularity(base, commOf, opts.Resolution))
	res.Levels = levels
	res.Converged = converged

	slog.Debug("Louvain community detection completed",
		slog.Int("levels", levels),
		slog.Int("communities", len(res.Communities)),
		slog.Float64("modularity", res.Modularity),
		slog.Int("node_count", n),
	)
	span.SetAttributes(
		attribute.Int("levels", levels),
		attribute.Int("communities_found", len(res.Communities)),
		attribute.Float64("modularity", res.Modularity),
		attribute.String("algorithm", "louvain"),
	)
	recordAnalyticsMetrics(ctx, "louvain", time.Since(start))
	return res, nil
}

// undirectedLevel builds the unit-weight undirected graph over every edge.
func (a *GraphAnalytics) undirectedLevel() *levelGraph {
	n := len(a.ids)
	lg := &levelGraph{
		adj:  make([]map[int]float64, n),
		self: make([]float64, n),
		deg:  make([]float64, n),
	}
	for i := range a.ids {
		lg.adj[i] = make(map[int]float64, len(a.linked[i]))
		for _, j := range a.linked[i] {
			lg.adj[i][j] = 1
			if j > i {
				lg.m++
			}
		}
		lg.deg[i] = float64(len(a.linked[i]))
	}
	return lg
}

// oneLevel runs local-move passes and returns the community of every
// level node and whether any node moved.
func oneLevel(ctx context.Context, lg *levelGraph, opts *LouvainOptions) ([]int, bool, error) {
	n := lg.size()
	comm := make([]int, n)
	tot := make([]float64, n)
	for i := 0; i < n; i++ {
		comm[i] = i
		tot[i] = lg.deg[i]
	}

	neighbours := make([][]int, n)
	for i := 0; i < n; i++ {
		neighbours[i] = lg.sortedNeighbours(i)
	}

	twoM := 2 * lg.m
	moved := false
	current := levelModularity(lg, comm, opts.Resolution)

	for pass := 0; pass < opts.MaxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		modified := false
		for i := 0; i < n; i++ {
			c0 := comm[i]
			ki := lg.deg[i]

			weights := make(map[int]float64)
			for _, j := range neighbours[i] {
				weights[comm[j]] += lg.adj[i][j]
			}

			tot[c0] -= ki
			best := c0
			bestGain := weights[c0] - opts.Resolution*tot[c0]*ki/twoM

			cands := make([]int, 0, len(weights))
			for c := range weights {
				cands = append(cands, c)
			}
			sort.Ints(cands)
			for _, c := range cands {
				gain := weights[c] - opts.Resolution*tot[c]*ki/twoM
				if gain > bestGain {
					best, bestGain = c, gain
				}
			}

			tot[best] += ki
			comm[i] = best
			if best != c0 {
				modified = true
				moved = true
			}
		}
		if !modified {
			break
		}
		next := levelModularity(lg, comm, opts.Resolution)
		if next-current < opts.ConvergenceThreshold {
			break
		}
		current = next
	}
	return comm, moved, nil
}

// renumber maps community labels to 0..k-1 in order of first appearance.
func renumber(comm []int) ([]int, int) {
	ids := make(map[int]int)
	out := make([]int, len(comm))
	for i, c := range comm {
		id, ok := ids[c]
		if !ok {
			id = len(ids)
			ids[c] = id
		}
		out[i] = id
	}
	return out, len(ids)
}

// aggregate collapses each community of lg into one node.
func aggregate(lg *levelGraph, comm []int, count int) *levelGraph {
	next := &levelGraph{
		adj:  make([]map[int]float64, count),
		self: make([]float64, count),
		deg:  make([]float64, count),
		m:    lg.m,
	}
	for c := 0; c < count; c++ {
		next.adj[c] = make(map[int]float64)
	}
	for i := 0; i < lg.size(); i++ {
		ci := comm[i]
		next.self[ci] += lg.self[i]
		for j, w := range lg.adj[i] {
			if j <= i {
				continue
			}
			cj := comm[j]
			if ci == cj {
				next.self[ci] += w
				continue
			}
			next.adj[ci][cj] += w
			next.adj[cj][ci] += w
		}
	}
	for c := 0; c < count; c++ {
		d := 2 * next.self[c]
		for _, w := range next.adj[c] {
			d += w
		}
		next.deg[c] = d
	}
	return next
}

// levelModularity computes Q = Σ_c [in_c/m - γ (tot_c/2m)²] on one level.
func levelModularity(lg *levelGraph, comm []int, resolution float64) float64 {
	if lg.m == 0 {
		return 0
	}
	in := make(map[int]float64)
	tot := make(map[int]float64)
	for i := 0; i < lg.size(); i++ {
		c := comm[i]
		tot[c] += lg.deg[i]
		in[c] += lg.self[i]
		for j, w := range lg.adj[i] {
			if j > i && comm[j] == c {
				in[c] += w
			}
		}
	}

	keys := make([]int, 0, len(tot))
	for c := range tot {
		keys = append(keys, c)
	}
	sort.Ints(keys)

	q := 0.0
	for _, c := range keys {
		share := tot[c] / (2 * lg.m)
		q += in[c]/lg.m - resolution*share*share
	}
	return q
}

// buildCommunityResult groups nodes and numbers communities by their
// smallest member ID.
func (a *GraphAnalytics) buildCommunityResult(commOf []int, q float64) *CommunityResult {
	groups := make(map[int][]string)
	for i, c := range commOf {
		groups[c] = append(groups[c], a.ids[i])
	}
	communities := make([]Community, 0, len(groups))
	for _, nodes := range groups {
		// a.ids is sorted and commOf is indexed by it, so nodes are sorted.
		communities = append(communities, Community{Nodes: nodes})
	}
	sort.Slice(communities, func(i, j int) bool {
		return communities[i].Nodes[0] < communities[j].Nodes[0]
	})
	for i := range communities {
		communities[i].ID = i
	}

	edges := 0
	for i := range a.linked {
		for _, j := range a.linked[i] {
			if j > i {
				edges++
			}
		}
	}
	return &CommunityResult{
		Communities: communities,
		Modularity:  q,
		NodeCount:   len(a.ids),
		EdgeCount:   edges,
	}
}
