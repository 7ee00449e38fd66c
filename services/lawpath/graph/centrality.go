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
	"container/heap"
	"context"
	"log/slog"
	"math"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Betweenness and Closeness Centrality
// =============================================================================

// DefaultMaxPivots is the pivot budget for approximate betweenness.
const DefaultMaxPivots = 100

// CentralityOptions configures the shortest-path based centralities.
type CentralityOptions struct {
	// MaxPivots bounds the betweenness source sample: k = min(MaxPivots, V).
	// Default: 100
	MaxPivots int

	// Workers bounds the concurrent single-source searches.
	// Default: runtime.NumCPU()
	Workers int
}

// Validate applies defaults for invalid values.
func (o *CentralityOptions) Validate() {
	if o.MaxPivots <= 0 {
		o.MaxPivots = DefaultMaxPivots
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
}

// DefaultCentralityOptions returns sensible defaults.
func DefaultCentralityOptions() *CentralityOptions {
	o := &CentralityOptions{}
	o.Validate()
	return o
}

// pivots returns k node indices evenly strided over the sorted node order.
func pivots(n, k int) []int {
	if k >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	out := make([]int, k)
	for i := range out {
		out[i] = i * n / k
	}
	return out
}

// Betweenness computes weighted betweenness centrality from sampled pivots.
//
// Description:
//
//	Runs Brandes' accumulation from k = min(MaxPivots, V) source pivots
//	chosen at an even stride over the sorted node IDs, using Dijkstra with
//	edge weights as distances. Scores are normalised by 1/((V-1)(V-2)) and
//	scaled by V/k to extrapolate from the sample. Graphs with fewer than
//	three nodes are returned unnormalised.
//
//	Pivot searches run in parallel; their contributions are summed in pivot
//	order so results do not depend on scheduling.
//
// Inputs:
//
//   - ctx: Context for cancellation.
//   - opts: Configuration options. If nil, defaults are used.
//
// Outputs:
//
//   - map[string]float64: Score per node.
//   - error: ctx.Err() when cancelled.
//
// Thread Safety: Safe for concurrent use.
func (a *GraphAnalytics) Betweenness(ctx context.Context, opts *CentralityOptions) (map[string]float64, error) {
	start := time.Now()
	ctx, span := startAnalyticsSpan(ctx, "Betweenness", len(a.ids), a.routableEdges)
	defer span.End()

	if opts == nil {
		opts = DefaultCentralityOptions()
	} else {
		opts.Validate()
	}

	n := len(a.ids)
	if n == 0 {
		return map[string]float64{}, nil
	}
	sources := pivots(n, opts.MaxPivots)
	span.SetAttributes(attribute.Int("pivots", len(sources)))

	contrib := make([][]float64, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, s := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			contrib[i] = brandesSource(a.out, s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.AddEvent("cancelled")
		return nil, err
	}

	bc := make([]float64, n)
	for _, c := range contrib {
		for v, x := range c {
			bc[v] += x
		}
	}

	if n > 2 {
		scale := 1 / float64((n-1)*(n-2))
		scale *= float64(n) / float64(len(sources))
		for v := range bc {
			bc[v] *= scale
		}
	}

	slog.Debug("Betweenness completed",
		slog.Int("pivots", len(sources)),
		slog.Int("node_count", n),
	)
	recordAnalyticsMetrics(ctx, "betweenness", time.Since(start))
	return a.scoreMap(bc), nil
}

// brandesSource returns the dependency of every node on shortest paths
// from s, excluding s itself.
func brandesSource(adj [][]arc, s int) []float64 {
	n := len(adj)
	dist := make([]float64, n)
	sigma := make([]float64, n)
	preds := make([][]int, n)
	done := make([]bool, n)
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	dist[s] = 0
	sigma[s] = 1

	order := make([]int, 0, n)
	h := &distHeap{{node: s, dist: 0}}
	for h.Len() > 0 {
		it := heap.Pop(h).(heapItem)
		u := it.node
		if done[u] {
			continue
		}
		done[u] = true
		order = append(order, u)
		for _, e := range adj[u] {
			v := e.to
			nd := dist[u] + e.w
			switch {
			case nd < dist[v]:
				dist[v] = nd
				sigma[v] = sigma[u]
				preds[v] = append(preds[v][:0], u)
				heap.Push(h, heapItem{node: v, dist: nd})
			case nd == dist[v] && !done[v]:
				sigma[v] += sigma[u]
				preds[v] = append(preds[v], u)
			}
		}
	}

	delta := make([]float64, n)
	out := make([]float64, n)
	for i := len(order) - 1; i >= 0; i-- {
		w := order[i]
		for _, v := range preds[w] {
			delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
		}
		if w != s {
			out[w] = delta[w]
		}
	}
	return out
}

// Closeness computes closeness centrality with edge weights as distances.
//
// Description:
//
//	For a node u, r is the number of nodes that can reach u (including u)
//	and D the sum of their weighted distances to u. The score is
//	(r-1)/D scaled by (r-1)/(V-1), so nodes reachable from only part of
//	the graph are not over-rated. Nodes nothing reaches score 0.
//
// Thread Safety: Safe for concurrent use.
func (a *GraphAnalytics) Closeness(ctx context.Context, opts *CentralityOptions) (map[string]float64, error) {
	start := time.Now()
	ctx, span := startAnalyticsSpan(ctx, "Closeness", len(a.ids), a.routableEdges)
	defer span.End()

	if opts == nil {
		opts = DefaultCentralityOptions()
	} else {
		opts.Validate()
	}

	n := len(a.ids)
	scores := make([]float64, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for u := range a.ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Distances to u are distances from u over reversed edges.
			dist, _ := dijkstra(a.in, u)
			reached, total := 0, 0.0
			for _, d := range dist {
				if !math.IsInf(d, 1) {
					reached++
					total += d
				}
			}
			if total > 0 && n > 1 {
				r := float64(reached - 1)
				scores[u] = r / total * (r / float64(n-1))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.AddEvent("cancelled")
		return nil, err
	}

	recordAnalyticsMetrics(ctx, "closeness", time.Since(start))
	return a.scoreMap(scores), nil
}
