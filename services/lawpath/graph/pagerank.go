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
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// PageRank
// =============================================================================

// PageRank configuration constants.
const (
	// DefaultDampingFactor is the probability of following a link (vs random jump).
	DefaultDampingFactor = 0.85

	// DefaultMaxIterations is the maximum iterations before stopping.
	DefaultMaxIterations = 100

	// DefaultConvergence is the threshold for convergence detection.
	// Power iteration stops when the L1 change of the score vector < n × this.
	DefaultConvergence = 1e-6
)

// PageRankOptions configures the PageRank algorithm.
type PageRankOptions struct {
	// DampingFactor must be in [0, 1]. Default: 0.85
	DampingFactor float64

	// MaxIterations must be > 0. Default: 100
	MaxIterations int

	// Convergence must be > 0. Default: 1e-6
	Convergence float64
}

// Validate checks options and applies defaults for invalid values.
func (o *PageRankOptions) Validate() {
	if o.DampingFactor < 0 || o.DampingFactor > 1 {
		o.DampingFactor = DefaultDampingFactor
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.Convergence <= 0 {
		o.Convergence = DefaultConvergence
	}
}

// DefaultPageRankOptions returns sensible defaults.
func DefaultPageRankOptions() *PageRankOptions {
	return &PageRankOptions{
		DampingFactor: DefaultDampingFactor,
		MaxIterations: DefaultMaxIterations,
		Convergence:   DefaultConvergence,
	}
}

// PageRankResult contains the output of PageRank computation.
type PageRankResult struct {
	// Scores maps nodeID to PageRank score. Scores sum to approximately 1.0.
	Scores map[string]float64

	// Iterations is the actual number of iterations performed.
	Iterations int

	// Converged indicates whether the algorithm converged before MaxIterations.
	Converged bool

	// Delta is the final L1 score change.
	Delta float64
}

// PageRank computes PageRank scores over the routable edges.
//
// Description:
//
//	Uses power iteration over the sorted node order. Every out-link of a
//	node gets an equal share of its rank; edge weights are distances and do
//	not bias the walk. Sink nodes (forms, and laws without forms) have
//	their rank redistributed evenly across all nodes so no rank leaks out
//	of the graph.
//
// Inputs:
//
//   - ctx: Context for cancellation. Must not be nil.
//   - opts: Configuration options. If nil, defaults are used.
//
// Outputs:
//
//   - *PageRankResult: Scores for all nodes, iteration count, convergence status.
//     Returns an empty, converged result for an empty graph.
//
// Thread Safety: Safe for concurrent use.
//
// Complexity: O(k × E) where k = iterations to converge.
func (a *GraphAnalytics) PageRank(ctx context.Context, opts *PageRankOptions) *PageRankResult {
	start := time.Now()
	ctx, span := startAnalyticsSpan(ctx, "PageRank", len(a.ids), a.routableEdges)
	defer span.End()

	n := len(a.ids)
	if n == 0 {
		span.AddEvent("empty_graph")
		return &PageRankResult{Scores: make(map[string]float64), Converged: true}
	}

	if opts == nil {
		opts = DefaultPageRankOptions()
	} else {
		opts.Validate()
	}
	span.SetAttributes(
		attribute.Float64("damping_factor", opts.DampingFactor),
		attribute.Int("max_iterations", opts.MaxIterations),
	)

	N := float64(n)
	d := opts.DampingFactor

	scores := make([]float64, n)
	next := make([]float64, n)
	for i := range scores {
		scores[i] = 1 / N
	}

	sinks := make([]int, 0)
	for i := range a.ids {
		if len(a.out[i]) == 0 {
			sinks = append(sinks, i)
		}
	}
	span.SetAttributes(attribute.Int("sink_node_count", len(sinks)))

	var (
		iterations int
		converged  bool
		delta      float64
	)
	for iter := 0; iter < opts.MaxIterations; iter++ {
		if ctx.Err() != nil {
			span.AddEvent("cancelled", trace.WithAttributes(
				attribute.Int("iterations_completed", iter),
			))
			return &PageRankResult{Scores: a.scoreMap(scores), Iterations: iter, Delta: delta}
		}

		sinkMass := 0.0
		for _, s := range sinks {
			sinkMass += scores[s]
		}
		base := (1-d)/N + d*sinkMass/N

		for i := range next {
			next[i] = base
		}
		for u := range a.ids {
			deg := len(a.out[u])
			if deg == 0 {
				continue
			}
			share := d * scores[u] / float64(deg)
			for _, e := range a.out[u] {
				next[e.to] += share
			}
		}

		delta = 0
		for i := range next {
			delta += math.Abs(next[i] - scores[i])
		}
		scores, next = next, scores
		iterations = iter + 1

		if delta < N*opts.Convergence {
			converged = true
			break
		}
	}

	slog.Debug("PageRank completed",
		slog.Int("iterations", iterations),
		slog.Bool("converged", converged),
		slog.Float64("delta", delta),
		slog.Int("node_count", n),
	)
	span.SetAttributes(
		attribute.Int("iterations", iterations),
		attribute.Bool("converged", converged),
	)
	recordAnalyticsMetrics(ctx, "pagerank", time.Since(start))

	return &PageRankResult{
		Scores:     a.scoreMap(scores),
		Iterations: iterations,
		Converged:  converged,
		Delta:      delta,
	}
}

func (a *GraphAnalytics) scoreMap(scores []float64) map[string]float64 {
	out := make(map[string]float64, len(scores))
	for i, s := range scores {
		out[a.ids[i]] = s
	}
	return out
}
