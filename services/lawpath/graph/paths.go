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
	"fmt"
	"math"
	"strings"
)

// PathSeparator joins node IDs in a path string.
const PathSeparator = "→"

// DefaultMaxSimplePaths caps the simple paths enumerated per pair.
const DefaultMaxSimplePaths = 1000

// Path is a sequence of node IDs connected by routable edges.
type Path struct {
	Nodes []string `json:"path"`

	// Weight is the summed edge weight.
	Weight float64 `json:"weight"`

	// MinSimilarity is the similarity of the weakest edge.
	MinSimilarity float64 `json:"similarity"`
}

// Hops returns the number of edges.
func (p Path) Hops() int {
	if len(p.Nodes) == 0 {
		return 0
	}
	return len(p.Nodes) - 1
}

// String joins the node IDs with PathSeparator.
func (p Path) String() string {
	return strings.Join(p.Nodes, PathSeparator)
}

// =============================================================================
// Dijkstra
// =============================================================================

type heapItem struct {
	node int
	dist float64
}

// distHeap orders by distance, then node index, so equal-distance nodes
// settle in ID order.
type distHeap []heapItem

func (h distHeap) Len() int { return len(h) }
func (h distHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist < h[j].dist
	}
	return h[i].node < h[j].node
}
func (h distHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *distHeap) Push(x any) { *h = append(*h, x.(heapItem)) }
func (h *distHeap) Pop() any {
	old := *h
	it := old[len(old)-1]
	*h = old[:len(old)-1]
	return it
}

// dijkstra runs single-source shortest paths over adj.
//
// dist is +Inf for unreachable nodes. pred holds the first predecessor that
// achieved the final distance (-1 for the source and unreachable nodes).
func dijkstra(adj [][]arc, src int) (dist []float64, pred []int) {
	n := len(adj)
	dist = make([]float64, n)
	pred = make([]int, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		pred[i] = -1
	}
	done := make([]bool, n)
	dist[src] = 0

	h := &distHeap{{node: src, dist: 0}}
	for h.Len() > 0 {
		it := heap.Pop(h).(heapItem)
		u := it.node
		if done[u] {
			continue
		}
		done[u] = true
		for _, e := range adj[u] {
			nd := dist[u] + e.w
			if nd < dist[e.to] {
				dist[e.to] = nd
				pred[e.to] = u
				heap.Push(h, heapItem{node: e.to, dist: nd})
			}
		}
	}
	return dist, pred
}

// ShortestPath returns the minimum-weight path between two nodes.
//
// Description:
//
//	Dijkstra over the routable edges. Edge weights are non-negative by
//	construction. Among equal-weight paths the one found through the
//	lowest node IDs wins.
//
// Outputs:
//
//	Path - The path. Zero value when ok is false.
//	bool - False when no path exists.
//	error - ErrNodeNotFound if either endpoint is missing.
//
// Thread Safety: Safe for concurrent use.
func (a *GraphAnalytics) ShortestPath(ctx context.Context, fromID, toID string) (Path, bool, error) {
	src, dst, err := a.endpoints(fromID, toID)
	if err != nil {
		return Path{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return Path{}, false, err
	}
	if src == dst {
		return Path{Nodes: []string{fromID}}, true, nil
	}

	dist, pred := dijkstra(a.out, src)
	if math.IsInf(dist[dst], 1) {
		return Path{}, false, nil
	}

	rev := []int{dst}
	for v := pred[dst]; v != -1; v = pred[v] {
		rev = append(rev, v)
	}
	idx := make([]int, len(rev))
	for i := range rev {
		idx[i] = rev[len(rev)-1-i]
	}
	return a.pathFrom(idx), true, nil
}

// =============================================================================
// All Simple Paths
// =============================================================================

// AllSimplePaths enumerates every simple path with at most cutoff edges.
//
// Description:
//
//	Depth-first search over the routable edges in node ID order, so the
//	returned paths are in lexicographic order of their node sequences.
//	Enumeration stops after limit paths (limit <= 0 means
//	DefaultMaxSimplePaths); truncated reports whether that happened.
//	With cutoff 1 the result is the direct edge, if any.
//
// Outputs:
//
//	[]Path - The paths found.
//	bool - True if enumeration stopped at the limit.
//	error - ErrNodeNotFound for unknown endpoints, or ctx.Err().
//
// Thread Safety: Safe for concurrent use.
func (a *GraphAnalytics) AllSimplePaths(ctx context.Context, fromID, toID string, cutoff, limit int) ([]Path, bool, error) {
	src, dst, err := a.endpoints(fromID, toID)
	if err != nil {
		return nil, false, err
	}
	if cutoff < 1 || src == dst {
		return nil, false, nil
	}
	if limit <= 0 {
		limit = DefaultMaxSimplePaths
	}

	var (
		paths     []Path
		truncated bool
		stack     = []int{src}
		onPath    = make([]bool, len(a.ids))
	)
	onPath[src] = true

	var visit func(u int) error
	visit = func(u int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, e := range a.out[u] {
			if truncated {
				return nil
			}
			if onPath[e.to] {
				continue
			}
			if e.to == dst {
				idx := append(append([]int(nil), stack...), dst)
				paths = append(paths, a.pathFrom(idx))
				if len(paths) >= limit {
					truncated = true
				}
				continue
			}
			if len(stack) >= cutoff {
				continue
			}
			onPath[e.to] = true
			stack = append(stack, e.to)
			if err := visit(e.to); err != nil {
				return err
			}
			stack = stack[:len(stack)-1]
			onPath[e.to] = false
		}
		return nil
	}
	if err := visit(src); err != nil {
		return nil, false, err
	}
	return paths, truncated, nil
}

func (a *GraphAnalytics) endpoints(fromID, toID string) (int, int, error) {
	src, ok := a.index[fromID]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrNodeNotFound, fromID)
	}
	dst, ok := a.index[toID]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrNodeNotFound, toID)
	}
	return src, dst, nil
}

// pathFrom materialises a path over consecutive routable arcs.
func (a *GraphAnalytics) pathFrom(idx []int) Path {
	p := Path{Nodes: make([]string, len(idx))}
	p.MinSimilarity = math.Inf(1)
	for i, v := range idx {
		p.Nodes[i] = a.ids[v]
		if i == 0 {
			continue
		}
		e, _ := a.arcBetween(idx[i-1], v)
		p.Weight += e.w
		p.MinSimilarity = math.Min(p.MinSimilarity, e.sim)
	}
	if len(idx) < 2 {
		p.MinSimilarity = 0
	}
	return p
}

// arcBetween returns the cheapest routable arc u -> v.
func (a *GraphAnalytics) arcBetween(u, v int) (arc, bool) {
	best, found := arc{}, false
	for _, e := range a.out[u] {
		if e.to == v && (!found || e.w < best.w) {
			best, found = e, true
		}
	}
	return best, found
}
