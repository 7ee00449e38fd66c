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
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// =============================================================================
// GraphAnalytics
// =============================================================================

// arc is one routable edge in the dense index.
type arc struct {
	to  int
	w   float64
	sim float64
}

// GraphAnalytics provides the algorithms that run over a frozen graph.
//
// Description:
//
//	Builds a dense, integer-indexed view of the graph once (nodes numbered
//	by ascending ID, adjacency sorted by neighbour ID) so every algorithm
//	iterates in the same order. Path finding and centrality use routable
//	edges only; community detection also sees violation-violation links.
//
// Thread Safety:
//
//	GraphAnalytics is safe for concurrent use (read-only queries).
//
// Performance:
//
//	| Operation | Complexity |
//	|-----------|------------|
//	| DegreeCentrality | O(V) |
//	| PageRank | O(k × E) |
//	| Betweenness | O(p × (E + V log V)) for p pivots |
//	| Closeness | O(V × (E + V log V)) |
//	| DetectCommunities | O(E) per pass |
//	| ShortestPath | O(E + V log V) |
type GraphAnalytics struct {
	graph *Graph

	ids   []string
	index map[string]int

	out [][]arc
	in  [][]arc

	// undirected holds routable neighbours in both directions, deduplicated.
	undirected [][]int

	// linked holds every neighbour, including violation-violation links.
	linked [][]int

	routableEdges int
}

// NewGraphAnalytics creates an analytics view over a frozen graph.
//
// Outputs:
//
//	*GraphAnalytics - The analytics instance.
//	error - ErrGraphNotFrozen if the graph is still building.
func NewGraphAnalytics(g *Graph) (*GraphAnalytics, error) {
	if g == nil || !g.IsFrozen() {
		return nil, ErrGraphNotFrozen
	}

	ids := g.NodeIDs()
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	a := &GraphAnalytics{
		graph:      g,
		ids:        ids,
		index:      index,
		out:        make([][]arc, len(ids)),
		in:         make([][]arc, len(ids)),
		undirected: make([][]int, len(ids)),
		linked:     make([][]int, len(ids)),
	}

	undirected := make([]map[int]struct{}, len(ids))
	linked := make([]map[int]struct{}, len(ids))
	for i := range ids {
		undirected[i] = make(map[int]struct{})
		linked[i] = make(map[int]struct{})
	}

	// g.Edges() is sorted by (from, to, kind), so out lists come out sorted.
	for _, e := range g.Edges() {
		u, v := index[e.FromID], index[e.ToID]
		linked[u][v] = struct{}{}
		linked[v][u] = struct{}{}
		if !e.Kind.Routable() {
			continue
		}
		a.routableEdges++
		a.out[u] = append(a.out[u], arc{to: v, w: e.Weight, sim: e.Similarity})
		a.in[v] = append(a.in[v], arc{to: u, w: e.Weight, sim: e.Similarity})
		undirected[u][v] = struct{}{}
		undirected[v][u] = struct{}{}
	}
	for i := range ids {
		sort.Slice(a.in[i], func(x, y int) bool { return a.in[i][x].to < a.in[i][y].to })
		a.undirected[i] = sortedKeys(undirected[i])
		a.linked[i] = sortedKeys(linked[i])
	}
	return a, nil
}

func sortedKeys(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// Graph returns the analysed graph.
func (a *GraphAnalytics) Graph() *Graph { return a.graph }

// NodeCount returns the number of nodes.
func (a *GraphAnalytics) NodeCount() int { return len(a.ids) }

// RoutableEdgeCount returns the number of edges paths and centrality see.
func (a *GraphAnalytics) RoutableEdgeCount() int { return a.routableEdges }

// =============================================================================
// Ranking
// =============================================================================

// RankedNode is a node with a centrality score.
type RankedNode struct {
	NodeID string  `json:"node_id"`
	Score  float64 `json:"score"`
}

// TopN returns the n highest scores, ties broken by ascending node ID.
func TopN(scores map[string]float64, n int) []RankedNode {
	ranked := make([]RankedNode, 0, len(scores))
	for id, s := range scores {
		ranked = append(ranked, RankedNode{NodeID: id, Score: s})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].NodeID < ranked[j].NodeID
	})
	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// =============================================================================
// Degree Centrality
// =============================================================================

// DegreeCentrality returns (in-degree + out-degree) / (n - 1) for every node.
//
// A graph with a single node scores it 1.
func (a *GraphAnalytics) DegreeCentrality(ctx context.Context) map[string]float64 {
	start := time.Now()
	_, span := startAnalyticsSpan(ctx, "DegreeCentrality", len(a.ids), a.routableEdges)
	defer span.End()

	scores := make(map[string]float64, len(a.ids))
	n := len(a.ids)
	if n == 1 {
		scores[a.ids[0]] = 1
		return scores
	}
	for i, id := range a.ids {
		scores[id] = float64(len(a.out[i])+len(a.in[i])) / float64(n-1)
	}
	recordAnalyticsMetrics(ctx, "degree", time.Since(start))
	return scores
}

// =============================================================================
// Graph Statistics
// =============================================================================

// Statistics describes the shape of the routable graph.
type Statistics struct {
	Density             float64 `json:"density"`
	IsStronglyConnected bool    `json:"is_strongly_connected"`
	IsWeaklyConnected   bool    `json:"is_weakly_connected"`
	NumberOfComponents  int     `json:"number_of_components"`
	AverageClustering   float64 `json:"average_clustering"`
}

// Statistics computes density, connectivity, weakly connected component
// count and the average clustering coefficient of the undirected graph.
//
// Description:
//
//	Density is E / (V × (V - 1)) over routable edges. An empty graph is
//	neither strongly nor weakly connected and has zero components.
//
// Thread Safety: Safe for concurrent use.
func (a *GraphAnalytics) Statistics(ctx context.Context) Statistics {
	start := time.Now()
	_, span := startAnalyticsSpan(ctx, "Statistics", len(a.ids), a.routableEdges)
	defer span.End()

	n := len(a.ids)
	var st Statistics
	if n == 0 {
		return st
	}
	if n > 1 {
		st.Density = float64(a.routableEdges) / float64(n*(n-1))
	}

	st.NumberOfComponents = a.weakComponents()
	st.IsWeaklyConnected = st.NumberOfComponents == 1
	st.IsStronglyConnected = st.IsWeaklyConnected && a.reachesAll(0, a.out) && a.reachesAll(0, a.in)
	st.AverageClustering = a.averageClustering()

	span.SetAttributes(
		attribute.Float64("density", st.Density),
		attribute.Int("components", st.NumberOfComponents),
	)
	recordAnalyticsMetrics(ctx, "statistics", time.Since(start))
	return st
}

func (a *GraphAnalytics) weakComponents() int {
	seen := make([]bool, len(a.ids))
	components := 0
	stack := make([]int, 0)
	for s := range a.ids {
		if seen[s] {
			continue
		}
		components++
		seen[s] = true
		stack = append(stack[:0], s)
		for len(stack) > 0 {
			u := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, v := range a.undirected[u] {
				if !seen[v] {
					seen[v] = true
					stack = append(stack, v)
				}
			}
		}
	}
	return components
}

func (a *GraphAnalytics) reachesAll(src int, adj [][]arc) bool {
	seen := make([]bool, len(a.ids))
	seen[src] = true
	count := 1
	queue := []int{src}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, e := range adj[u] {
			if !seen[e.to] {
				seen[e.to] = true
				count++
				queue = append(queue, e.to)
			}
		}
	}
	return count == len(a.ids)
}

// averageClustering is the mean local clustering coefficient over all nodes
// of the undirected routable graph; nodes with degree < 2 count as 0.
func (a *GraphAnalytics) averageClustering() float64 {
	n := len(a.ids)
	if n == 0 {
		return 0
	}
	neighbour := make([]map[int]struct{}, n)
	for i := range a.ids {
		neighbour[i] = make(map[int]struct{}, len(a.undirected[i]))
		for _, v := range a.undirected[i] {
			neighbour[i][v] = struct{}{}
		}
	}

	total := 0.0
	for i := range a.ids {
		nb := a.undirected[i]
		k := len(nb)
		if k < 2 {
			continue
		}
		triangles := 0
		for x := 0; x < k; x++ {
			for y := x + 1; y < k; y++ {
				if _, ok := neighbour[nb[x]][nb[y]]; ok {
					triangles++
				}
			}
		}
		total += 2 * float64(triangles) / float64(k*(k-1))
	}
	return total / float64(n)
}
