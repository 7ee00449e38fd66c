// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides the violation/law/form connection graph and the
// graph algorithms that run over it.
//
// The graph is directed and tripartite: violations point at the laws they
// match and at the forms they resemble, laws point at the forms they own.
// Optional violation-to-violation links (stored as two directed edges) join
// similar violations; they feed community detection only and are ignored
// by path finding and centrality.
//
// # Edge Weights
//
// Every edge carries a similarity s in [0, 1] and a weight 1 - s, so lower
// weights mean stronger links and shortest paths prefer the most similar
// chain.
//
// # Thread Safety
//
// Graph is NOT safe for concurrent use during building. It is designed for:
//   - Single-writer access during build (AddNode, AddEdge)
//   - Read-only access after Freeze()
//
// After Freeze(), the graph and every GraphAnalytics built on it can be
// read from multiple goroutines.
//
// # Determinism
//
// Node and edge iteration is always sorted by ID, so every algorithm returns
// the same result for the same node and edge sets regardless of insertion
// order.
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrGraphFrozen is returned when attempting to modify a frozen graph.
	ErrGraphFrozen = errors.New("graph is frozen and cannot be modified")

	// ErrGraphNotFrozen is returned when an analytics view is requested on
	// a graph that is still being built.
	ErrGraphNotFrozen = errors.New("graph is not frozen")

	// ErrNodeNotFound is returned when an edge references a non-existent node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateNode is returned when adding a node with an ID that
	// already exists in the graph.
	ErrDuplicateNode = errors.New("duplicate node ID")

	// ErrDuplicateEdge is returned when an edge with the same source, target
	// and kind already exists.
	ErrDuplicateEdge = errors.New("duplicate edge")

	// ErrSelfLoop is returned when an edge would connect a node to itself.
	ErrSelfLoop = errors.New("self-loop")

	// ErrInvalidNode is returned for nodes with an empty ID or unknown kind.
	ErrInvalidNode = errors.New("invalid node")

	// ErrInvalidEdgeType is returned when an edge kind does not fit the
	// kinds of its endpoints.
	ErrInvalidEdgeType = errors.New("invalid edge type for node kinds")
)
