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
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Node ID prefixes. Node IDs are "<prefix><record id>".
const (
	ViolationPrefix = "violation:"
	LawPrefix       = "law:"
	FormPrefix      = "form:"
)

// ViolationNodeID returns the node ID of a violation, e.g. "violation:tax_forfeitures[0]".
func ViolationNodeID(id string) string { return ViolationPrefix + id }

// LawNodeID returns the node ID of a law path.
func LawNodeID(path string) string { return LawPrefix + path }

// FormNodeID returns the node ID of a form table entry.
func FormNodeID(id string) string { return FormPrefix + id }

// GraphState represents the lifecycle state of the graph.
type GraphState int

const (
	// GraphStateBuilding indicates the graph is accepting AddNode/AddEdge calls.
	GraphStateBuilding GraphState = iota

	// GraphStateReadOnly indicates the graph is frozen and read-only.
	GraphStateReadOnly
)

// String returns the string representation of the GraphState.
func (s GraphState) String() string {
	switch s {
	case GraphStateBuilding:
		return "building"
	case GraphStateReadOnly:
		return "readonly"
	default:
		return "unknown"
	}
}

// NodeKind is the partition a node belongs to.
type NodeKind int

const (
	NodeKindUnknown NodeKind = iota
	NodeKindViolation
	NodeKindLaw
	NodeKindForm
)

var nodeKindNames = map[NodeKind]string{
	NodeKindUnknown:   "unknown",
	NodeKindViolation: "violation",
	NodeKindLaw:       "law",
	NodeKindForm:      "form",
}

// String returns the kind name used in documents.
func (k NodeKind) String() string {
	if name, ok := nodeKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// EdgeKind defines the relationship an edge expresses.
type EdgeKind int

const (
	// EdgeKindUnknown indicates an unrecognized relationship.
	EdgeKindUnknown EdgeKind = iota

	// EdgeKindViolationLaw links a violation to a matched law.
	EdgeKindViolationLaw

	// EdgeKindViolationForm links a violation to a similar form.
	EdgeKindViolationForm

	// EdgeKindLawForm links a law to a form it owns.
	EdgeKindLawForm

	// EdgeKindViolationViolation links two similar violations. Used by
	// community detection only.
	EdgeKindViolationViolation

	// NumEdgeKinds is the number of edge kinds (for array sizing).
	NumEdgeKinds
)

var edgeKindNames = map[EdgeKind]string{
	EdgeKindUnknown:            "unknown",
	EdgeKindViolationLaw:       "violation_law",
	EdgeKindViolationForm:      "violation_form",
	EdgeKindLawForm:            "law_form",
	EdgeKindViolationViolation: "violation_violation",
}

// String returns the connection type name used in documents.
func (k EdgeKind) String() string {
	if name, ok := edgeKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Routable reports whether paths and centrality measures traverse edges of
// this kind.
func (k EdgeKind) Routable() bool {
	return k == EdgeKindViolationLaw || k == EdgeKindViolationForm || k == EdgeKindLawForm
}

// endpoints returns the node kinds an edge kind connects.
func (k EdgeKind) endpoints() (NodeKind, NodeKind) {
	switch k {
	case EdgeKindViolationLaw:
		return NodeKindViolation, NodeKindLaw
	case EdgeKindViolationForm:
		return NodeKindViolation, NodeKindForm
	case EdgeKindLawForm:
		return NodeKindLaw, NodeKindForm
	case EdgeKindViolationViolation:
		return NodeKindViolation, NodeKindViolation
	default:
		return NodeKindUnknown, NodeKindUnknown
	}
}

// Edge is a directed, weighted link.
type Edge struct {
	FromID string
	ToID   string
	Kind   EdgeKind

	// Similarity is the cosine the edge was derived from, clamped to [0, 1].
	Similarity float64

	// Weight is 1 - Similarity.
	Weight float64
}

type edgeKey struct {
	from, to string
	kind     EdgeKind
}

// Node is a violation, law or form in the graph.
type Node struct {
	// ID is the prefixed node ID.
	ID string

	Kind NodeKind

	// Label is a human-readable name (entity, law name or form name).
	Label string

	// Outgoing contains edges where this node is the source, sorted by
	// target ID after Freeze.
	Outgoing []*Edge

	// Incoming contains edges where this node is the target, sorted by
	// source ID after Freeze.
	Incoming []*Edge
}

// Graph is the violation/law/form connection graph.
//
// Thread Safety:
//
//	Graph is NOT safe for concurrent use during building. After Freeze()
//	it can be read from multiple goroutines, but no further modifications
//	are allowed.
//
// Lifecycle:
//
//  1. Create with NewGraph()
//  2. Build with AddNode() and AddEdge() calls, or use Build()
//  3. Call Freeze() to finalize
//  4. Query with Node(), Edges(), NewGraphAnalytics(), etc.
type Graph struct {
	nodes map[string]*Node
	edges []*Edge

	edgeIndex map[edgeKey]*Edge

	nodesByKind map[NodeKind][]*Node
	edgesByKind [NumEdgeKinds][]*Edge

	state GraphState

	// BuiltAtMilli is the Unix timestamp in milliseconds when Freeze() was called.
	BuiltAtMilli int64
}

// NewGraph creates a new empty graph in the Building state.
func NewGraph() *Graph {
	return &Graph{
		nodes:       make(map[string]*Node),
		edges:       make([]*Edge, 0),
		edgeIndex:   make(map[edgeKey]*Edge),
		nodesByKind: make(map[NodeKind][]*Node),
		state:       GraphStateBuilding,
	}
}

// State returns the current lifecycle state of the graph.
func (g *Graph) State() GraphState {
	return g.state
}

// IsFrozen returns true if the graph is in read-only mode.
func (g *Graph) IsFrozen() bool {
	return g.state == GraphStateReadOnly
}

// Freeze transitions the graph to read-only mode.
//
// Description:
//
//	Sorts every adjacency list and kind index by ID so later iteration is
//	deterministic. After calling Freeze(), AddNode and AddEdge return
//	ErrGraphFrozen. This operation is irreversible.
func (g *Graph) Freeze() {
	if g.state == GraphStateReadOnly {
		return
	}
	for _, n := range g.nodes {
		sort.Slice(n.Outgoing, func(i, j int) bool { return edgeLess(n.Outgoing[i], n.Outgoing[j]) })
		sort.Slice(n.Incoming, func(i, j int) bool { return edgeLess(n.Incoming[i], n.Incoming[j]) })
	}
	for kind, nodes := range g.nodesByKind {
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
		g.nodesByKind[kind] = nodes
	}
	for i := range g.edgesByKind {
		edges := g.edgesByKind[i]
		sort.Slice(edges, func(a, b int) bool { return edgeLess(edges[a], edges[b]) })
	}
	sort.Slice(g.edges, func(i, j int) bool { return edgeLess(g.edges[i], g.edges[j]) })

	g.state = GraphStateReadOnly
	g.BuiltAtMilli = time.Now().UnixMilli()
}

func edgeLess(a, b *Edge) bool {
	if a.FromID != b.FromID {
		return a.FromID < b.FromID
	}
	if a.ToID != b.ToID {
		return a.ToID < b.ToID
	}
	return a.Kind < b.Kind
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// AddNode adds a node.
//
// Errors:
//
//	ErrGraphFrozen - Graph has been frozen
//	ErrInvalidNode - Empty ID or unknown kind
//	ErrDuplicateNode - Node with same ID already exists
func (g *Graph) AddNode(id string, kind NodeKind, label string) (*Node, error) {
	if g.state == GraphStateReadOnly {
		return nil, ErrGraphFrozen
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidNode)
	}
	if kind == NodeKindUnknown || kind.String() == "unknown" {
		return nil, fmt.Errorf("%w: %s has unknown kind", ErrInvalidNode, id)
	}
	if _, exists := g.nodes[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}

	node := &Node{
		ID:       id,
		Kind:     kind,
		Label:    label,
		Outgoing: make([]*Edge, 0),
		Incoming: make([]*Edge, 0),
	}
	g.nodes[id] = node
	g.nodesByKind[kind] = append(g.nodesByKind[kind], node)
	return node, nil
}

// GetNode retrieves a node by its ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// AddEdge creates a directed edge derived from similarity.
//
// Description:
//
//	The similarity is clamped to [0, 1] and the weight set to 1 - similarity.
//	Both nodes must already exist and their kinds must fit the edge kind.
//
// Errors:
//
//	ErrGraphFrozen - Graph has been frozen
//	ErrSelfLoop - fromID == toID
//	ErrNodeNotFound - Source or target node doesn't exist
//	ErrInvalidEdgeType - Edge kind does not fit the endpoint kinds
//	ErrDuplicateEdge - An edge with the same (from, to, kind) exists
func (g *Graph) AddEdge(fromID, toID string, kind EdgeKind, similarity float64) (*Edge, error) {
	if g.state == GraphStateReadOnly {
		return nil, ErrGraphFrozen
	}
	if fromID == toID {
		return nil, fmt.Errorf("%w: %s", ErrSelfLoop, fromID)
	}
	from, ok := g.nodes[fromID]
	if !ok {
		return nil, fmt.Errorf("%w: source %s", ErrNodeNotFound, fromID)
	}
	to, ok := g.nodes[toID]
	if !ok {
		return nil, fmt.Errorf("%w: target %s", ErrNodeNotFound, toID)
	}
	wantFrom, wantTo := kind.endpoints()
	if wantFrom == NodeKindUnknown || from.Kind != wantFrom || to.Kind != wantTo {
		return nil, fmt.Errorf("%w: %s from %s to %s", ErrInvalidEdgeType, kind, from.Kind, to.Kind)
	}
	key := edgeKey{from: fromID, to: toID, kind: kind}
	if _, exists := g.edgeIndex[key]; exists {
		return nil, fmt.Errorf("%w: %s -> %s (%s)", ErrDuplicateEdge, fromID, toID, kind)
	}

	sim := clampUnit(similarity)
	edge := &Edge{
		FromID:     fromID,
		ToID:       toID,
		Kind:       kind,
		Similarity: sim,
		Weight:     1 - sim,
	}
	g.edges = append(g.edges, edge)
	g.edgeIndex[key] = edge
	g.edgesByKind[kind] = append(g.edgesByKind[kind], edge)
	from.Outgoing = append(from.Outgoing, edge)
	to.Incoming = append(to.Incoming, edge)
	return edge, nil
}

func clampUnit(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Edge returns the edge of the given kind between two nodes.
func (g *Graph) Edge(fromID, toID string, kind EdgeKind) (*Edge, bool) {
	e, ok := g.edgeIndex[edgeKey{from: fromID, to: toID, kind: kind}]
	return e, ok
}

// HasDirectEdge reports whether a routable edge fromID -> toID exists.
func (g *Graph) HasDirectEdge(fromID, toID string) (*Edge, bool) {
	for k := EdgeKind(1); k < NumEdgeKinds; k++ {
		if !k.Routable() {
			continue
		}
		if e, ok := g.Edge(fromID, toID, k); ok {
			return e, true
		}
	}
	return nil, false
}

// NodeIDs returns every node ID in ascending order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NodesOfKind returns the nodes of one kind, sorted by ID once frozen.
func (g *Graph) NodesOfKind(kind NodeKind) []*Node {
	return g.nodesByKind[kind]
}

// Edges returns every edge, sorted by (from, to, kind) once frozen.
func (g *Graph) Edges() []*Edge {
	return g.edges
}

// EdgesOfKind returns the edges of one kind.
func (g *Graph) EdgesOfKind(kind EdgeKind) []*Edge {
	if kind <= EdgeKindUnknown || kind >= NumEdgeKinds {
		return nil
	}
	return g.edgesByKind[kind]
}

// NodeCounts returns the number of nodes per kind name.
func (g *Graph) NodeCounts() map[string]int {
	out := make(map[string]int, len(g.nodesByKind))
	for kind, nodes := range g.nodesByKind {
		out[kind.String()] = len(nodes)
	}
	return out
}

// EdgeCounts returns the number of edges per kind name.
func (g *Graph) EdgeCounts() map[string]int {
	out := make(map[string]int, NumEdgeKinds)
	for k := EdgeKind(1); k < NumEdgeKinds; k++ {
		out[k.String()] = len(g.edgesByKind[k])
	}
	return out
}
