// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package documents defines the match and pathway output documents, their
// canonical encoding and JSON Schema validation of every document kind.
//
// Output is byte-stable: documents are marshalled with sorted map keys and
// then transformed to RFC 8785 canonical form, so two runs over the same
// inputs with the same clock and run ID produce identical bytes.
package documents

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/AleutianAI/lawpath/services/lawpath/graph"
	"github.com/AleutianAI/lawpath/services/lawpath/matcher"
	"github.com/AleutianAI/lawpath/services/lawpath/pathway"
	"github.com/AleutianAI/lawpath/services/lawpath/records"
)

// ErrInvalidDocument is returned when a document fails schema validation.
var ErrInvalidDocument = errors.New("invalid document")

// Run identifies one pipeline run in document metadata.
type Run struct {
	ID        string
	Generated time.Time
}

// NewRun stamps a run with a fresh ID. A nil now uses time.Now.
func NewRun(now func() time.Time) Run {
	if now == nil {
		now = time.Now
	}
	return Run{ID: uuid.NewString(), Generated: now().UTC()}
}

func (r Run) generated() string { return r.Generated.UTC().Format(time.RFC3339) }

// =============================================================================
// Match Document
// =============================================================================

// MatchMetadata describes how a match document was produced.
type MatchMetadata struct {
	Generated       string   `json:"generated"`
	RunID           string   `json:"run_id"`
	Model           string   `json:"model"`
	Techniques      []string `json:"techniques"`
	ParallelWorkers int      `json:"parallel_workers"`
	BatchSize       int      `json:"batch_size"`
	TopK            int      `json:"top_k"`
}

// MatchRecord is the ranked law list of one violation.
type MatchRecord struct {
	ViolationID string             `json:"violation_id"`
	Violation   *records.Violation `json:"violation"`
	Category    records.Category   `json:"category"`
	Matches     []matcher.Match    `json:"matches"`
	Error       string             `json:"error,omitempty"`
}

// MatchDocument is the matcher output.
type MatchDocument struct {
	Metadata   MatchMetadata `json:"metadata"`
	Statistics matcher.Stats `json:"statistics"`
	Matches    []MatchRecord `json:"matches"`
}

// MatchSettings are the run parameters recorded in match metadata.
type MatchSettings struct {
	Model     string
	Workers   int
	BatchSize int
	TopK      int
}

// NewMatchDocument assembles a match document in result order.
func NewMatchDocument(run Run, settings MatchSettings, results []matcher.Result, stats matcher.Stats) *MatchDocument {
	doc := &MatchDocument{
		Metadata: MatchMetadata{
			Generated:       run.generated(),
			RunID:           run.ID,
			Model:           settings.Model,
			Techniques:      append([]string(nil), matcher.Techniques...),
			ParallelWorkers: settings.Workers,
			BatchSize:       settings.BatchSize,
			TopK:            settings.TopK,
		},
		Statistics: stats,
		Matches:    make([]MatchRecord, len(results)),
	}
	for i, r := range results {
		matches := r.Matches
		if matches == nil {
			matches = []matcher.Match{}
		}
		doc.Matches[i] = MatchRecord{
			ViolationID: r.ViolationID,
			Violation:   r.Violation,
			Category:    r.Category,
			Matches:     matches,
			Error:       r.Error,
		}
	}
	return doc
}

// =============================================================================
// Pathway Document
// =============================================================================

// Thresholds records the similarity thresholds used to build the graph.
type Thresholds struct {
	ViolationLaw       float64 `json:"tau_vl"`
	ViolationForm      float64 `json:"tau_vf"`
	ViolationViolation float64 `json:"tau_vv"`
}

// PathwayMetadata describes the graph behind a pathway document.
type PathwayMetadata struct {
	Generated     string           `json:"generated"`
	RunID         string           `json:"run_id"`
	TotalNodes    int              `json:"total_nodes"`
	TotalEdges    int              `json:"total_edges"`
	NodeCounts    map[string]int   `json:"node_counts"`
	EdgeCounts    map[string]int   `json:"edge_counts"`
	MaxPathLength int              `json:"max_path_length"`
	Thresholds    Thresholds       `json:"thresholds"`
	Build         graph.BuildStats `json:"build"`
}

// PathwayDocument is the pathway engine output.
type PathwayDocument struct {
	Metadata        PathwayMetadata            `json:"metadata"`
	GraphStatistics graph.Statistics           `json:"graph_statistics"`
	Pathways        pathway.Summary            `json:"pathways"`
	Centrality      pathway.Centrality         `json:"centrality"`
	Communities     pathway.Communities        `json:"communities"`
	OptimalPathways pathway.OptimalPathways    `json:"optimal_pathways"`
	SamplePaths     map[string][]pathway.Entry `json:"sample_paths"`
}

// PathwaySettings are the run parameters recorded in pathway metadata.
type PathwaySettings struct {
	MaxPathLength int
	SamplePairs   int
	Thresholds    Thresholds
	Build         graph.BuildStats
}

// NewPathwayDocument assembles a pathway document from an analysis.
func NewPathwayDocument(run Run, settings PathwaySettings, a *pathway.Analysis) *PathwayDocument {
	meta := PathwayMetadata{
		Generated:     run.generated(),
		RunID:         run.ID,
		NodeCounts:    a.NodeCounts,
		EdgeCounts:    a.EdgeCounts,
		MaxPathLength: settings.MaxPathLength,
		Thresholds:    settings.Thresholds,
		Build:         settings.Build,
	}
	for _, n := range a.NodeCounts {
		meta.TotalNodes += n
	}
	for _, n := range a.EdgeCounts {
		meta.TotalEdges += n
	}
	samples := settings.SamplePairs
	if samples <= 0 {
		samples = pathway.DefaultSamplePairs
	}
	return &PathwayDocument{
		Metadata:        meta,
		GraphStatistics: a.Statistics,
		Pathways:        a.Summary,
		Centrality:      a.Centrality,
		Communities:     a.Communities,
		OptimalPathways: a.Optimal,
		SamplePaths:     a.SamplePaths(samples),
	}
}

// =============================================================================
// Encoding
// =============================================================================

// Canonical encodes v in RFC 8785 canonical JSON.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize document: %w", err)
	}
	return out, nil
}

// Write encodes v to w, canonical when canonical is true and indented
// otherwise. A trailing newline is always written.
func Write(w io.Writer, v any, canonical bool) error {
	if !canonical {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("write document: %w", err)
		}
		return nil
	}
	data, err := Canonical(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}
