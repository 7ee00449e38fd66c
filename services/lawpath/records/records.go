// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package records defines the canonical record kinds that flow through the
// matching engine: laws, reporting forms, violations and matches.
//
// Upstream documents are heterogeneous and partially typed. Each upstream
// shape has a thin parser (lawcorpus, violations, discovery) that maps into
// these types; nothing downstream of the parsers sees the raw shapes.
package records

import (
	"fmt"
	"strings"
)

// =============================================================================
// Severity
// =============================================================================

// Severity is the reported seriousness of a violation.
type Severity string

const (
	SeverityHigh    Severity = "HIGH"
	SeverityMedium  Severity = "MEDIUM"
	SeverityLow     Severity = "LOW"
	SeverityUnknown Severity = "UNKNOWN"
)

// ParseSeverity normalises free text into a Severity.
//
// Unrecognised or empty input maps to SeverityUnknown.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	case SeverityLow:
		return SeverityLow
	default:
		return SeverityUnknown
	}
}

// =============================================================================
// Form
// =============================================================================

// Form is a government reporting mechanism owned by a law.
type Form struct {
	FormName    string `json:"form_name,omitempty"`
	FormNumber  string `json:"form_number,omitempty"`
	Agency      string `json:"agency,omitempty"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
	FormType    string `json:"form_type,omitempty"`
}

// Key returns the form identity: form_number if non-empty, else form_name.
func (f Form) Key() string {
	if n := strings.TrimSpace(f.FormNumber); n != "" {
		return n
	}
	return strings.TrimSpace(f.FormName)
}

// =============================================================================
// Law
// =============================================================================

// Law is one node of the jurisdictional tree.
//
// ID is the dotted/bracketed path of the node inside the law reference
// document, e.g. "states.virginia.civil.code_title_54_1".
type Law struct {
	ID           string
	Name         string
	Description  string
	URL          string
	KeySections  []string
	Relevance    string
	Forms        []Form
	Jurisdiction string

	Embedding     []float32
	EmbeddingText string

	GroundTruthEmbedding []float32
	GroundTruthText      string
	IsGroundTruth        bool
}

// Citable reports whether the law has at least one key section.
func (l *Law) Citable() bool {
	for _, s := range l.KeySections {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}

// Vector returns the vector used for matching: the ground-truth embedding
// when present, else the base embedding. The bool reports whether the
// ground-truth vector was chosen. A nil vector means the law has none.
func (l *Law) Vector() ([]float32, bool) {
	if len(l.GroundTruthEmbedding) > 0 {
		return l.GroundTruthEmbedding, true
	}
	if len(l.Embedding) > 0 {
		return l.Embedding, false
	}
	return nil, false
}

// Snapshot returns the law's immediate metadata for embedding in match records.
func (l *Law) Snapshot() map[string]any {
	out := map[string]any{
		"name": l.Name,
	}
	if l.Description != "" {
		out["description"] = l.Description
	}
	if l.URL != "" {
		out["url"] = l.URL
	}
	if len(l.KeySections) > 0 {
		out["key_sections"] = append([]string(nil), l.KeySections...)
	}
	if l.Relevance != "" {
		out["relevance"] = l.Relevance
	}
	if len(l.Forms) > 0 {
		out["reporting_forms"] = append([]Form(nil), l.Forms...)
	}
	if l.Jurisdiction != "" {
		out["jurisdiction"] = l.Jurisdiction
	}
	return out
}

// =============================================================================
// Identity
// =============================================================================

// IdentityKey identifies a violation across runs and sources.
//
// Entity and Type are lower-cased; Date is the primary date as written.
type IdentityKey struct {
	Entity string
	Type   string
	Date   string
}

// String renders the key for logs and map keys in documents.
func (k IdentityKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Entity, k.Type, k.Date)
}
