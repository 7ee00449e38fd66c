// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/lawpath/services/lawpath/embed"
	"github.com/AleutianAI/lawpath/services/lawpath/records"
	"github.com/AleutianAI/lawpath/services/lawpath/textbuild"
	"github.com/AleutianAI/lawpath/services/lawpath/vectorstore"
)

// DefaultMLThreshold is the cosine a candidate vector must exceed against
// its nearest existing violation.
const DefaultMLThreshold = 0.70

// MLSource labels records produced by MLDiscovery.
const MLSource = "ml_embedding_analysis"

// MLDiscovery suggests violations from a prior embedding store.
//
// A stored vector is a candidate when its text contains any category
// keyword, it has an embedding, and its text carries a "Name:" entity. The
// candidate is kept when its best cosine against the embedded existing
// violations exceeds Threshold.
type MLDiscovery struct {
	Store    vectorstore.Store
	Embedder embed.Embedder

	// Threshold defaults to DefaultMLThreshold.
	Threshold float64

	// Groups overrides DefaultPatterns.
	Groups []PatternGroup

	Logger *slog.Logger
}

// Discover compares the store against existing violations.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	existing - Violations already in the corpus. With none, nothing is found.
//
// Outputs:
//
//	[]*records.Violation - Candidates in store order.
//	error - Store or embedder failure.
func (m *MLDiscovery) Discover(ctx context.Context, existing []*records.Violation) ([]*records.Violation, error) {
	if len(existing) == 0 {
		return nil, nil
	}
	threshold := m.Threshold
	if threshold <= 0 {
		threshold = DefaultMLThreshold
	}
	groups := m.Groups
	if groups == nil {
		groups = DefaultPatterns
	}
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}

	vectors, err := m.Store.Vectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}

	type candidate struct {
		vec    vectorstore.Vector
		entity string
		norm   float64
	}
	var candidates []candidate
	for _, v := range vectors {
		if len(v.Embedding) == 0 || !matchesAny(groups, strings.ToLower(v.Text)) {
			continue
		}
		entity, ok := labelledEntity(v.Text)
		if !ok {
			continue
		}
		if len(v.Embedding) != m.Embedder.Dimension() {
			logger.Debug("skipping vector with foreign dimension",
				slog.String("id", v.ID),
				slog.Int("dimension", len(v.Embedding)),
			)
			continue
		}
		n := embed.Norm(v.Embedding)
		if n == 0 {
			continue
		}
		candidates = append(candidates, candidate{vec: v, entity: entity, norm: n})
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	texts := make([]string, len(existing))
	for i, v := range existing {
		texts[i] = textbuild.ViolationText(v)
	}
	known, err := m.Embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding existing violations: %w", err)
	}

	var out []*records.Violation
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		best := -1.0
		for _, k := range known {
			if k == nil {
				continue
			}
			if cos := embed.Dot(c.vec.Embedding, k) / c.norm; cos > best {
				best = cos
			}
		}
		if best <= threshold {
			continue
		}
		sim := best
		out = append(out, &records.Violation{
			ViolationType: "ML-Discovered Violation",
			EntityName:    c.entity,
			Source:        MLSource,
			Severity:      records.SeverityMedium,
			Similarity:    &sim,
			Description:   fmt.Sprintf("ML similarity match (%.3f) for %s", best, c.entity),
			Extra:         map[string]json.RawMessage{"vector_id": rawString(c.vec.ID)},
		})
	}
	return out, nil
}
