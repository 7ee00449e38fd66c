// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index provides dense top-k inner-product search over law vectors.
//
// All stored and query vectors are expected to be unit length, so inner
// product equals cosine similarity and scores fall in [-1, 1].
package index

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("lawpath.index")

var (
	// ErrEmptyIndex indicates Build was given no vectors.
	ErrEmptyIndex = errors.New("index has no vectors")

	// ErrDimensionMismatch indicates a vector whose length differs from the index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Index is a top-k inner-product search structure.
type Index interface {
	// Search returns, per query row, up to k (score, position) pairs by
	// descending score.
	Search(ctx context.Context, queries [][]float32, k int) (scores [][]float64, indices [][]int, err error)

	// Len returns N.
	Len() int

	// Dimension returns D.
	Dimension() int
}

// Flat is an exact index: every query is scored against every vector.
//
// Ties are broken by ascending position, so results are deterministic for
// a fixed build input.
//
// Thread Safety: Immutable after Build; Search is safe for concurrent use.
type Flat struct {
	dim     int
	vecs    [][]float32
	workers int
}

// Build constructs a Flat index over vectors (N×D). The rows are retained,
// not copied; callers must not mutate them afterwards.
func Build(vectors [][]float32) (*Flat, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptyIndex
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: row %d has %d, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return &Flat{dim: dim, vecs: vectors, workers: runtime.NumCPU()}, nil
}

// Len returns N.
func (f *Flat) Len() int { return len(f.vecs) }

// Dimension returns D.
func (f *Flat) Dimension() int { return f.dim }

// Search scores every query against every vector.
//
// Inputs:
//
//   - ctx: Context for cancellation, checked per query.
//   - queries: M×D rows.
//   - k: Results per query; clamped to N. k <= 0 yields empty rows.
//
// Outputs:
//
//   - scores, indices: M rows of min(k, N) entries each.
//   - error: ErrDimensionMismatch or a context error.
func (f *Flat) Search(ctx context.Context, queries [][]float32, k int) ([][]float64, [][]int, error) {
	ctx, span := tracer.Start(ctx, "Flat.Search",
		trace.WithAttributes(
			attribute.Int("index.size", len(f.vecs)),
			attribute.Int("index.queries", len(queries)),
			attribute.Int("index.k", k),
		),
	)
	defer span.End()

	if k > len(f.vecs) {
		k = len(f.vecs)
	}
	if k < 0 {
		k = 0
	}
	for i, q := range queries {
		if len(q) != f.dim {
			return nil, nil, fmt.Errorf("%w: query %d has %d, want %d", ErrDimensionMismatch, i, len(q), f.dim)
		}
	}

	scores := make([][]float64, len(queries))
	indices := make([][]int, len(queries))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for qi := range queries {
		qi := qi
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			scores[qi], indices[qi] = f.searchOne(queries[qi], k)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return scores, indices, nil
}

func (f *Flat) searchOne(q []float32, k int) ([]float64, []int) {
	all := make([]float64, len(f.vecs))
	order := make([]int, len(f.vecs))
	for i, v := range f.vecs {
		all[i] = dot(q, v)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return all[order[a]] > all[order[b]]
	})

	s := make([]float64, k)
	idx := make([]int, k)
	for i := 0; i < k; i++ {
		idx[i] = order[i]
		s[i] = all[order[i]]
	}
	return s, idx
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
