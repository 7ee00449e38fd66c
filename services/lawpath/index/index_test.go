// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_Errors(t *testing.T) {
	_, err := Build(nil)
	assert.ErrorIs(t, err, ErrEmptyIndex)

	_, err = Build([][]float32{{1, 0}, {1, 0, 0}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestFlat_Search(t *testing.T) {
	idx, err := Build([][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.6, 0.8, 0},
		{0, 1, 0},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Len())
	assert.Equal(t, 3, idx.Dimension())

	ctx := context.Background()

	t.Run("ranked by inner product with ties by position", func(t *testing.T) {
		scores, indices, err := idx.Search(ctx, [][]float32{{0, 1, 0}}, 3)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 3, 2}, indices[0])
		assert.InDeltaSlice(t, []float64{1, 1, 0.8}, scores[0], 1e-6)
	})

	t.Run("k clamped to N", func(t *testing.T) {
		_, indices, err := idx.Search(ctx, [][]float32{{1, 0, 0}}, 10)
		require.NoError(t, err)
		assert.Len(t, indices[0], 4)
		assert.Equal(t, 0, indices[0][0])
	})

	t.Run("multiple queries", func(t *testing.T) {
		_, indices, err := idx.Search(ctx, [][]float32{{1, 0, 0}, {0, 0, 1}}, 1)
		require.NoError(t, err)
		require.Len(t, indices, 2)
		assert.Equal(t, []int{0}, indices[0])
		assert.Equal(t, []int{0}, indices[1], "all zero scores tie, lowest position wins")
	})

	t.Run("query dimension mismatch", func(t *testing.T) {
		_, _, err := idx.Search(ctx, [][]float32{{1, 0}}, 1)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("deterministic", func(t *testing.T) {
		q := [][]float32{{0.6, 0.8, 0}}
		s1, i1, err := idx.Search(ctx, q, 4)
		require.NoError(t, err)
		s2, i2, err := idx.Search(ctx, q, 4)
		require.NoError(t, err)
		assert.Equal(t, s1, s2)
		assert.Equal(t, i1, i2)
	})
}
