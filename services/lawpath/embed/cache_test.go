// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lpbadger "github.com/AleutianAI/lawpath/services/lawpath/storage/badger"
)

func TestCachedEmbedder(t *testing.T) {
	db, err := lpbadger.Open(lpbadger.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	inner := &countingEmbedder{Embedder: NewBatchEmbedder(NewHashingBackend(32), testOptions(32))}
	cached := NewCachedEmbedder(inner, db)
	ctx := context.Background()

	first, err := cached.Embed(ctx, []string{"alpha", "beta", "alpha"})
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, first[0], first[2])
	assert.Equal(t, []string{"alpha", "beta"}, inner.seen, "duplicates embedded once")

	second, err := cached.Embed(ctx, []string{"beta", "gamma", "alpha"})
	require.NoError(t, err)
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, inner.seen, "only the miss reaches the model")

	assert.Equal(t, 32, cached.Dimension())
	assert.Equal(t, HashingModel, cached.Model())
}

func TestVectorCodec(t *testing.T) {
	v := []float32{0.25, -1, 3.5}
	got, ok := decodeVector(encodeVector(v), 3)
	require.True(t, ok)
	assert.Equal(t, v, got)

	_, ok = decodeVector(encodeVector(v), 4)
	assert.False(t, ok)
}
