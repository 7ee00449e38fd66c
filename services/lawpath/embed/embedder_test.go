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
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

// scriptedBackend fails the first failN calls with failErr, then delegates
// to a hashing backend.
type scriptedBackend struct {
	inner   *HashingBackend
	failN   int32
	failErr error
	calls   atomic.Int32
	dimOver int
}

func (s *scriptedBackend) Model() string { return "scripted" }

func (s *scriptedBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	n := s.calls.Add(1)
	if n <= s.failN {
		return nil, s.failErr
	}
	if s.dimOver > 0 {
		return NewHashingBackend(s.dimOver).EmbedBatch(ctx, texts)
	}
	return s.inner.EmbedBatch(ctx, texts)
}

// countingEmbedder records every text it is asked to embed.
type countingEmbedder struct {
	Embedder
	mu   sync.Mutex
	seen []string
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.seen = append(c.seen, texts...)
	c.mu.Unlock()
	return c.Embedder.Embed(ctx, texts)
}

func testOptions(dim int) *Options {
	return &Options{Dimension: dim, BatchSize: 2, Workers: 3, BatchTimeout: time.Second}
}

// =============================================================================
// Vector Helpers
// =============================================================================

func TestNormalize(t *testing.T) {
	t.Run("scales to unit length", func(t *testing.T) {
		v, err := Normalize([]float32{3, 4})
		require.NoError(t, err)
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)
		assert.True(t, IsNormalized(v))
	})

	t.Run("zero vector is an error", func(t *testing.T) {
		_, err := Normalize([]float32{0, 0, 0})
		assert.ErrorIs(t, err, ErrZeroVector)
	})

	t.Run("does not alias input", func(t *testing.T) {
		in := []float32{1, 1}
		_, err := Normalize(in)
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 1}, in)
	})
}

func TestDot(t *testing.T) {
	assert.InDelta(t, 11.0, Dot([]float32{1, 2}, []float32{3, 4}), 1e-9)
}

// =============================================================================
// HashingBackend
// =============================================================================

func TestHashingBackend_Deterministic(t *testing.T) {
	b := NewHashingBackend(64)
	ctx := context.Background()

	a1, err := b.EmbedBatch(ctx, []string{"tax forfeiture notice"})
	require.NoError(t, err)
	a2, err := b.EmbedBatch(ctx, []string{"tax forfeiture notice"})
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.Len(t, a1[0], 64)
}

func TestHashingBackend_SharedVocabularyIsCloser(t *testing.T) {
	e := NewBatchEmbedder(NewHashingBackend(256), testOptions(256))
	vecs, err := e.Embed(context.Background(), []string{
		"money laundering suspicious activity",
		"money laundering suspicious transfer",
		"expired building permit inspection",
	})
	require.NoError(t, err)

	near := Dot(vecs[0], vecs[1])
	far := Dot(vecs[0], vecs[2])
	assert.Greater(t, near, far)
}

func TestHashingBackend_EmptyTextIsNotZero(t *testing.T) {
	e := NewBatchEmbedder(NewHashingBackend(32), testOptions(32))
	vecs, err := e.Embed(context.Background(), []string{""})
	require.NoError(t, err)
	assert.True(t, IsNormalized(vecs[0]))
}

// =============================================================================
// BatchEmbedder
// =============================================================================

func TestBatchEmbedder_Embed(t *testing.T) {
	ctx := context.Background()

	t.Run("empty input", func(t *testing.T) {
		e := NewBatchEmbedder(NewHashingBackend(16), testOptions(16))
		vecs, err := e.Embed(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, vecs)
	})

	t.Run("preserves order across batches", func(t *testing.T) {
		e := NewBatchEmbedder(NewHashingBackend(32), testOptions(32))
		texts := make([]string, 7)
		for i := range texts {
			texts[i] = fmt.Sprintf("violation number %d", i)
		}
		vecs, err := e.Embed(ctx, texts)
		require.NoError(t, err)
		require.Len(t, vecs, len(texts))

		for i, text := range texts {
			single, err := e.Embed(ctx, []string{text})
			require.NoError(t, err)
			assert.Equal(t, single[0], vecs[i], "row %d", i)
			assert.True(t, IsNormalized(vecs[i]))
		}
	})

	t.Run("transient failure retried once", func(t *testing.T) {
		backend := &scriptedBackend{inner: NewHashingBackend(16), failN: 1, failErr: fmt.Errorf("%w: 503", ErrTransient)}
		opts := testOptions(16)
		opts.BatchSize = 10
		e := NewBatchEmbedder(backend, opts)

		vecs, err := e.Embed(ctx, []string{"a", "b"})
		require.NoError(t, err)
		assert.Len(t, vecs, 2)
		assert.Equal(t, int32(2), backend.calls.Load())
	})

	t.Run("second transient failure is fatal", func(t *testing.T) {
		backend := &scriptedBackend{inner: NewHashingBackend(16), failN: 2, failErr: fmt.Errorf("%w: 503", ErrTransient)}
		opts := testOptions(16)
		opts.BatchSize = 10
		e := NewBatchEmbedder(backend, opts)

		_, err := e.Embed(ctx, []string{"a"})
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
		assert.Equal(t, int32(2), backend.calls.Load())
	})

	t.Run("non-transient failure not retried", func(t *testing.T) {
		backend := &scriptedBackend{inner: NewHashingBackend(16), failN: 5, failErr: errors.New("bad request")}
		opts := testOptions(16)
		opts.BatchSize = 10
		e := NewBatchEmbedder(backend, opts)

		_, err := e.Embed(ctx, []string{"a"})
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
		assert.Equal(t, int32(1), backend.calls.Load())
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		backend := &scriptedBackend{inner: NewHashingBackend(16), dimOver: 8}
		e := NewBatchEmbedder(backend, testOptions(16))

		_, err := e.Embed(ctx, []string{"a"})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestOptions_Validate(t *testing.T) {
	o := &Options{}
	o.Validate()
	assert.Equal(t, DefaultDimension, o.Dimension)
	assert.Equal(t, DefaultBatchSize, o.BatchSize)
	assert.Positive(t, o.Workers)
	assert.Equal(t, DefaultBatchTimeout, o.BatchTimeout)
	assert.NotNil(t, o.Logger)
}

// =============================================================================
// OpenAIBackend
// =============================================================================

func TestNewOpenAIBackend_RequiresModel(t *testing.T) {
	_, err := NewOpenAIBackend(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestIsRetryableStatus(t *testing.T) {
	assert.True(t, isRetryableStatus(429))
	assert.True(t, isRetryableStatus(503))
	assert.False(t, isRetryableStatus(400))
	assert.False(t, isRetryableStatus(401))
}
