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
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CachedEmbedder serves repeated texts from a badger cache.
//
// Keys are "emb/{model}/{dim}/{sha256(text)}"; values are little-endian
// float32 rows as returned (already normalised) by the inner embedder.
//
// Thread Safety: Safe for concurrent use.
type CachedEmbedder struct {
	inner Embedder
	db    *badger.DB
}

// NewCachedEmbedder wraps inner with db. The caller owns db.
func NewCachedEmbedder(inner Embedder, db *badger.DB) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, db: db}
}

// Dimension returns the inner embedder's dimension.
func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

// Model returns the inner embedder's model.
func (c *CachedEmbedder) Model() string { return c.inner.Model() }

// Embed returns cached rows where present and embeds the rest in one call.
//
// Duplicate texts in the input are embedded once. Cache read or write
// failures degrade to a plain inner call; they never fail Embed.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := tracer.Start(ctx, "CachedEmbedder.Embed",
		trace.WithAttributes(attribute.Int("embed.texts", len(texts))),
	)
	defer span.End()

	out := make([][]float32, len(texts))
	keys := make([][]byte, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	_ = c.db.View(func(txn *badger.Txn) error {
		for i, k := range keys {
			item, err := txn.Get(k)
			if err != nil {
				continue
			}
			_ = item.Value(func(val []byte) error {
				if v, ok := decodeVector(val, c.inner.Dimension()); ok {
					out[i] = v
				}
				return nil
			})
		}
		return nil
	})

	missIdx := make(map[string][]int)
	var missTexts []string
	for i, v := range out {
		if v != nil {
			continue
		}
		if _, seen := missIdx[texts[i]]; !seen {
			missTexts = append(missTexts, texts[i])
		}
		missIdx[texts[i]] = append(missIdx[texts[i]], i)
	}

	hits := len(texts)
	for _, idx := range missIdx {
		hits -= len(idx)
	}
	recordCache(ctx, hits, len(texts)-hits)
	span.SetAttributes(
		attribute.Int("embed.cache_hits", hits),
		attribute.Int("embed.cache_misses", len(missTexts)),
	)

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("%w: inner embedder returned %d rows for %d texts", ErrEmbeddingFailed, len(vecs), len(missTexts))
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for j, t := range missTexts {
		for _, i := range missIdx[t] {
			out[i] = vecs[j]
		}
		if err := wb.Set(c.key(t), encodeVector(vecs[j])); err != nil && !errors.Is(err, badger.ErrDBClosed) {
			span.AddEvent("cache_write_failed")
		}
	}
	if err := wb.Flush(); err != nil {
		span.AddEvent("cache_flush_failed")
	}
	return out, nil
}

func (c *CachedEmbedder) key(text string) []byte {
	sum := sha256.Sum256([]byte(text))
	return []byte(fmt.Sprintf("emb/%s/%d/%x", c.inner.Model(), c.inner.Dimension(), sum))
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte, dim int) ([]float32, bool) {
	if len(buf) != 4*dim {
		return nil, false
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, true
}
