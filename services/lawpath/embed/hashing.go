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
	"hash/fnv"
	"strings"
	"unicode"
)

// HashingModel is the model name reported by HashingBackend.
const HashingModel = "feature-hashing-v1"

// HashingBackend is a deterministic bag-of-ngrams embedder.
//
// Each lower-cased word unigram and bigram is hashed (FNV-1a) to a signed
// coordinate. Texts sharing vocabulary land close together, which is enough
// for offline runs and for exercising the pipeline without a model server.
// Output is bitwise reproducible.
type HashingBackend struct {
	dim int
}

// NewHashingBackend returns a backend producing dim-dimensional vectors.
func NewHashingBackend(dim int) *HashingBackend {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &HashingBackend{dim: dim}
}

// Model returns HashingModel.
func (h *HashingBackend) Model() string { return HashingModel }

// EmbedBatch hashes each text. It never fails except on cancellation.
func (h *HashingBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashingBackend) vector(text string) []float32 {
	v := make([]float32, h.dim)
	// Bias feature keeps empty input off the zero vector.
	h.add(v, "\x00bias", 0.1)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, w := range words {
		h.add(v, w, 1)
		if i > 0 {
			h.add(v, words[i-1]+" "+w, 0.5)
		}
	}
	return v
}

func (h *HashingBackend) add(v []float32, feature string, weight float32) {
	hash := fnv.New64a()
	_, _ = hash.Write([]byte(feature))
	sum := hash.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[idx] += weight
}
