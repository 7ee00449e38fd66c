// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embed turns canonical strings into L2-normalised float32 vectors.
//
// # Contract
//
// Given N strings, Embed returns N rows of dimension D, each with unit L2
// norm. Callers pass the full list; the embedder chooses its internal batch
// size. A failure on any item fails the whole call: no zero vectors are ever
// substituted. A backend error marked transient is retried once.
//
// # Backends
//
//   - OpenAIBackend: any OpenAI-compatible /embeddings endpoint, including
//     sentence-transformer servers that expose that API.
//   - HashingBackend: deterministic feature hashing, for offline runs and tests.
//
// CachedEmbedder wraps any Embedder with a badger-backed cache keyed by
// model, dimension and text digest.
//
// # Thread Safety
//
// All embedders in this package are safe for concurrent use once built.
package embed

import "errors"

// Sentinel errors for embedding operations.
var (
	// ErrEmbeddingFailed is returned when the backend fails or returns an
	// unusable vector for any input.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrTransient marks a backend failure worth one retry (rate limit,
	// 5xx, per-batch timeout).
	ErrTransient = errors.New("transient embedding failure")

	// ErrDimensionMismatch is returned when a vector does not have the
	// configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrZeroVector is returned when a vector cannot be normalised.
	ErrZeroVector = errors.New("zero-norm vector")

	// ErrInvalidConfig is returned for unusable backend configuration.
	ErrInvalidConfig = errors.New("invalid embedder configuration")
)
