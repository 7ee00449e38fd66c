// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vectorstore reads and writes prior embedding stores used by
// ML-assisted discovery.
//
// A store holds text chunks with their embeddings. Two backends exist: a
// JSON file of the form {"vectors": [{"id", "text", "embedding"}]} and a
// Weaviate class queried through GraphQL.
package vectorstore

import (
	"context"
	"errors"
)

var (
	// ErrStoreUnreadable is returned when the backing store cannot be read.
	ErrStoreUnreadable = errors.New("vector store unreadable")

	// ErrInvalidVector is returned for a vector without an ID.
	ErrInvalidVector = errors.New("invalid vector")
)

// Vector is one stored chunk.
type Vector struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Store is a prior embedding store.
type Store interface {
	// Vectors returns every stored vector in a stable order.
	Vectors(ctx context.Context) ([]Vector, error)

	// Put writes vectors, replacing any with the same ID.
	Put(ctx context.Context, vectors []Vector) error
}
