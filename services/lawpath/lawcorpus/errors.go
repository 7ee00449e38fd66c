// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lawcorpus loads the hierarchical law reference document and
// exposes its laws, forms and embeddings as flat, deterministic tables.
//
// # Ownership
//
// A Corpus keeps the decoded document tree so Augment can write vectors
// back in place. Law and form records returned by accessors are owned by the
// Corpus; callers must not mutate them.
//
// # Thread Safety
//
// Load, Augment and EmbedForms mutate the Corpus and must not run
// concurrently with anything else. After they return, all read accessors are
// safe for concurrent use.
//
// # Ordering
//
// Laws and forms are enumerated in tree-walk order: object keys ascending,
// list elements by index. The order is stable for a fixed document.
package lawcorpus

import "errors"

var (
	// ErrNoUsableLaws indicates the corpus has no law with a vector.
	ErrNoUsableLaws = errors.New("no usable laws in corpus")

	// ErrDimensionMismatch indicates a law vector with the wrong dimension.
	ErrDimensionMismatch = errors.New("law embedding dimension mismatch")

	// ErrNotNormalized indicates a law vector that is not unit length.
	ErrNotNormalized = errors.New("law embedding not normalized")

	// ErrInvalidDocument indicates the law reference document is not a JSON object.
	ErrInvalidDocument = errors.New("invalid law reference document")

	// ErrLawNotFound indicates a law ID that is not in the corpus.
	ErrLawNotFound = errors.New("law not found")
)
