// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build property

package embed

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Every emitted row has the configured dimension and unit norm.
func TestProperty_EmbedRowsAreUnitVectors(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	e := NewBatchEmbedder(NewHashingBackend(48), &Options{Dimension: 48, BatchSize: 3, Workers: 2})

	properties.Property("rows are normalised with dimension D", prop.ForAll(
		func(texts []string) bool {
			vecs, err := e.Embed(context.Background(), texts)
			if err != nil || len(vecs) != len(texts) {
				return false
			}
			for _, v := range vecs {
				if len(v) != 48 || !IsNormalized(v) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
