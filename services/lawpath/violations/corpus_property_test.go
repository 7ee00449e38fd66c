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

package violations

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/AleutianAI/lawpath/services/lawpath/records"
)

func buildCorpus(types, entities []string) *Corpus {
	c := New(testOptions())
	for i, vt := range types {
		entity := "entity"
		if i < len(entities) {
			entity = entities[i]
		}
		c.AddIfNew(records.Category(vt), &records.Violation{ViolationType: vt, EntityName: entity})
	}
	return c
}

func TestProperty_Corpus(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	hints := gen.OneConstOf("tax forfeiture", "forfeited entity", "unlicensed", "late filing", "wire fraud", "property code", "misc", "")

	properties.Property("categories stay within the fixed set", prop.ForAll(
		func(types, entities []string) bool {
			for _, e := range buildCorpus(types, entities).IterAll() {
				if !e.Category.Valid() {
					return false
				}
			}
			return true
		},
		gen.SliceOf(hints), gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("merging the empty corpus leaves the document unchanged", prop.ForAll(
		func(types, entities []string) bool {
			c := buildCorpus(types, entities)
			var before, after bytes.Buffer
			if err := c.Encode(&before); err != nil {
				return false
			}
			c.Merge(New(testOptions()))
			if err := c.Encode(&after); err != nil {
				return false
			}
			return before.String() == after.String()
		},
		gen.SliceOf(hints), gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("merge is idempotent", prop.ForAll(
		func(types, entities []string) bool {
			c := buildCorpus(types, entities)
			other := buildCorpus(types, entities)
			n := c.Len()
			stats := c.Merge(other)
			return stats.Added == 0 && c.Len() == n
		},
		gen.SliceOf(hints), gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
