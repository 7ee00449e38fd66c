// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lawcorpus

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/lawpath/services/lawpath/embed"
)

const fixture = `{
  "metadata": {"version": "1.0", "name": "not a law"},
  "federal": {
    "money_laundering": {
      "name": "18 U.S.C. § 1956",
      "description": "Laundering of monetary instruments",
      "key_sections": ["§ 1956(a)"],
      "reporting_forms": [
        {"form_name": "Suspicious Activity Report", "form_number": "FinCEN SAR", "agency": "FinCEN"}
      ]
    },
    "tax": [
      {
        "name": "26 U.S.C. § 7201",
        "description": "Attempt to evade or defeat tax",
        "reporting_forms": [
          {"form_name": "Information Referral", "form_number": "3949-A", "agency": "IRS"}
        ]
      }
    ]
  },
  "notes": {"name": "name only is not a law"},
  "states": {
    "texas": {
      "penal": {
        "name": "Texas Penal Code § 34.02",
        "key_sections": ["§ 34.02"],
        "reporting_forms": [
          {"form_name": "SAR", "form_number": "FinCEN SAR", "agency": "FinCEN"}
        ]
      }
    }
  }
}`

func loadFixture(t *testing.T) *Corpus {
	t.Helper()
	c, err := Parse([]byte(fixture), nil)
	require.NoError(t, err)
	return c
}

func hashingEmbedder(dim int) embed.Embedder {
	return embed.NewBatchEmbedder(embed.NewHashingBackend(dim), &embed.Options{Dimension: dim})
}

// =============================================================================
// Walk
// =============================================================================

func TestWalk_OrderAndKinds(t *testing.T) {
	c := loadFixture(t)

	var visited []string
	err := Walk(c.root, func(n Node) error {
		if n.Kind != KindBranch {
			visited = append(visited, n.Kind.String()+":"+n.Path)
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"law:federal.money_laundering",
		"form:federal.money_laundering.reporting_forms[0]",
		"law:federal.tax[0]",
		"form:federal.tax[0].reporting_forms[0]",
		"law:states.texas.penal",
		"form:states.texas.penal.reporting_forms[0]",
	}, visited)
}

func TestWalk_SkipSubtree(t *testing.T) {
	c := loadFixture(t)

	var laws []string
	err := Walk(c.root, func(n Node) error {
		if n.Path == "federal" {
			return SkipSubtree
		}
		if n.Kind == KindLaw {
			laws = append(laws, n.Path)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"states.texas.penal"}, laws)
}

// =============================================================================
// Load
// =============================================================================

func TestLoad_Tables(t *testing.T) {
	c := loadFixture(t)

	require.Len(t, c.Laws(), 3)
	law, ok := c.Law("federal.tax[0]")
	require.True(t, ok)
	assert.Equal(t, "federal", law.Jurisdiction)
	assert.False(t, law.Citable())

	texas, ok := c.Law("states.texas.penal")
	require.True(t, ok)
	assert.Equal(t, "state", texas.Jurisdiction)
	assert.Len(t, texas.Forms, 1)

	ids := make([]string, 0, len(c.Forms()))
	for _, f := range c.Forms() {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []string{"FinCEN SAR", "3949-A", "FinCEN SAR@states.texas.penal"}, ids)

	dup, ok := c.Form("FinCEN SAR@states.texas.penal")
	require.True(t, ok)
	assert.Equal(t, "states.texas.penal", dup.LawID)
	assert.Equal(t, "state", dup.Jurisdiction)
	assert.Len(t, c.FormsOwnedBy("federal.money_laundering"), 1)

	stats := c.Stats()
	assert.Equal(t, 3, stats.Laws)
	assert.Equal(t, 2, stats.Citable)
	assert.Equal(t, 3, stats.Forms)
	assert.Equal(t, 1, stats.DuplicateForms)
}

func TestLoad_InvalidDocument(t *testing.T) {
	_, err := Parse([]byte(`[1, 2]`), nil)
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = Parse([]byte(`{`), nil)
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestLoad_VectorWithoutTextExcluded(t *testing.T) {
	c, err := Parse([]byte(`{"a": {"name": "A", "description": "d", "embedding": [1, 0]}}`), nil)
	require.NoError(t, err)

	law, _ := c.Law("a")
	assert.Nil(t, law.Embedding)
	assert.Equal(t, 1, c.Stats().IntegrityErrors)
}

// =============================================================================
// Check
// =============================================================================

func TestCheck(t *testing.T) {
	t.Run("no vectors", func(t *testing.T) {
		c := loadFixture(t)
		assert.ErrorIs(t, c.Check(), ErrNoUsableLaws)
	})

	t.Run("dimension mismatch names the law", func(t *testing.T) {
		c, err := Parse([]byte(`{
			"a": {"name": "A", "description": "d", "embedding": [1, 0], "embedding_text": "x"},
			"b": {"name": "B", "description": "d", "embedding": [1, 0, 0], "embedding_text": "y"}
		}`), nil)
		require.NoError(t, err)
		err = c.Check()
		assert.ErrorIs(t, err, ErrDimensionMismatch)
		assert.Contains(t, err.Error(), "b embedding")
	})

	t.Run("configured dimension", func(t *testing.T) {
		c, err := Parse([]byte(`{"a": {"name": "A", "description": "d", "embedding": [1, 0], "embedding_text": "x"}}`), &Options{Dimension: 3})
		require.NoError(t, err)
		assert.ErrorIs(t, c.Check(), ErrDimensionMismatch)
	})

	t.Run("not normalized", func(t *testing.T) {
		c, err := Parse([]byte(`{"a": {"name": "A", "description": "d", "embedding": [1, 1], "embedding_text": "x"}}`), nil)
		require.NoError(t, err)
		assert.ErrorIs(t, c.Check(), ErrNotNormalized)
	})

	t.Run("valid", func(t *testing.T) {
		c, err := Parse([]byte(`{"a": {"name": "A", "description": "d", "embedding": [0.6, 0.8], "embedding_text": "x"}}`), nil)
		require.NoError(t, err)
		assert.NoError(t, c.Check())
		assert.Equal(t, 2, c.Dimension())
	})
}

// =============================================================================
// Augment
// =============================================================================

func TestAugment_EmbedsThenReuses(t *testing.T) {
	ctx := context.Background()
	e := hashingEmbedder(16)
	c := loadFixture(t)

	stats, err := c.Augment(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, AugmentStats{Embedded: 3, GroundTruthEmbedded: 2}, stats)
	require.NoError(t, c.Check())
	assert.Equal(t, 16, c.Dimension())

	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf))

	reloaded, err := Parse(buf.Bytes(), &Options{Dimension: 16})
	require.NoError(t, err)
	require.NoError(t, reloaded.Check())

	stats, err = reloaded.Augment(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, AugmentStats{Reused: 3, GroundTruthReused: 2}, stats)

	before, _ := c.Law("states.texas.penal")
	after, _ := reloaded.Law("states.texas.penal")
	assert.Equal(t, before.GroundTruthEmbedding, after.GroundTruthEmbedding)
	assert.True(t, after.IsGroundTruth)
}

func TestAugment_DimensionMismatch(t *testing.T) {
	c, err := Parse([]byte(fixture), &Options{Dimension: 8})
	require.NoError(t, err)
	_, err = c.Augment(context.Background(), hashingEmbedder(16))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestEnumerate_PrefersGroundTruth(t *testing.T) {
	c := loadFixture(t)
	_, err := c.Augment(context.Background(), hashingEmbedder(16))
	require.NoError(t, err)

	entries := c.Enumerate()
	require.Len(t, entries, 3)

	byID := make(map[string]Entry)
	for _, e := range entries {
		byID[e.LawID] = e
	}
	assert.True(t, byID["federal.money_laundering"].IsGroundTruth)
	assert.Contains(t, byID["federal.money_laundering"].Text, "STATUTORY_SECTIONS:")
	assert.False(t, byID["federal.tax[0]"].IsGroundTruth)
	assert.Equal(t, byID["federal.tax[0]"].Law.EmbeddingText, byID["federal.tax[0]"].Text)
}

func TestEmbedForms(t *testing.T) {
	c := loadFixture(t)
	require.NoError(t, c.EmbedForms(context.Background(), hashingEmbedder(16)))
	for _, f := range c.Forms() {
		assert.Len(t, f.Embedding, 16, f.ID)
		assert.True(t, embed.IsNormalized(f.Embedding))
	}
}
