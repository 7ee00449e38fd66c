// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/lawpath/services/lawpath/config"
	"github.com/AleutianAI/lawpath/services/lawpath/docstore"
	"github.com/AleutianAI/lawpath/services/lawpath/documents"
	"github.com/AleutianAI/lawpath/services/lawpath/vectorstore"
)

// keywordEmbedder maps text onto one axis per topic keyword, with a
// fallback axis for text that names none of them.
type keywordEmbedder struct{}

var topics = []string{"licens", "tax", "fraud"}

func (keywordEmbedder) Dimension() int { return len(topics) + 1 }
func (keywordEmbedder) Model() string  { return "keyword-test" }

func (k keywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		v := make([]float32, k.Dimension())
		var n float64
		for j, topic := range topics {
			if strings.Contains(lower, topic) {
				v[j] = 1
				n++
			}
		}
		if n == 0 {
			v[len(topics)] = 1
			n = 1
		}
		for j := range v {
			v[j] /= float32(math.Sqrt(n))
		}
		out[i] = v
	}
	return out, nil
}

const lawsDoc = `{
  "metadata": {"version": "1.0"},
  "states": {
    "texas": {
      "contractors": {
        "name": "Texas Occupations Code § 1302",
        "description": "Contractor licensing requirements",
        "reporting_forms": [
          {"form_name": "Contractor License Application", "form_number": "TX-1302", "agency": "TDLR"}
        ]
      }
    }
  }
}`

const licensingViolation = `{
  "metadata": {"created": "2025-01-01T00:00:00Z", "version": "1.0"},
  "violations": {
    "licensing_violations": [
      {"violation_type": "Unlicensed Practice", "entity_name": "Acme Builders",
       "description": "Operating without a contractor license", "severity": "HIGH", "source": "registry"}
    ]
  }
}`

const parkingViolation = `{
  "metadata": {"created": "2025-01-01T00:00:00Z", "version": "1.0"},
  "violations": {
    "other_violations": [
      {"violation_type": "Parking Citation", "entity_name": "Bob Smith",
       "description": "Vehicle parked in a loading zone", "severity": "LOW", "source": "city"}
    ]
  }
}`

const verification = `{"personnel_list": [
  {"name": "bob_jones", "license_verification": {"va_search": {"status": "NOT_FOUND"}}},
  {"name": "carol_white", "license_verification": {"confirmed_unlicensed": true}}
]}`

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Dimension = len(topics) + 1
	cfg.Workers = 2
	return cfg
}

func newTestPipeline(t *testing.T, deps Deps) *Pipeline {
	t.Helper()
	if deps.Embedder == nil {
		deps.Embedder = keywordEmbedder{}
	}
	deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	deps.Now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	deps.RunID = "run-fixed"
	p, err := New(testConfig(), deps)
	require.NoError(t, err)
	return p
}

func writeInputs(t *testing.T, violationsDoc string) (dir string) {
	t.Helper()
	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "laws.json"), []byte(lawsDoc), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "violations.json"), []byte(violationsDoc), 0o600))
	return dir
}

func paths(dir, out string) Paths {
	return Paths{
		Laws:          filepath.Join(dir, "laws.json"),
		Violations:    filepath.Join(dir, "violations.json"),
		AugmentedLaws: filepath.Join(dir, out, "laws.augmented.json"),
		ViolationsOut: filepath.Join(dir, out, "violations.json"),
		Matches:       filepath.Join(dir, out, "matches.json"),
		Pathways:      filepath.Join(dir, out, "pathways.json"),
		Canonical:     true,
	}
}

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

// =============================================================================
// Tests
// =============================================================================

func TestNew_Errors(t *testing.T) {
	_, err := New(testConfig(), Deps{})
	assert.ErrorIs(t, err, ErrNoEmbedder)

	cfg := testConfig()
	cfg.TopK = 0
	_, err = New(cfg, Deps{Embedder: keywordEmbedder{}})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRun_DirectHit(t *testing.T) {
	dir := writeInputs(t, licensingViolation)
	p := newTestPipeline(t, Deps{})
	store := docstore.NewRouter(docstore.Config{})

	summary, err := p.Run(context.Background(), store, paths(dir, "out"))
	require.NoError(t, err)

	assert.Equal(t, "run-fixed", summary.RunID)
	assert.Equal(t, 1, summary.Violations.Loaded)
	assert.Equal(t, 1, summary.Match.TotalEvidence)
	assert.Equal(t, 1, summary.Match.TotalMatches)
	assert.Equal(t, 1, summary.Pathways.TotalViolationFormPairs)
	assert.GreaterOrEqual(t, summary.Pathways.DirectPaths, 1)
	assert.Positive(t, summary.Augment.Embedded)

	pw := readJSON(t, filepath.Join(dir, "out", "pathways.json"))
	optimal := pw["optimal_pathways"].(map[string]any)
	shortest := optimal["shortest_paths"].([]any)
	require.Len(t, shortest, 1)
	assert.Equal(t, float64(1), shortest[0].(map[string]any)["hops"])

	aug := readJSON(t, filepath.Join(dir, "out", "laws.augmented.json"))
	law := aug["states"].(map[string]any)["texas"].(map[string]any)["contractors"].(map[string]any)
	assert.Len(t, law["embedding"], len(topics)+1)

	data, err := os.ReadFile(filepath.Join(dir, "out", "matches.json"))
	require.NoError(t, err)
	assert.NoError(t, documents.Validate(documents.KindMatches, data))
}

func TestRun_NoPath(t *testing.T) {
	dir := writeInputs(t, parkingViolation)
	p := newTestPipeline(t, Deps{})

	summary, err := p.Run(context.Background(), docstore.NewRouter(docstore.Config{}), paths(dir, "out"))
	require.NoError(t, err)

	assert.Zero(t, summary.Pathways.TotalViolationFormPairs)
	assert.Equal(t, 1, summary.Pathways.NoPathPairs)
	assert.Zero(t, summary.Pathways.TotalPathsFound)

	pw := readJSON(t, filepath.Join(dir, "out", "pathways.json"))
	optimal := pw["optimal_pathways"].(map[string]any)
	assert.Empty(t, optimal["shortest_paths"])
}

func TestRun_Deterministic(t *testing.T) {
	dir := writeInputs(t, licensingViolation)
	store := docstore.NewRouter(docstore.Config{})

	_, err := newTestPipeline(t, Deps{}).Run(context.Background(), store, paths(dir, "a"))
	require.NoError(t, err)
	_, err = newTestPipeline(t, Deps{}).Run(context.Background(), store, paths(dir, "b"))
	require.NoError(t, err)

	for _, name := range []string{"matches.json", "pathways.json", "violations.json", "laws.augmented.json"} {
		a, err := os.ReadFile(filepath.Join(dir, "a", name))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(dir, "b", name))
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b), name)
	}
}

func TestRun_WithDiscovery(t *testing.T) {
	dir := writeInputs(t, licensingViolation)
	src := filepath.Join(dir, "sources", "checks")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "crew_license_verification.json"), []byte(verification), 0o600))

	ps := paths(dir, "out")
	ps.SourceRoot = filepath.Join(dir, "sources")
	summary, err := newTestPipeline(t, Deps{}).Run(context.Background(), docstore.NewRouter(docstore.Config{}), ps)
	require.NoError(t, err)

	require.NotNil(t, summary.Discovery)
	assert.Equal(t, 2, summary.Discovery.Merge.Added)
	assert.Equal(t, 3, summary.Match.TotalEvidence)

	out := readJSON(t, ps.ViolationsOut)
	meta := out["metadata"].(map[string]any)
	assert.Equal(t, float64(3), meta["total_violations"])
}

func TestRun_InvalidInput(t *testing.T) {
	dir := writeInputs(t, `{"violations": {"licensing_violations": {"oops": true}}}`)
	_, err := newTestPipeline(t, Deps{}).Run(context.Background(), docstore.NewRouter(docstore.Config{}), paths(dir, "out"))
	assert.ErrorIs(t, err, documents.ErrInvalidDocument)

	_, err = newTestPipeline(t, Deps{}).Run(context.Background(), docstore.NewRouter(docstore.Config{}), Paths{})
	assert.Error(t, err)

	missing := paths(dir, "out")
	missing.Laws = filepath.Join(dir, "nope.json")
	_, err = newTestPipeline(t, Deps{}).Run(context.Background(), docstore.NewRouter(docstore.Config{}), missing)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestIndexVectors(t *testing.T) {
	store := vectorstore.NewFileStore(filepath.Join(t.TempDir(), "vectors.json"))
	p := newTestPipeline(t, Deps{VectorStore: store})

	n, err := p.IndexVectors(context.Background(), []vectorstore.Vector{
		{ID: "doc-1", Text: "Acme Builders tax lien notice"},
		{ID: "doc-2", Embedding: []float32{0, 0, 0, 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Vectors(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []float32{0, 1, 0, 0}, got[0].Embedding)

	_, err = newTestPipeline(t, Deps{}).IndexVectors(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewEmbedder_Hashing(t *testing.T) {
	cfg := testConfig()
	cfg.Dimension = 32
	cfg.Cache = config.CacheConfig{Enabled: true, InMemory: true}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e, closeFn, err := NewEmbedder(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer func() { assert.NoError(t, closeFn()) }()

	vecs, err := e.Embed(ctx, []string{"contractor license", "contractor license"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 32)
	assert.Equal(t, vecs[0], vecs[1])
}

func TestNewVectorStore(t *testing.T) {
	cfg := testConfig()
	s, err := NewVectorStore(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, s)

	cfg.VectorStore = config.VectorStoreConfig{Kind: config.VectorStoreFile, Path: filepath.Join(t.TempDir(), "v.json")}
	s, err = NewVectorStore(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &vectorstore.FileStore{}, s)
}
