// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/lawpath/pkg/extensions"
	"github.com/AleutianAI/lawpath/pkg/logging"
	"github.com/AleutianAI/lawpath/services/lawpath/config"
	"github.com/AleutianAI/lawpath/services/lawpath/documents"
)

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

const violationDoc = `{
  "metadata": {"created": "2025-01-01T00:00:00Z", "version": "1.0"},
  "violations": {
    "licensing_violations": [
      {"violation_type": "Unlicensed Practice", "entity_name": "Acme Builders",
       "description": "Operating without a contractor license", "severity": "HIGH", "source": "registry"}
    ]
  }
}`

const verification = `{"personnel_list": [
  {"name": "bob_jones", "license_verification": {"va_search": {"status": "NOT_FOUND"}}},
  {"name": "carol_white", "license_verification": {"confirmed_unlicensed": true}}
]}`

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--log-level", "error", "--output", "machine"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// =============================================================================
// Commands
// =============================================================================

func TestRun_WritesAllDocuments(t *testing.T) {
	dir := t.TempDir()
	laws := writeFile(t, dir, "laws.json", lawsDoc)
	viols := writeFile(t, dir, "violations.json", violationDoc)
	out := filepath.Join(dir, "out")

	stdout, err := execute(t, "run", "--laws", laws, "--violations", viols, "--out-dir", out, "--canonical")
	require.NoError(t, err)

	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.NotEmpty(t, summary["run_id"])

	for name, kind := range map[string]documents.Kind{
		violationsFile:    documents.KindViolations,
		augmentedLawsFile: documents.KindLaws,
		matchesFile:       documents.KindMatches,
		pathwaysFile:      documents.KindPathways,
	} {
		data, err := os.ReadFile(filepath.Join(out, name))
		require.NoError(t, err, name)
		assert.NoError(t, documents.Validate(kind, data), name)
	}
}

func TestEmbed_Stdout(t *testing.T) {
	dir := t.TempDir()
	laws := writeFile(t, dir, "laws.json", lawsDoc)

	stdout, err := execute(t, "embed", "--laws", laws)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"embedding"`)
	assert.Contains(t, stdout, `"embedding_text": "`)
}

func TestMatchAndGraph(t *testing.T) {
	dir := t.TempDir()
	laws := writeFile(t, dir, "laws.json", lawsDoc)
	viols := writeFile(t, dir, "violations.json", violationDoc)
	matches := filepath.Join(dir, "matches.json")
	pathways := filepath.Join(dir, "pathways.json")

	stdout, err := execute(t, "match", "--laws", laws, "--violations", viols)
	require.NoError(t, err)
	assert.NoError(t, documents.Validate(documents.KindMatches, []byte(stdout)))

	_, err = execute(t, "graph", "--laws", laws, "--violations", viols,
		"--matches", matches, "--out", pathways, "--max-path-length", "2")
	require.NoError(t, err)

	data, err := os.ReadFile(pathways)
	require.NoError(t, err)
	assert.NoError(t, documents.Validate(documents.KindPathways, data))
	var doc documents.PathwayDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 2, doc.Metadata.MaxPathLength)

	_, err = os.Stat(matches)
	assert.NoError(t, err)
}

func TestDiscover_CreatesDocument(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, filepath.Join("sources", "crew_license_verification.json"), verification)
	viols := filepath.Join(dir, "violations.json")

	_, err := execute(t, "discover", "--violations", viols, "--root", filepath.Join(dir, "sources"))
	require.NoError(t, err)

	data, err := os.ReadFile(viols)
	require.NoError(t, err)
	require.NoError(t, documents.Validate(documents.KindViolations, data))

	var doc struct {
		Metadata struct {
			TotalViolations int `json:"total_violations"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 2, doc.Metadata.TotalViolations)

	// A second pass finds only duplicates.
	_, err = execute(t, "discover", "--violations", viols, "--root", filepath.Join(dir, "sources"))
	require.NoError(t, err)
	data, err = os.ReadFile(viols)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 2, doc.Metadata.TotalViolations)
}

func TestDiscover_NeedsASource(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "discover", "--violations", filepath.Join(dir, "v.json"))
	assert.Error(t, err)
}

func TestVectorsImport(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "vectors.json")
	cfg := writeFile(t, dir, "lawpath.yaml", "dimension: 8\nvector_store:\n  kind: file\n  path: "+store+"\n")
	in := writeFile(t, dir, "records.json", `[{"id": "a", "text": "Acme Builders tax lien"}, {"id": "b", "text": "Bob Smith permit"}]`)

	stdout, err := execute(t, "--config", cfg, "vectors", "import", "--in", in)
	require.NoError(t, err)

	var got map[string]int
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, map[string]int{"stored": 2, "embedded": 2}, got)

	data, err := os.ReadFile(store)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id": "a"`)
}

func TestVectorsImport_NoStore(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "records.json", `[]`)
	_, err := execute(t, "vectors", "import", "--in", in)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.json", violationDoc)
	bad := writeFile(t, dir, "bad.json", `{"violations": {"x": {"y": 1}}}`)

	stdout, err := execute(t, "validate", "--kind", "violations", good)
	require.NoError(t, err)
	assert.Equal(t, "OK\t"+good+"\n", stdout)

	stdout, err = execute(t, "validate", "--kind", "violations", good, bad)
	assert.Error(t, err)
	assert.Contains(t, stdout, "FAIL\t"+bad+"\t")

	_, err = execute(t, "validate", "--kind", "nope", good)
	assert.Error(t, err)
}

func TestConfig_PrintsEffectiveValues(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "lawpath.yaml", "top_k: 7\n")

	stdout, err := execute(t, "--config", cfg, "config")
	require.NoError(t, err)
	assert.Contains(t, stdout, "top_k: 7")
	assert.Contains(t, stdout, "tau_vl: 0.7")
}

func TestConfig_OmitsEnvCredentials(t *testing.T) {
	t.Setenv(apiKeyEnv[0], "sk-embed-hunter1")
	t.Setenv(s3AccessKeyEnv, "AKIAHUNTER")
	t.Setenv(s3SecretKeyEnv, "hunter2")

	stdout, err := execute(t, "config")
	require.NoError(t, err)
	for _, secret := range []string{"sk-embed-hunter1", "AKIAHUNTER", "hunter2"} {
		assert.NotContains(t, stdout, secret)
	}
}

func TestApplyEnvSecrets(t *testing.T) {
	t.Setenv(apiKeyEnv[0], "")
	t.Setenv(apiKeyEnv[1], "sk-fallback")
	t.Setenv(s3AccessKeyEnv, "AKIAHUNTER")
	t.Setenv(s3SecretKeyEnv, "hunter2")

	cfg := config.Default()
	applyEnvSecrets(&cfg)
	assert.Equal(t, "sk-fallback", cfg.Embedder.APIKey)
	assert.Equal(t, "AKIAHUNTER", cfg.Storage.S3AccessKey)
	assert.Equal(t, "hunter2", cfg.Storage.S3SecretKey)
}

func TestGlobalFlags_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "--env-file", filepath.Join(dir, "missing.env"), "config")
	assert.Error(t, err)

	bad := writeFile(t, dir, "bad.yaml", "top_k: 0\n")
	_, err = execute(t, "--config", bad, "config")
	assert.Error(t, err)

	_, err = execute(t, "match", "--laws", "x.json")
	assert.Error(t, err)
}

// =============================================================================
// Helpers
// =============================================================================

func TestServiceOptions_Tokens(t *testing.T) {
	a := newTestApp(t)

	t.Setenv(apiTokensEnv, "")
	_, ok := a.serviceOptions().AuthProvider.(*extensions.NopAuthProvider)
	assert.True(t, ok)

	t.Setenv(apiTokensEnv, "alice:s3cret")
	auth := a.serviceOptions().AuthProvider
	info, err := auth.Validate(context.Background(), "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", info.UserID)
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	return &app{logger: logging.New(logging.Config{Level: logging.LevelError, Quiet: true, Writer: io.Discard})}
}

func TestJoinLocation(t *testing.T) {
	tests := []struct {
		dir, name, want string
	}{
		{"", "a.json", "a.json"},
		{"out", "a.json", "out/a.json"},
		{"out/", "a.json", "out/a.json"},
		{"gs://bucket/runs/1", "a.json", "gs://bucket/runs/1/a.json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, joinLocation(tt.dir, tt.name))
	}
}

func TestDecodeVectors(t *testing.T) {
	v, err := decodeVectors([]byte(` [{"id": "a"}]`))
	require.NoError(t, err)
	assert.Len(t, v, 1)

	v, err = decodeVectors([]byte(`{"vectors": [{"id": "a"}, {"id": "b", "embedding": [1, 0]}]}`))
	require.NoError(t, err)
	require.Len(t, v, 2)
	assert.Equal(t, []float32{1, 0}, v[1].Embedding)

	_, err = decodeVectors([]byte(`{`))
	assert.Error(t, err)
}
