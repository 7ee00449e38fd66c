// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 0.70, cfg.TauVL)
	assert.Equal(t, 0.60, cfg.TauVF)
	assert.Equal(t, 0.70, cfg.TauVV)
	assert.Equal(t, 3, cfg.MaxPathLength)
	assert.Equal(t, 384, cfg.Dimension)
	assert.Equal(t, "all-MiniLM-L6-v2", cfg.ModelName)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
	assert.Positive(t, cfg.Workers)
	assert.Equal(t, BackendHashing, cfg.Embedder.Backend)
	assert.Equal(t, VectorStoreNone, cfg.VectorStore.Kind)
}

func TestParse_Overlay(t *testing.T) {
	cfg, err := Parse([]byte(`
top_k: 10
tau_vl: 0.8
job_timeout: 45s
embedder:
  backend: openai
  base_url: http://localhost:8000/v1
  requests_per_second: 5
vector_store:
  kind: weaviate
  url: http://localhost:8081
server:
  addr: 127.0.0.1:9000
`))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.TopK)
	assert.Equal(t, 0.8, cfg.TauVL)
	assert.Equal(t, 45*time.Second, cfg.JobTimeout)
	assert.Equal(t, BackendOpenAI, cfg.Embedder.Backend)
	assert.Equal(t, 5.0, cfg.Embedder.RequestsPerSecond)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 0.60, cfg.TauVF, "untouched keys keep defaults")
	assert.Equal(t, "LawpathVector", cfg.VectorStore.Class)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default().TopK, cfg.TopK)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "top_kk: 3"},
		{"zero top_k", "top_k: 0"},
		{"tau above one", "tau_vl: 1.5"},
		{"bad backend", "embedder: {backend: bert}"},
		{"bad base url", "embedder: {base_url: 'not a url'}"},
		{"bad trace exporter", "telemetry: {trace_exporter: zipkin}"},
		{"bad log level", "logging: {level: loud}"},
		{"file store without path", "vector_store: {kind: file}"},
		{"weaviate without url", "vector_store: {kind: weaviate}"},
		{"persistent cache without path", "cache: {enabled: true}"},
		{"bad duration", "job_timeout: soon"},
		{"malformed", "top_k: [1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lawpath.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_path_length: 2\ncache: {enabled: true, in_memory: true}\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxPathLength)
	assert.True(t, cfg.Cache.InMemory)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxPathLength)
}

func TestMarshal_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Embedder.APIKey = "sk-embed-hunter1"
	cfg.Storage.S3Region = "us-east-2"
	cfg.Storage.S3AccessKey = "AKIAHUNTER"
	cfg.Storage.S3SecretKey = "hunter2"

	data, err := cfg.Marshal()
	require.NoError(t, err)
	for _, secret := range []string{"sk-embed-hunter1", "AKIAHUNTER", "hunter2"} {
		assert.NotContains(t, string(data), secret)
	}
	assert.Contains(t, string(data), "us-east-2")

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg.JobTimeout, back.JobTimeout)
	assert.Equal(t, cfg.Server, back.Server)
	assert.Empty(t, back.Embedder.APIKey)
	assert.Empty(t, back.Storage.S3AccessKey)
	assert.Empty(t, back.Storage.S3SecretKey)
}

func TestParse_RejectsCredentialKeys(t *testing.T) {
	_, err := Parse([]byte("storage:\n  s3_secret_key: hunter2\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
