// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the single run configuration for lawpath.
//
// A YAML file is overlaid on Default() and then validated with struct
// tags. Nothing here reads environment variables; the CLI resolves
// secrets and passes them in.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/lawpath/pkg/telemetry"
	"github.com/AleutianAI/lawpath/services/lawpath/docstore"
)

// ErrInvalidConfig wraps every load and validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Embedder backends.
const (
	BackendHashing = "hashing"
	BackendOpenAI  = "openai"
)

// Vector store kinds for ML discovery.
const (
	VectorStoreNone     = "none"
	VectorStoreFile     = "file"
	VectorStoreWeaviate = "weaviate"
)

// Config is the complete run configuration.
type Config struct {
	TopK              int           `yaml:"top_k" validate:"gte=1,lte=1000"`
	TauVL             float64       `yaml:"tau_vl" validate:"gt=0,lte=1"`
	TauVF             float64       `yaml:"tau_vf" validate:"gt=0,lte=1"`
	TauVV             float64       `yaml:"tau_vv" validate:"gt=0,lte=1"`
	FormsPerViolation int           `yaml:"forms_per_violation" validate:"gte=1"`
	MaxPathLength     int           `yaml:"max_path_length" validate:"gte=1,lte=10"`
	Dimension         int           `yaml:"dimension" validate:"gte=1"`
	ModelName         string        `yaml:"model_name" validate:"required"`
	BatchSize         int           `yaml:"batch_size" validate:"gte=1"`
	Workers           int           `yaml:"workers" validate:"gte=1"`
	JobTimeout        time.Duration `yaml:"job_timeout" validate:"gt=0"`

	Embedder    EmbedderConfig    `yaml:"embedder"`
	Cache       CacheConfig       `yaml:"cache"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	Storage     docstore.Config   `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
	Telemetry   telemetry.Config  `yaml:"telemetry"`
	Server      ServerConfig      `yaml:"server"`
}

// EmbedderConfig selects and tunes the embedding backend.
type EmbedderConfig struct {
	// Backend is "hashing" (offline, deterministic) or "openai" (any
	// OpenAI-compatible /embeddings server).
	Backend string `yaml:"backend" validate:"oneof=hashing openai"`

	BaseURL string `yaml:"base_url" validate:"omitempty,url"`

	// APIKey is never written back out.
	APIKey string `yaml:"-"`

	// RequestDimensions sends the dimension with each request.
	RequestDimensions bool          `yaml:"request_dimensions"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int           `yaml:"burst" validate:"gte=0"`
	BatchTimeout      time.Duration `yaml:"batch_timeout" validate:"gte=0"`
}

// CacheConfig configures the badger embedding cache.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Path     string        `yaml:"path"`
	InMemory bool          `yaml:"in_memory"`
	GCEvery  time.Duration `yaml:"gc_interval" validate:"gte=0"`
}

// VectorStoreConfig selects the prior-embedding store used by ML discovery.
type VectorStoreConfig struct {
	Kind  string `yaml:"kind" validate:"oneof=none file weaviate"`
	Path  string `yaml:"path"`
	URL   string `yaml:"url" validate:"omitempty,url"`
	Class string `yaml:"class"`
}

// DiscoveryConfig tunes discovery runs.
type DiscoveryConfig struct {
	Root        string        `yaml:"root"`
	MLThreshold float64       `yaml:"ml_threshold" validate:"gt=0,lte=1"`
	Debounce    time.Duration `yaml:"debounce" validate:"gte=0"`
}

// LoggingConfig mirrors pkg/logging.Config in YAML form.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
	Quiet bool   `yaml:"quiet"`
}

// ServerConfig configures `lawpath serve`.
type ServerConfig struct {
	Addr         string        `yaml:"addr" validate:"required"`
	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" validate:"gte=0"`
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		TopK:              5,
		TauVL:             0.70,
		TauVF:             0.60,
		TauVV:             0.70,
		FormsPerViolation: 3,
		MaxPathLength:     3,
		Dimension:         384,
		ModelName:         "all-MiniLM-L6-v2",
		BatchSize:         100,
		Workers:           runtime.NumCPU(),
		JobTimeout:        30 * time.Second,
		Embedder: EmbedderConfig{
			Backend:      BackendHashing,
			BatchTimeout: 60 * time.Second,
		},
		Cache: CacheConfig{GCEvery: 10 * time.Minute},
		VectorStore: VectorStoreConfig{
			Kind:  VectorStoreNone,
			Class: "LawpathVector",
		},
		Discovery: DiscoveryConfig{
			MLThreshold: 0.70,
			Debounce:    2 * time.Second,
		},
		Logging:   LoggingConfig{Level: "info"},
		Telemetry: telemetry.DefaultConfig(),
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			MaxBodyBytes: 16 << 20,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch {
	case c.Cache.Enabled && !c.Cache.InMemory && c.Cache.Path == "":
		return fmt.Errorf("%w: cache.path is required for a persistent cache", ErrInvalidConfig)
	case c.VectorStore.Kind == VectorStoreFile && c.VectorStore.Path == "":
		return fmt.Errorf("%w: vector_store.path is required for kind file", ErrInvalidConfig)
	case c.VectorStore.Kind == VectorStoreWeaviate && c.VectorStore.URL == "":
		return fmt.Errorf("%w: vector_store.url is required for kind weaviate", ErrInvalidConfig)
	}
	return nil
}

// Load reads path, overlays it on Default() and validates the result.
// An empty path returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
		}
		if err := cfg.overlay(data); err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse overlays YAML data on Default() and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := cfg.overlay(data); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) overlay(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Marshal renders the configuration as YAML. Secrets are omitted.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
