// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIConfig configures an OpenAI-compatible embeddings backend.
type OpenAIConfig struct {
	// BaseURL of the API, e.g. "http://localhost:8000/v1". Empty uses the
	// OpenAI default.
	BaseURL string

	// APIKey is sent as a bearer token. May be empty for local servers.
	APIKey string

	// Model is the embedding model name.
	Model string

	// Dimensions, when > 0, is sent as the requested output dimension.
	// Leave zero for servers that reject the parameter.
	Dimensions int

	// RequestsPerSecond throttles backend calls. Zero disables throttling.
	RequestsPerSecond float64

	// Burst is the limiter burst. Default: 1
	Burst int

	// HTTPClient overrides the transport (tests, proxies).
	HTTPClient *http.Client
}

// OpenAIBackend calls /embeddings through go-openai.
//
// Thread Safety: Safe for concurrent use.
type OpenAIBackend struct {
	client  *openai.Client
	model   string
	dims    int
	limiter *rate.Limiter
}

// NewOpenAIBackend builds a backend from cfg.
//
// Errors:
//
//	ErrInvalidConfig - Model is empty
func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	slog.Info("Initializing embeddings client",
		slog.String("model", cfg.Model),
		slog.Bool("custom_base_url", cfg.BaseURL != ""),
	)

	return &OpenAIBackend{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		dims:    cfg.Dimensions,
		limiter: limiter,
	}, nil
}

// Model returns the configured model name.
func (b *OpenAIBackend) Model() string { return b.model }

// EmbedBatch requests embeddings for one batch.
//
// Rows are reordered by the response's index field so output order always
// matches input order.
func (b *OpenAIBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req := openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(b.model),
	}
	if b.dims > 0 {
		req.Dimensions = b.dims
	}

	resp, err := b.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("%w: response index %d out of range", ErrEmbeddingFailed, d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: no vector for input %d", ErrEmbeddingFailed, i)
		}
	}
	return out, nil
}

// classifyOpenAIError marks rate limits, server errors and network timeouts
// as transient.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && isRetryableStatus(apiErr.HTTPStatusCode) {
		return fmt.Errorf("%w: %w: %w", ErrEmbeddingFailed, ErrTransient, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && isRetryableStatus(reqErr.HTTPStatusCode) {
		return fmt.Errorf("%w: %w: %w", ErrEmbeddingFailed, ErrTransient, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w: %w", ErrEmbeddingFailed, ErrTransient, err)
	}
	return fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
