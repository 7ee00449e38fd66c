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
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Default configuration values.
const (
	// DefaultDimension matches all-MiniLM-L6-v2.
	DefaultDimension = 384

	// DefaultBatchSize is the number of texts per backend call.
	DefaultBatchSize = 100

	// DefaultBatchTimeout bounds one backend call.
	DefaultBatchTimeout = 60 * time.Second

	// DefaultModel is the canonical sentence-level model name.
	DefaultModel = "all-MiniLM-L6-v2"
)

// Embedder produces unit-length vectors for a list of strings.
type Embedder interface {
	// Embed returns one row per input, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns D.
	Dimension() int

	// Model names the model that produced the vectors.
	Model() string
}

// Backend is the raw model call behind a BatchEmbedder.
//
// EmbedBatch receives at most BatchSize texts and must return one vector per
// text in order. Vectors need not be normalised. Wrap retryable failures
// with ErrTransient.
type Backend interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Options configures a BatchEmbedder.
type Options struct {
	// Dimension is the required vector dimension. Default: 384
	Dimension int

	// BatchSize is the number of texts per backend call. Default: 100
	BatchSize int

	// Workers bounds concurrent backend calls. Default: runtime.NumCPU()
	Workers int

	// BatchTimeout bounds a single backend call. Expiry counts as
	// transient. Default: 60s
	BatchTimeout time.Duration

	// Logger receives retry and failure events. Default: slog.Default()
	Logger *slog.Logger
}

// Validate checks options and applies defaults for invalid values.
func (o *Options) Validate() {
	if o.Dimension <= 0 {
		o.Dimension = DefaultDimension
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = DefaultBatchTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	o := &Options{}
	o.Validate()
	return o
}

// BatchEmbedder splits inputs into batches, fans them out to a Backend and
// enforces the dimension and normalisation contract on every row.
type BatchEmbedder struct {
	backend Backend
	opts    Options
}

// NewBatchEmbedder wraps backend. A nil opts uses DefaultOptions().
func NewBatchEmbedder(backend Backend, opts *Options) *BatchEmbedder {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.Validate()
	return &BatchEmbedder{backend: backend, opts: o}
}

// Dimension returns the configured D.
func (e *BatchEmbedder) Dimension() int { return e.opts.Dimension }

// Model returns the backend model name.
func (e *BatchEmbedder) Model() string { return e.backend.Model() }

// Embed vectorises texts.
//
// Description:
//
//	Texts are split into BatchSize chunks which run on up to Workers
//	goroutines. Each chunk gets its own BatchTimeout. A transient failure
//	is retried once; any other failure, or a second transient failure,
//	cancels the remaining chunks and fails the call.
//
// Inputs:
//
//   - ctx: Context for cancellation. Must not be nil.
//   - texts: Strings to embed. An empty list returns an empty result.
//
// Outputs:
//
//   - [][]float32: len(texts) unit vectors of dimension D, in input order.
//   - error: wraps ErrEmbeddingFailed, ErrDimensionMismatch or ErrZeroVector.
//
// Thread Safety: Safe for concurrent use.
func (e *BatchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := tracer.Start(ctx, "BatchEmbedder.Embed",
		trace.WithAttributes(
			attribute.Int("embed.texts", len(texts)),
			attribute.Int("embed.batch_size", e.opts.BatchSize),
			attribute.String("embed.model", e.backend.Model()),
		),
	)
	defer span.End()

	if len(texts) == 0 {
		span.AddEvent("empty_input")
		return [][]float32{}, nil
	}

	start := time.Now()
	out := make([][]float32, len(texts))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for lo := 0; lo < len(texts); lo += e.opts.BatchSize {
		hi := lo + e.opts.BatchSize
		if hi > len(texts) {
			hi = len(texts)
		}
		lo, hi := lo, hi
		g.Go(func() error {
			vecs, err := e.embedWithRetry(gCtx, texts[lo:hi])
			if err != nil {
				return fmt.Errorf("batch [%d:%d]: %w", lo, hi, err)
			}
			for i, v := range vecs {
				norm, err := e.check(v)
				if err != nil {
					return fmt.Errorf("item %d: %w", lo+i, err)
				}
				out[lo+i] = norm
			}
			return nil
		})
	}

	err := g.Wait()
	recordEmbedMetrics(ctx, e.backend.Model(), len(texts), time.Since(start), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed failed")
		return nil, err
	}
	return out, nil
}

// embedWithRetry calls the backend once, and once more on a transient error.
func (e *BatchEmbedder) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	vecs, err := e.callBackend(ctx, batch)
	if err == nil {
		return vecs, nil
	}
	if !errors.Is(err, ErrTransient) || ctx.Err() != nil {
		return nil, err
	}

	e.opts.Logger.Warn("retrying transient embedding failure",
		slog.Int("batch_len", len(batch)),
		slog.String("error", err.Error()),
	)
	recordRetry(ctx, e.backend.Model())

	vecs, err = e.callBackend(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("after retry: %w", err)
	}
	return vecs, nil
}

// callBackend runs one backend call under the batch timeout.
func (e *BatchEmbedder) callBackend(ctx context.Context, batch []string) ([][]float32, error) {
	bctx, cancel := context.WithTimeout(ctx, e.opts.BatchTimeout)
	defer cancel()

	vecs, err := e.backend.EmbedBatch(bctx, batch)
	if err != nil {
		if errors.Is(bctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %w: batch timeout after %s", ErrEmbeddingFailed, ErrTransient, e.opts.BatchTimeout)
		}
		if errors.Is(err, ErrEmbeddingFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("%w: backend returned %d vectors for %d texts", ErrEmbeddingFailed, len(vecs), len(batch))
	}
	return vecs, nil
}

// check enforces dimension and returns the normalised row.
func (e *BatchEmbedder) check(v []float32) ([]float32, error) {
	if len(v) != e.opts.Dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), e.opts.Dimension)
	}
	return Normalize(v)
}
