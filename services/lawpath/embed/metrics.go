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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("lawpath.embed")
	meter  = otel.Meter("lawpath.embed")
)

var (
	embedLatency metric.Float64Histogram
	embedTexts   metric.Int64Counter
	embedRetries metric.Int64Counter
	cacheLookups metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		embedLatency, err = meter.Float64Histogram(
			"lawpath_embed_duration_seconds",
			metric.WithDescription("Duration of Embed calls"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		embedTexts, err = meter.Int64Counter(
			"lawpath_embed_texts_total",
			metric.WithDescription("Texts submitted for embedding"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		embedRetries, err = meter.Int64Counter(
			"lawpath_embed_retries_total",
			metric.WithDescription("Transient backend failures retried"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheLookups, err = meter.Int64Counter(
			"lawpath_embed_cache_lookups_total",
			metric.WithDescription("Embedding cache lookups by result"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordEmbedMetrics(ctx context.Context, model string, n int, d time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.Bool("success", success),
	)
	embedLatency.Record(ctx, d.Seconds(), attrs)
	embedTexts.Add(ctx, int64(n), attrs)
}

func recordRetry(ctx context.Context, model string) {
	if err := initMetrics(); err != nil {
		return
	}
	embedRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
}

func recordCache(ctx context.Context, hits, misses int) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheLookups.Add(ctx, int64(hits), metric.WithAttributes(attribute.String("result", "hit")))
	cacheLookups.Add(ctx, int64(misses), metric.WithAttributes(attribute.String("result", "miss")))
}
