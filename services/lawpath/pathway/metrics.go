// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pathway

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("lawpath.pathway")
	meter  = otel.Meter("lawpath.pathway")
)

var (
	analyzeLatency metric.Float64Histogram
	pairOutcomes   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		analyzeLatency, err = meter.Float64Histogram(
			"lawpath_pathway_analyze_duration_seconds",
			metric.WithDescription("Duration of a full pathway analysis"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		pairOutcomes, err = meter.Int64Counter(
			"lawpath_pathway_pairs_total",
			metric.WithDescription("Violation/form pairs analysed by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordAnalyze(ctx context.Context, d time.Duration, s Summary) {
	if err := initMetrics(); err != nil {
		return
	}
	analyzeLatency.Record(ctx, d.Seconds())

	add := func(outcome string, n int) {
		if n > 0 {
			pairOutcomes.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
		}
	}
	add("path", s.TotalViolationFormPairs)
	add("no_path", s.NoPathPairs)
	add("timeout", s.Timeouts)
}
