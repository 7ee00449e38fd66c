// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package matcher

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("lawpath.matcher")
	meter  = otel.Meter("lawpath.matcher")
)

var (
	matchLatency  metric.Float64Histogram
	matchOutcomes metric.Int64Counter
	matchScores   metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		matchLatency, err = meter.Float64Histogram(
			"lawpath_match_duration_seconds",
			metric.WithDescription("Duration of a full matching run"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		matchOutcomes, err = meter.Int64Counter(
			"lawpath_match_violations_total",
			metric.WithDescription("Violations matched by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		matchScores, err = meter.Float64Histogram(
			"lawpath_match_ensemble_score",
			metric.WithDescription("Ensemble score of retained matches"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordRun(ctx context.Context, d time.Duration, stats Stats) {
	if err := initMetrics(); err != nil {
		return
	}
	matchLatency.Record(ctx, d.Seconds())

	add := func(outcome string, n int) {
		if n > 0 {
			matchOutcomes.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
		}
	}
	failed := stats.MissingViolationEmbeddings + stats.ViolationErrors + stats.Timeouts
	add("matched", stats.TotalEvidence-failed)
	add("missing_embedding", stats.MissingViolationEmbeddings)
	add("error", stats.ViolationErrors)
	add("timeout", stats.Timeouts)
}

func recordScores(ctx context.Context, matches []Match) {
	if err := initMetrics(); err != nil {
		return
	}
	for _, m := range matches {
		matchScores.Record(ctx, m.EnsembleScore, metric.WithAttributes(attribute.Bool("ground_truth", m.IsGroundTruth)))
	}
}
