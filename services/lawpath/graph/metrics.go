// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for graph operations.
var (
	tracer = otel.Tracer("lawpath.graph")
	meter  = otel.Meter("lawpath.graph")
)

// Metrics for graph building and analytics.
var (
	buildLatency     metric.Float64Histogram
	buildTotal       metric.Int64Counter
	nodesCreated     metric.Int64Histogram
	edgesCreated     metric.Int64Histogram
	edgesSkipped     metric.Int64Counter
	analyticsLatency metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"lawpath_graph_build_duration_seconds",
			metric.WithDescription("Duration of connection graph builds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildTotal, err = meter.Int64Counter(
			"lawpath_graph_build_total",
			metric.WithDescription("Total number of connection graph builds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesCreated, err = meter.Int64Histogram(
			"lawpath_graph_nodes_created",
			metric.WithDescription("Number of nodes created per build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesCreated, err = meter.Int64Histogram(
			"lawpath_graph_edges_created",
			metric.WithDescription("Number of edges created per build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesSkipped, err = meter.Int64Counter(
			"lawpath_graph_edges_skipped_total",
			metric.WithDescription("Edges skipped because they referenced missing nodes or were invalid"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analyticsLatency, err = meter.Float64Histogram(
			"lawpath_graph_analytics_duration_seconds",
			metric.WithDescription("Duration of graph algorithms"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records metrics for a build operation.
func recordBuildMetrics(ctx context.Context, duration time.Duration, nodeCount, edgeCount, skipped int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))

	buildLatency.Record(ctx, duration.Seconds(), attrs)
	buildTotal.Add(ctx, 1, attrs)

	if success {
		nodesCreated.Record(ctx, int64(nodeCount))
		edgesCreated.Record(ctx, int64(edgeCount))
	}
	if skipped > 0 {
		edgesSkipped.Add(ctx, int64(skipped))
	}
}

// recordAnalyticsMetrics records the duration of one algorithm run.
func recordAnalyticsMetrics(ctx context.Context, algorithm string, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	analyticsLatency.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("algorithm", algorithm)),
	)
}

// startAnalyticsSpan creates a span for an algorithm run.
func startAnalyticsSpan(ctx context.Context, algorithm string, nodeCount, edgeCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "GraphAnalytics."+algorithm,
		trace.WithAttributes(
			attribute.Int("node_count", nodeCount),
			attribute.Int("edge_count", edgeCount),
		),
	)
}
