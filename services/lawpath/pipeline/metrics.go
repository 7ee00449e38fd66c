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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("lawpath.pipeline")
	meter  = otel.Meter("lawpath.pipeline")
)

var (
	stageLatency metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		stageLatency, metricsErr = meter.Float64Histogram(
			"lawpath_pipeline_stage_duration_seconds",
			metric.WithDescription("Duration of one pipeline stage"),
			metric.WithUnit("s"),
		)
	})
	return metricsErr
}

func recordStage(ctx context.Context, stage string, d time.Duration) {
	if initMetrics() != nil {
		return
	}
	stageLatency.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}
