// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("lawpath.discovery")

var (
	// candidatesTotal counts candidates by dedup outcome (new, duplicate).
	candidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lawpath",
		Subsystem: "discovery",
		Name:      "candidates_total",
		Help:      "Discovered candidate violations by outcome",
	}, []string{"outcome"})

	// jobsTotal counts jobs by extractor kind and outcome (ok, error, timeout).
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lawpath",
		Subsystem: "discovery",
		Name:      "jobs_total",
		Help:      "Discovery jobs by extractor kind and outcome",
	}, []string{"kind", "outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "lawpath",
		Subsystem: "discovery",
		Name:      "run_duration_seconds",
		Help:      "Duration of a full discovery run",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	})
)
