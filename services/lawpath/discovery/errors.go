// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package discovery produces candidate violation records from upstream
// sources and keeps only those new to the violation corpus.
//
// Sources are files under a root directory selected by glob, plus an
// optional prior embedding store. Each file is one job; jobs run on a
// bounded worker pool with an individual timeout, and a failing or slow
// source never fails the run.
//
// # Extractors
//
//   - TaxDumpExtractor: line-oriented filing dumps with Tax Forfeiture and
//     Forfeited Existence markers.
//   - LicenseSearchExtractor: per-person license search results, one JSON
//     file per person and state.
//   - VerificationExtractor: nested license verification documents with
//     confirmed_unlicensed, status and result fields.
//   - ReportExtractor: free-text reports scanned for category keywords.
//   - MLDiscovery: nearest-neighbour suggestions from a vector store.
package discovery

import "errors"

var (
	// ErrSourceUnreadable is returned when a source cannot be read or parsed.
	ErrSourceUnreadable = errors.New("discovery source unreadable")

	// ErrJobTimeout marks a job abandoned after its timeout.
	ErrJobTimeout = errors.New("discovery job timed out")
)
