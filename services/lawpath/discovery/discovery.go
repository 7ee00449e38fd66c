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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/lawpath/services/lawpath/records"
	"github.com/AleutianAI/lawpath/services/lawpath/violations"
)

// DefaultJobTimeout bounds one extractor job.
const DefaultJobTimeout = 30 * time.Second

// Options configures Run.
type Options struct {
	// Root is the directory source globs are resolved against. When empty,
	// no file extractors run.
	Root string

	// Extractors select and parse source files. Default: DefaultExtractors()
	Extractors []Extractor

	// ML enables nearest-neighbour discovery when non-nil.
	ML *MLDiscovery

	// Workers bounds concurrent jobs. Default: runtime.NumCPU()
	Workers int

	// JobTimeout bounds each job. Default: 30s
	JobTimeout time.Duration

	Logger *slog.Logger

	// Now stamps discovered_at on new records. Default: time.Now
	Now func() time.Time
}

// Validate applies defaults.
func (o *Options) Validate() {
	if o.Extractors == nil {
		o.Extractors = DefaultExtractors()
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = DefaultJobTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Report summarises a discovery run.
type Report struct {
	SourcesScanned    int `json:"sources_scanned"`
	CandidatesFound   int `json:"candidates_found"`
	NewViolations     int `json:"new_violations"`
	SkippedDuplicates int `json:"skipped_duplicates"`
	SourceErrors      int `json:"source_errors"`
	Timeouts          int `json:"timeouts"`

	// BySource counts candidates per extractor kind.
	BySource map[string]int `json:"by_source"`

	DurationMs int64 `json:"duration_ms"`
}

// Result is the output of Run.
type Result struct {
	Report Report

	// Found holds only the new violations, routed into categories.
	Found *violations.Corpus
}

// job is one unit of work: a source file for an extractor, or the ML pass.
type job struct {
	kind string
	rel  string
	ext  Extractor
	ml   *MLDiscovery
}

type jobResult struct {
	found   []*records.Violation
	err     error
	timeout bool
}

// Run discovers candidate violations and keeps those new to existing.
//
// Description:
//
//	Resolves every extractor's glob under Root into jobs (sorted by path,
//	extractors in configured order, the ML pass last) and runs them on a
//	worker pool. Each job has its own timeout. A job that fails or times
//	out is logged, counted and contributes nothing. Candidates are then
//	de-duplicated in job order against the identity keys of existing and
//	against each other.
//
// Inputs:
//
//	ctx - Context for cancellation. Cancellation aborts the run.
//	existing - The current violation corpus; read only. May be nil.
//	opts - Options. If nil, defaults are used.
//
// Outputs:
//
//	*Result - Report and the corpus of new violations.
//	error - Bad glob pattern, unreadable root, or ctx.Err().
//
// Thread Safety: Safe for concurrent use if existing is not mutated
// during the call.
func Run(ctx context.Context, existing *violations.Corpus, opts *Options) (*Result, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "discovery.Run")
	defer span.End()

	if opts == nil {
		opts = &Options{}
	}
	opts.Validate()
	if existing == nil {
		existing = violations.New(&violations.Options{Logger: opts.Logger, Now: opts.Now})
	}

	jobs, err := planJobs(opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "planning failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("jobs", len(jobs)))

	known := existing.KeySet()
	var prior []*records.Violation
	if opts.ML != nil {
		for _, e := range existing.IterAll() {
			prior = append(prior, e.Violation)
		}
	}

	results := make([]jobResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			jctx, cancel := context.WithTimeout(gctx, opts.JobTimeout)
			defer cancel()

			found, err := runJob(jctx, opts.Root, j, prior)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			switch {
			case err == nil:
				results[i] = jobResult{found: found}
				jobsTotal.WithLabelValues(j.kind, "ok").Inc()
			case errors.Is(err, context.DeadlineExceeded):
				opts.Logger.Warn("discovery job timed out",
					slog.String("kind", j.kind),
					slog.String("source", j.rel),
					slog.Duration("timeout", opts.JobTimeout),
				)
				results[i] = jobResult{err: ErrJobTimeout, timeout: true}
				jobsTotal.WithLabelValues(j.kind, "timeout").Inc()
			default:
				opts.Logger.Warn("discovery source failed",
					slog.String("kind", j.kind),
					slog.String("source", j.rel),
					slog.String("error", err.Error()),
				)
				results[i] = jobResult{err: err}
				jobsTotal.WithLabelValues(j.kind, "error").Inc()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "discovery cancelled")
		return nil, err
	}

	found := violations.New(&violations.Options{Logger: opts.Logger, Now: opts.Now})
	report := Report{SourcesScanned: len(jobs), BySource: make(map[string]int)}
	stamp := rawString(opts.Now().UTC().Format(time.RFC3339))

	for i, r := range results {
		switch {
		case r.timeout:
			report.Timeouts++
			continue
		case r.err != nil:
			report.SourceErrors++
			continue
		}
		report.CandidatesFound += len(r.found)
		report.BySource[jobs[i].kind] += len(r.found)

		for _, v := range r.found {
			if _, dup := known[v.Key()]; dup {
				report.SkippedDuplicates++
				candidatesTotal.WithLabelValues("duplicate").Inc()
				continue
			}
			if v.Extra == nil {
				v.Extra = make(map[string]json.RawMessage)
			}
			v.Extra["discovered_at"] = stamp
			v.Extra["curated"] = json.RawMessage("true")
			if !found.Add(v) {
				report.SkippedDuplicates++
				candidatesTotal.WithLabelValues("duplicate").Inc()
				continue
			}
			report.NewViolations++
			candidatesTotal.WithLabelValues("new").Inc()
		}
	}

	elapsed := time.Since(start)
	report.DurationMs = elapsed.Milliseconds()
	runDuration.Observe(elapsed.Seconds())
	span.SetAttributes(
		attribute.Int("candidates", report.CandidatesFound),
		attribute.Int("new_violations", report.NewViolations),
		attribute.Int("source_errors", report.SourceErrors),
		attribute.Int("timeouts", report.Timeouts),
	)
	opts.Logger.Info("discovery complete",
		slog.Int("sources_scanned", report.SourcesScanned),
		slog.Int("candidates_found", report.CandidatesFound),
		slog.Int("new_violations", report.NewViolations),
		slog.Int("skipped_duplicates", report.SkippedDuplicates),
		slog.Int("source_errors", report.SourceErrors),
		slog.Int("timeouts", report.Timeouts),
		slog.Duration("duration", elapsed),
	)
	return &Result{Report: report, Found: found}, nil
}

// planJobs expands extractor globs under the root into an ordered job list.
func planJobs(opts *Options) ([]job, error) {
	var jobs []job
	if opts.Root != "" && len(opts.Extractors) > 0 {
		info, err := os.Stat(opts.Root)
		if err != nil {
			return nil, fmt.Errorf("%w: root %s: %v", ErrSourceUnreadable, opts.Root, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%w: root %s is not a directory", ErrSourceUnreadable, opts.Root)
		}

		fsys := os.DirFS(opts.Root)
		for _, ext := range opts.Extractors {
			matches, err := doublestar.Glob(fsys, ext.Glob(), doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("glob %q for %s: %w", ext.Glob(), ext.Kind(), err)
			}
			sort.Strings(matches)
			for _, rel := range matches {
				jobs = append(jobs, job{kind: ext.Kind(), rel: rel, ext: ext})
			}
		}
	}
	if opts.ML != nil {
		jobs = append(jobs, job{kind: "ml", rel: MLSource, ml: opts.ML})
	}
	return jobs, nil
}

func runJob(ctx context.Context, root string, j job, prior []*records.Violation) ([]*records.Violation, error) {
	if j.ml != nil {
		return j.ml.Discover(ctx, prior)
	}
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(j.rel)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnreadable, j.rel, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return j.ext.Extract(ctx, Source{Rel: j.rel, Data: data})
}
