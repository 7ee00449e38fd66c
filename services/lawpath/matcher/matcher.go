// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package matcher ranks laws for each violation with a fixed ensemble of
// similarity metrics plus rule-based form weighting.
//
// For every violation the exact index returns the top 2K laws by cosine
// (the candidate set). Only candidates are scored; the top K by ensemble
// score are kept, ties broken by ground truth first, then law path.
//
// Thread Safety: A Matcher is immutable after New and safe for concurrent
// use.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/lawpath/services/lawpath/index"
	"github.com/AleutianAI/lawpath/services/lawpath/lawcorpus"
	"github.com/AleutianAI/lawpath/services/lawpath/records"
)

// Default configuration values.
const (
	DefaultTopK       = 5
	DefaultJobTimeout = 30 * time.Second
)

var (
	// ErrMissingViolationEmbedding indicates a violation with no vector.
	ErrMissingViolationEmbedding = errors.New("missing violation embedding")

	// ErrJobTimeout indicates a violation's scoring job ran past its budget.
	ErrJobTimeout = errors.New("scoring job timed out")

	// ErrNoLaws indicates New was given no law with a vector.
	ErrNoLaws = errors.New("no laws with embeddings")
)

// Techniques names the scoring stages, in order, for match metadata.
var Techniques = []string{
	"exact_inner_product_search",
	"cosine_similarity",
	"euclidean_similarity",
	"manhattan_similarity",
	"dot_product",
	"jaccard_similarity",
	"pearson_correlation",
	"pairwise_tfidf_similarity",
	"form_based_weighting",
	"ground_truth_bonus",
	"ensemble_scoring",
}

// Options configures a Matcher.
type Options struct {
	// TopK is the number of matches kept per violation. Default: 5
	TopK int

	// Workers bounds concurrent scoring jobs. Default: runtime.NumCPU()
	Workers int

	// JobTimeout bounds scoring of one violation. Default: 30s
	JobTimeout time.Duration

	// Logger receives per-violation warnings. Default: slog.Default()
	Logger *slog.Logger
}

// Validate applies defaults for invalid values.
func (o *Options) Validate() {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
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
}

// Query is one violation to match.
type Query struct {
	// ID identifies the violation, e.g. "tax_forfeitures[3]".
	ID        string
	Category  records.Category
	Violation *records.Violation
	Embedding []float32
	Text      string
}

// Match is one ranked law for a violation.
type Match struct {
	LawID         string         `json:"law_id"`
	LawName       string         `json:"law_name"`
	EnsembleScore float64        `json:"ensemble_score"`
	Similarities  Similarities   `json:"similarities"`
	FormWeight    float64        `json:"form_weight"`
	IsGroundTruth bool           `json:"is_ground_truth"`
	LawData       map[string]any `json:"law_data"`
}

// Result is the ranked match list for one violation.
type Result struct {
	ViolationID string             `json:"violation_id"`
	Violation   *records.Violation `json:"violation"`
	Category    records.Category   `json:"category"`
	Matches     []Match            `json:"matches"`

	// Error is set when the violation could not be scored.
	Error string `json:"error,omitempty"`

	err error
}

// Err returns the scoring error, if any.
func (r Result) Err() error { return r.err }

// Stats summarises a matching run.
type Stats struct {
	TotalEvidence        int     `json:"total_evidence"`
	TotalLaws            int     `json:"total_laws"`
	TotalMatches         int     `json:"total_matches"`
	AverageEnsembleScore float64 `json:"average_ensemble_score"`
	FormWeightedMatches  int     `json:"form_weighted_matches"`
	GroundTruthMatches   int     `json:"ground_truth_matches"`

	MissingViolationEmbeddings int `json:"missing_violation_embeddings"`
	ViolationErrors            int `json:"violation_errors"`
	ScoringErrors              int `json:"scoring_errors"`
	TFIDFFailures              int `json:"tfidf_failures"`
	Timeouts                   int `json:"timeouts"`
}

// formWeightedThreshold is the form weight above which a match counts as
// form-weighted in Stats.
const formWeightedThreshold = 0.6

// Matcher scores violations against a fixed law set.
type Matcher struct {
	laws  []lawcorpus.Entry
	index index.Index
	opts  Options
}

// New builds the index over every entry with a vector.
//
// Entries without a vector are dropped silently; they can never be
// candidates.
func New(entries []lawcorpus.Entry, opts *Options) (*Matcher, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.Validate()

	laws := make([]lawcorpus.Entry, 0, len(entries))
	vecs := make([][]float32, 0, len(entries))
	for _, e := range entries {
		if len(e.Embedding) == 0 {
			continue
		}
		laws = append(laws, e)
		vecs = append(vecs, e.Embedding)
	}
	if len(laws) == 0 {
		return nil, ErrNoLaws
	}

	idx, err := index.Build(vecs)
	if err != nil {
		return nil, fmt.Errorf("build law index: %w", err)
	}
	return &Matcher{laws: laws, index: idx, opts: o}, nil
}

// Laws returns the indexed laws in index order.
func (m *Matcher) Laws() []lawcorpus.Entry { return m.laws }

// Match ranks laws for every query.
//
// Description:
//
//	Each query is an independent job on a bounded worker pool with its own
//	JobTimeout. A query without an embedding, or whose job fails or times
//	out, yields a Result with no matches and Error set; other queries
//	proceed. Results are returned in query order.
//
// Inputs:
//
//   - ctx: Context for cancellation. Cancellation aborts the whole run.
//   - queries: Violations to match, in output order.
//
// Outputs:
//
//   - []Result: One per query.
//   - Stats: Run statistics including per-stage error counters.
//   - error: Only ctx errors.
func (m *Matcher) Match(ctx context.Context, queries []Query) ([]Result, Stats, error) {
	ctx, span := tracer.Start(ctx, "Matcher.Match",
		trace.WithAttributes(
			attribute.Int("matcher.queries", len(queries)),
			attribute.Int("matcher.laws", len(m.laws)),
			attribute.Int("matcher.top_k", m.opts.TopK),
		),
	)
	defer span.End()

	start := time.Now()
	results := make([]Result, len(queries))
	pairStats := make([]pairCounters, len(queries))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)
	for i := range queries {
		i := i
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			results[i], pairStats[i] = m.runJob(gCtx, queries[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "match cancelled")
		return nil, Stats{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Stats{}, err
	}

	stats := m.summarise(results, pairStats)
	recordRun(ctx, time.Since(start), stats)

	span.SetAttributes(
		attribute.Int("matcher.total_matches", stats.TotalMatches),
		attribute.Int("matcher.timeouts", stats.Timeouts),
	)
	slog.Debug("matching complete",
		slog.Int("violations", len(queries)),
		slog.Int("matches", stats.TotalMatches),
		slog.Duration("duration", time.Since(start)),
	)
	return results, stats, nil
}

// MatchOne ranks laws for a single query without a job timeout.
func (m *Matcher) MatchOne(ctx context.Context, q Query) (Result, error) {
	matches, _, err := m.score(ctx, q)
	res := Result{ViolationID: q.ID, Violation: q.Violation, Category: q.Category, Matches: matches}
	if err != nil {
		res.Matches = []Match{}
		res.Error = err.Error()
		res.err = err
		return res, err
	}
	return res, nil
}

// pairCounters counts per-pair outcomes within one job.
type pairCounters struct {
	scoringErrors int
	tfidfFailures int
}

// runJob scores one query under its own timeout.
func (m *Matcher) runJob(ctx context.Context, q Query) (Result, pairCounters) {
	jobCtx, cancel := context.WithTimeout(ctx, m.opts.JobTimeout)
	defer cancel()

	res := Result{ViolationID: q.ID, Violation: q.Violation, Category: q.Category, Matches: []Match{}}

	matches, counters, err := m.score(jobCtx, q)
	if err != nil {
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s", ErrJobTimeout, m.opts.JobTimeout)
		}
		res.Error = err.Error()
		res.err = err
		m.opts.Logger.Warn("violation not matched",
			slog.String("violation_id", q.ID),
			slog.String("error", err.Error()),
		)
		return res, counters
	}
	res.Matches = matches
	recordScores(ctx, matches)
	return res, counters
}

// score ranks the candidate set for one query.
func (m *Matcher) score(ctx context.Context, q Query) ([]Match, pairCounters, error) {
	var counters pairCounters
	if len(q.Embedding) == 0 {
		return nil, counters, fmt.Errorf("%w: %s", ErrMissingViolationEmbedding, q.ID)
	}
	v := q.Violation
	if v == nil {
		v = &records.Violation{}
	}

	_, cand, err := m.index.Search(ctx, [][]float32{q.Embedding}, 2*m.opts.TopK)
	if err != nil {
		return nil, counters, fmt.Errorf("candidate search: %w", err)
	}

	matches := make([]Match, 0, len(cand[0]))
	for _, li := range cand[0] {
		if err := ctx.Err(); err != nil {
			return nil, counters, err
		}
		law := m.laws[li]

		sims := VectorSimilarities(q.Embedding, law.Embedding)
		tfidf, err := TFIDFSimilarity(q.Text, law.Text)
		if err != nil {
			counters.tfidfFailures++
			tfidf = 0
		}
		sims.TFIDF = tfidf

		fw := FormWeight(v, law.Law.Forms)
		score := EnsembleScore(sims, fw, law.IsGroundTruth)
		if math.IsNaN(score) || math.IsInf(score, 0) {
			counters.scoringErrors++
			m.opts.Logger.Warn("pair skipped: non-finite score",
				slog.String("violation_id", q.ID),
				slog.String("law_id", law.LawID),
			)
			continue
		}

		matches = append(matches, Match{
			LawID:         law.LawID,
			LawName:       law.Law.Name,
			EnsembleScore: score,
			Similarities:  sims,
			FormWeight:    fw,
			IsGroundTruth: law.IsGroundTruth,
			LawData:       law.Law.Snapshot(),
		})
	}

	SortMatches(matches)
	if len(matches) > m.opts.TopK {
		matches = matches[:m.opts.TopK]
	}
	return matches, counters, nil
}

// SortMatches orders by ensemble score descending, then ground truth first,
// then law path ascending.
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.EnsembleScore != b.EnsembleScore {
			return a.EnsembleScore > b.EnsembleScore
		}
		if a.IsGroundTruth != b.IsGroundTruth {
			return a.IsGroundTruth
		}
		return a.LawID < b.LawID
	})
}

func (m *Matcher) summarise(results []Result, pairs []pairCounters) Stats {
	stats := Stats{
		TotalEvidence: len(results),
		TotalLaws:     len(m.laws),
	}
	var sum float64
	for i, r := range results {
		stats.ScoringErrors += pairs[i].scoringErrors
		stats.TFIDFFailures += pairs[i].tfidfFailures
		switch {
		case r.err == nil:
		case errors.Is(r.err, ErrMissingViolationEmbedding):
			stats.MissingViolationEmbeddings++
		case errors.Is(r.err, ErrJobTimeout):
			stats.Timeouts++
		default:
			stats.ViolationErrors++
		}
		for _, mt := range r.Matches {
			stats.TotalMatches++
			sum += mt.EnsembleScore
			if mt.FormWeight > formWeightedThreshold {
				stats.FormWeightedMatches++
			}
			if mt.IsGroundTruth {
				stats.GroundTruthMatches++
			}
		}
	}
	if stats.TotalMatches > 0 {
		stats.AverageEnsembleScore = sum / float64(stats.TotalMatches)
	}
	return stats
}
