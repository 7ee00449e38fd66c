// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lawcorpus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/lawpath/services/lawpath/embed"
	"github.com/AleutianAI/lawpath/services/lawpath/records"
	"github.com/AleutianAI/lawpath/services/lawpath/textbuild"
)

var tracer = otel.Tracer("lawpath.lawcorpus")

// AugmentStats counts what Augment did.
type AugmentStats struct {
	Embedded            int `json:"embedded"`
	Reused              int `json:"reused"`
	GroundTruthEmbedded int `json:"ground_truth_embedded"`
	GroundTruthReused   int `json:"ground_truth_reused"`
}

// pendingVector is one vector slot awaiting the embedder.
type pendingVector struct {
	law         *records.Law
	text        string
	groundTruth bool
}

// Augment assigns base and ground-truth vectors to every law.
//
// Description:
//
//	Every law gets one base vector over textbuild.LawText. Every citable
//	law also gets a ground-truth vector over textbuild.GroundTruthText.
//	A stored vector is reused when its companion text equals the freshly
//	built text and it has the embedder's dimension and unit norm; all
//	other slots are embedded in a single call. Vectors and texts are
//	written into the document tree, so Encode emits the augmented
//	document.
//
// Inputs:
//
//   - ctx: Context for cancellation.
//   - e: Embedder. Its dimension becomes the corpus dimension.
//
// Outputs:
//
//   - AugmentStats: Counts of embedded and reused vectors.
//   - error: ErrDimensionMismatch when the embedder dimension differs from
//     the configured one; any embedder error (fatal to the call).
func (c *Corpus) Augment(ctx context.Context, e embed.Embedder) (AugmentStats, error) {
	ctx, span := tracer.Start(ctx, "Corpus.Augment",
		trace.WithAttributes(
			attribute.Int("lawcorpus.laws", len(c.laws)),
			attribute.String("embed.model", e.Model()),
		),
	)
	defer span.End()

	var stats AugmentStats
	dim := e.Dimension()
	if c.opts.Dimension > 0 && c.opts.Dimension != dim {
		err := fmt.Errorf("%w: embedder produces %d, corpus expects %d", ErrDimensionMismatch, dim, c.opts.Dimension)
		span.RecordError(err)
		span.SetStatus(codes.Error, "dimension mismatch")
		return stats, err
	}

	reusable := func(vec []float32, stored, built string) bool {
		return stored == built && len(vec) == dim && embed.IsNormalized(vec)
	}

	var pending []pendingVector
	for _, law := range c.laws {
		base := textbuild.LawText(law)
		if reusable(law.Embedding, law.EmbeddingText, base) {
			stats.Reused++
		} else {
			pending = append(pending, pendingVector{law: law, text: base})
		}

		if !law.Citable() {
			continue
		}
		gt := textbuild.GroundTruthText(law)
		if reusable(law.GroundTruthEmbedding, law.GroundTruthText, gt) {
			stats.GroundTruthReused++
		} else {
			pending = append(pending, pendingVector{law: law, text: gt, groundTruth: true})
		}
	}

	if len(pending) > 0 {
		texts := make([]string, len(pending))
		for i, p := range pending {
			texts[i] = p.text
		}

		start := time.Now()
		vecs, err := e.Embed(ctx, texts)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "embed failed")
			return stats, fmt.Errorf("embed %d law texts: %w", len(texts), err)
		}
		if len(vecs) != len(pending) {
			return stats, fmt.Errorf("%w: embedder returned %d vectors for %d texts", embed.ErrEmbeddingFailed, len(vecs), len(pending))
		}

		for i, p := range pending {
			c.setVector(p, vecs[i])
			if p.groundTruth {
				stats.GroundTruthEmbedded++
			} else {
				stats.Embedded++
			}
		}
		c.opts.Logger.Info("law corpus augmented",
			slog.Int("embedded", stats.Embedded),
			slog.Int("ground_truth_embedded", stats.GroundTruthEmbedded),
			slog.Int("reused", stats.Reused+stats.GroundTruthReused),
			slog.Duration("duration", time.Since(start)),
		)
	}

	c.dim = dim
	c.recount()

	span.SetAttributes(
		attribute.Int("lawcorpus.embedded", stats.Embedded+stats.GroundTruthEmbedded),
		attribute.Int("lawcorpus.reused", stats.Reused+stats.GroundTruthReused),
	)
	return stats, nil
}

// setVector writes a vector into both the record and the document node.
func (c *Corpus) setVector(p pendingVector, vec []float32) {
	obj := c.objects[p.law.ID]
	if p.groundTruth {
		p.law.GroundTruthEmbedding = vec
		p.law.GroundTruthText = p.text
		p.law.IsGroundTruth = true
		obj["ground_truth_embedding"] = vec
		obj["ground_truth_text"] = p.text
		obj["is_ground_truth"] = true
		return
	}
	p.law.Embedding = vec
	p.law.EmbeddingText = p.text
	obj["embedding"] = vec
	obj["embedding_text"] = p.text
}

func (c *Corpus) recount() {
	c.stats.WithEmbedding, c.stats.WithGroundTruth = 0, 0
	for _, law := range c.laws {
		if len(law.Embedding) > 0 {
			c.stats.WithEmbedding++
		}
		if law.IsGroundTruth {
			c.stats.WithGroundTruth++
		}
	}
}

// EmbedForms embeds every form in the table over textbuild.FormText.
//
// Forms are not persisted in the document; the vectors live on FormEntry
// for the connection graph.
func (c *Corpus) EmbedForms(ctx context.Context, e embed.Embedder) error {
	ctx, span := tracer.Start(ctx, "Corpus.EmbedForms",
		trace.WithAttributes(attribute.Int("lawcorpus.forms", len(c.forms))),
	)
	defer span.End()

	if len(c.forms) == 0 {
		span.AddEvent("no_forms")
		return nil
	}

	texts := make([]string, len(c.forms))
	for i, f := range c.forms {
		texts[i] = textbuild.FormText(f.Form)
	}
	vecs, err := e.Embed(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed failed")
		return fmt.Errorf("embed %d forms: %w", len(texts), err)
	}
	if len(vecs) != len(c.forms) {
		return fmt.Errorf("%w: embedder returned %d vectors for %d forms", embed.ErrEmbeddingFailed, len(vecs), len(c.forms))
	}
	for i, f := range c.forms {
		f.Embedding = vecs[i]
	}
	return nil
}
