// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/AleutianAI/lawpath/pkg/extensions"
	"github.com/AleutianAI/lawpath/pkg/ux"
	"github.com/AleutianAI/lawpath/services/lawpath/api"
	"github.com/AleutianAI/lawpath/services/lawpath/config"
	"github.com/AleutianAI/lawpath/services/lawpath/discovery"
	"github.com/AleutianAI/lawpath/services/lawpath/documents"
	"github.com/AleutianAI/lawpath/services/lawpath/pipeline"
	"github.com/AleutianAI/lawpath/services/lawpath/vectorstore"
)

// Output file names under `run --out-dir`.
const (
	augmentedLawsFile = "laws.augmented.json"
	violationsFile    = "violations.json"
	matchesFile       = "matches.json"
	pathwaysFile      = "pathways.json"
)

// =============================================================================
// embed / match / graph
// =============================================================================

func (a *app) runEmbed(ctx context.Context, lawsLoc, out string) error {
	p, closeEmb, err := a.newPipeline(ctx)
	if err != nil {
		return err
	}
	defer closeEmb()

	laws, stats, err := a.readLaws(ctx, p, lawsLoc)
	if err != nil {
		return err
	}
	if err := a.writeEncoded(ctx, out, laws.Encode); err != nil {
		return err
	}
	a.logger.Info("Law corpus augmented",
		"embedded", stats.Embedded,
		"reused", stats.Reused,
		"laws", laws.Stats().Laws,
		"forms", laws.Stats().Forms,
	)
	return nil
}

func (a *app) runMatch(ctx context.Context, lawsLoc, violLoc, out string) error {
	p, closeEmb, err := a.newPipeline(ctx)
	if err != nil {
		return err
	}
	defer closeEmb()

	laws, _, err := a.readLaws(ctx, p, lawsLoc)
	if err != nil {
		return err
	}
	corpus, err := a.readViolations(ctx, p, violLoc, false)
	if err != nil {
		return err
	}
	match, err := p.Match(ctx, laws, corpus)
	if err != nil {
		return err
	}
	return a.writeDocument(ctx, out, p.MatchDocument(p.NewRun(), match))
}

func (a *app) runGraph(ctx context.Context, lawsLoc, violLoc, matchesOut, out string, maxLen int) error {
	if maxLen > 0 {
		a.cfg.MaxPathLength = maxLen
	}
	p, closeEmb, err := a.newPipeline(ctx)
	if err != nil {
		return err
	}
	defer closeEmb()

	laws, _, err := a.readLaws(ctx, p, lawsLoc)
	if err != nil {
		return err
	}
	corpus, err := a.readViolations(ctx, p, violLoc, false)
	if err != nil {
		return err
	}

	run := p.NewRun()
	match, err := p.Match(ctx, laws, corpus)
	if err != nil {
		return err
	}
	if matchesOut != "" {
		if err := a.writeDocument(ctx, matchesOut, p.MatchDocument(run, match)); err != nil {
			return err
		}
	}

	pw, err := p.Pathways(ctx, laws, match)
	if err != nil {
		return err
	}
	return a.writeDocument(ctx, out, p.PathwayDocument(run, pw))
}

// =============================================================================
// discover
// =============================================================================

func (a *app) runDiscover(ctx context.Context, violLoc, root, out string, watch bool) error {
	if root == "" {
		root = a.cfg.Discovery.Root
	}
	if root == "" && a.cfg.VectorStore.Kind == config.VectorStoreNone {
		return errors.New("discover: no source root and no vector store configured")
	}
	if watch && root == "" {
		return errors.New("discover: --watch needs a source root")
	}
	if out == "" {
		out = violLoc
	}

	p, closeEmb, err := a.newPipeline(ctx)
	if err != nil {
		return err
	}
	defer closeEmb()

	src := violLoc
	once := func(ctx context.Context) error {
		corpus, err := a.readViolations(ctx, p, src, true)
		if err != nil {
			return err
		}
		res, err := p.Discover(ctx, root, corpus)
		if err != nil {
			return err
		}
		if err := a.writeEncoded(ctx, out, corpus.Encode); err != nil {
			return err
		}
		if out != stdio {
			src = out
		}
		a.ui.Counts("Discovery",
			ux.Count{Label: "sources", Value: res.Report.SourcesScanned},
			ux.Count{Label: "candidates", Value: res.Report.CandidatesFound},
			ux.Count{Label: "added", Value: res.Merge.Added},
			ux.Count{Label: "duplicates", Value: res.Merge.Duplicates},
			ux.Count{Label: "total", Value: corpus.Len()},
		)
		return nil
	}

	if err := once(ctx); err != nil {
		return err
	}
	if !watch {
		return nil
	}
	return discovery.Watch(ctx, root, &discovery.WatchOptions{
		Debounce: a.cfg.Discovery.Debounce,
		Logger:   a.logger.Slog(),
	}, once)
}

// =============================================================================
// run / serve
// =============================================================================

func (a *app) runAll(ctx context.Context, lawsLoc, violLoc, root, outDir string) error {
	p, closeEmb, err := a.newPipeline(ctx)
	if err != nil {
		return err
	}
	defer closeEmb()

	summary, err := p.Run(ctx, a.store, pipeline.Paths{
		Laws:          lawsLoc,
		Violations:    violLoc,
		SourceRoot:    root,
		AugmentedLaws: joinLocation(outDir, augmentedLawsFile),
		ViolationsOut: joinLocation(outDir, violationsFile),
		Matches:       joinLocation(outDir, matchesFile),
		Pathways:      joinLocation(outDir, pathwaysFile),
		Canonical:     a.canonical,
	})
	if err != nil {
		return err
	}
	return a.printJSON(summary)
}

func (a *app) runServe(ctx context.Context, lawsLoc, addr string) error {
	if addr != "" {
		a.cfg.Server.Addr = addr
	}
	p, closeEmb, err := a.newPipeline(ctx)
	if err != nil {
		return err
	}
	defer closeEmb()

	laws, _, err := a.readLaws(ctx, p, lawsLoc)
	if err != nil {
		return err
	}
	srv, err := api.NewServer(p, laws, a.logger.Slog(), a.serviceOptions())
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// serviceOptions enables bearer-token auth when LAWPATH_API_TOKENS is set.
// Requests are always audited to the log.
func (a *app) serviceOptions() extensions.ServiceOptions {
	opts := extensions.DefaultOptions().WithAudit(extensions.NewSlogAuditLogger(a.logger.Slog()))
	tokens := extensions.ParseTokenList(os.Getenv(apiTokensEnv))
	if len(tokens) == 0 {
		return opts
	}
	a.logger.Info("API token auth enabled", "tokens", len(tokens))
	return opts.WithAuth(extensions.NewTokenAuthProvider(tokens))
}

// =============================================================================
// vectors / validate
// =============================================================================

func (a *app) runVectorsImport(ctx context.Context, in string) error {
	if a.cfg.VectorStore.Kind == config.VectorStoreNone {
		return errors.New("vectors import: vector_store.kind is none")
	}
	data, err := a.store.Read(ctx, in)
	if err != nil {
		return fmt.Errorf("read %s: %w", in, err)
	}
	vectors, err := decodeVectors(data)
	if err != nil {
		return fmt.Errorf("decode %s: %w", in, err)
	}

	p, closeEmb, err := a.newPipeline(ctx)
	if err != nil {
		return err
	}
	defer closeEmb()

	embedded, err := p.IndexVectors(ctx, vectors)
	if err != nil {
		return err
	}
	return a.printJSON(map[string]int{"stored": len(vectors), "embedded": embedded})
}

// decodeVectors accepts {"vectors": [...]} or a bare array.
func decodeVectors(data []byte) ([]vectorstore.Vector, error) {
	var vectors []vectorstore.Vector
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		err := json.Unmarshal(trimmed, &vectors)
		return vectors, err
	}
	var doc struct {
		Vectors []vectorstore.Vector `json:"vectors"`
	}
	err := json.Unmarshal(data, &doc)
	return doc.Vectors, err
}

func (a *app) runValidate(ctx context.Context, kindName string, locations []string) error {
	kind, err := documents.ParseKind(kindName)
	if err != nil {
		return err
	}

	var failed int
	for _, loc := range locations {
		data, err := a.store.Read(ctx, loc)
		if err == nil {
			err = documents.Validate(kind, data)
		}
		if err != nil {
			failed++
			a.report.Status(ux.IconError, loc, err.Error())
			continue
		}
		a.report.Status(ux.IconSuccess, loc, "")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed validation", failed, len(locations))
	}
	return nil
}
