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
	"fmt"
	"log/slog"

	"github.com/AleutianAI/lawpath/services/lawpath/config"
	"github.com/AleutianAI/lawpath/services/lawpath/embed"
	badgerstore "github.com/AleutianAI/lawpath/services/lawpath/storage/badger"
	"github.com/AleutianAI/lawpath/services/lawpath/vectorstore"
)

// NewEmbedder builds the configured embedder.
//
// Description:
//
//	Wraps the selected backend in a BatchEmbedder and, when the cache is
//	enabled, a badger-backed CachedEmbedder whose value-log GC runs until
//	ctx is done. The returned close function releases the cache and is
//	never nil.
//
// Inputs:
//
//	ctx - Lifetime of the cache GC loop.
//	cfg - Run configuration. Embedder.APIKey must already be resolved.
//	logger - Receives backend and cache events.
//
// Outputs:
//
//	embed.Embedder - Ready to use.
//	func() error - Releases resources.
//	error - Backend or cache construction failure.
func NewEmbedder(ctx context.Context, cfg config.Config, logger *slog.Logger) (embed.Embedder, func() error, error) {
	noop := func() error { return nil }

	var backend embed.Backend
	switch cfg.Embedder.Backend {
	case config.BackendOpenAI:
		oc := embed.OpenAIConfig{
			BaseURL:           cfg.Embedder.BaseURL,
			APIKey:            cfg.Embedder.APIKey,
			Model:             cfg.ModelName,
			RequestsPerSecond: cfg.Embedder.RequestsPerSecond,
			Burst:             cfg.Embedder.Burst,
		}
		if cfg.Embedder.RequestDimensions {
			oc.Dimensions = cfg.Dimension
		}
		b, err := embed.NewOpenAIBackend(oc)
		if err != nil {
			return nil, noop, err
		}
		backend = b
	default:
		backend = embed.NewHashingBackend(cfg.Dimension)
	}

	var e embed.Embedder = embed.NewBatchEmbedder(backend, &embed.Options{
		Dimension:    cfg.Dimension,
		BatchSize:    cfg.BatchSize,
		Workers:      cfg.Workers,
		BatchTimeout: cfg.Embedder.BatchTimeout,
		Logger:       logger,
	})

	if !cfg.Cache.Enabled {
		return e, noop, nil
	}

	bc := badgerstore.DefaultConfig(cfg.Cache.Path)
	bc.InMemory = cfg.Cache.InMemory
	bc.GCInterval = cfg.Cache.GCEvery
	bc.Logger = logger
	db, err := badgerstore.Open(bc)
	if err != nil {
		return nil, noop, err
	}
	gcCtx, cancel := context.WithCancel(ctx)
	go badgerstore.RunGC(gcCtx, db, bc)

	logger.Info("Embedding cache enabled",
		slog.String("path", cfg.Cache.Path),
		slog.Bool("in_memory", cfg.Cache.InMemory),
	)
	return embed.NewCachedEmbedder(e, db), func() error {
		cancel()
		return db.Close()
	}, nil
}

// NewVectorStore builds the configured prior-embedding store, or nil when
// ML discovery is disabled.
func NewVectorStore(cfg config.Config, logger *slog.Logger) (vectorstore.Store, error) {
	switch cfg.VectorStore.Kind {
	case config.VectorStoreFile:
		return vectorstore.NewFileStore(cfg.VectorStore.Path), nil
	case config.VectorStoreWeaviate:
		s, err := vectorstore.NewWeaviateStore(vectorstore.WeaviateConfig{
			URL:    cfg.VectorStore.URL,
			Class:  cfg.VectorStore.Class,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("weaviate vector store: %w", err)
		}
		return s, nil
	default:
		return nil, nil
	}
}
