// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lawpath.vectorstore")

// Defaults for WeaviateConfig.
const (
	DefaultClass        = "LawpathVector"
	DefaultTextProperty = "text"
	DefaultIDProperty   = "sourceId"
	DefaultPageSize     = 500
)

// WeaviateConfig configures a WeaviateStore.
type WeaviateConfig struct {
	// URL is the Weaviate server URL (e.g. "http://localhost:8080").
	URL string

	// Class is the Weaviate class holding the vectors. Default: LawpathVector
	Class string

	// TextProperty holds the chunk text. Default: text
	TextProperty string

	// IDProperty holds the caller-facing vector ID; Weaviate object IDs are
	// UUIDs derived from it. Default: sourceId
	IDProperty string

	// PageSize bounds each GraphQL Get. Default: 500
	PageSize int

	Logger *slog.Logger
}

// Validate applies defaults and checks required fields.
func (c *WeaviateConfig) Validate() error {
	if c.URL == "" {
		return errors.New("url must not be empty")
	}
	if c.Class == "" {
		c.Class = DefaultClass
	}
	if c.TextProperty == "" {
		c.TextProperty = DefaultTextProperty
	}
	if c.IDProperty == "" {
		c.IDProperty = DefaultIDProperty
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// WeaviateStore reads vectors from a Weaviate class.
//
// Thread Safety: Safe for concurrent use.
type WeaviateStore struct {
	client *weaviate.Client
	config WeaviateConfig
	logger *slog.Logger
}

// NewWeaviateStore creates a store for the configured class.
//
// Description:
//
//	Builds the client only; no request is made until Vectors or Put.
//
// Inputs:
//
//	config - Connection and class settings. URL is required.
//
// Outputs:
//
//	*WeaviateStore - The store.
//	error - Non-nil if the config is invalid or the client cannot be built.
func NewWeaviateStore(config WeaviateConfig) (*WeaviateStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg := weaviate.Config{Host: config.URL, Scheme: "http"}
	if host, ok := strings.CutPrefix(config.URL, "https://"); ok {
		cfg.Scheme = "https"
		cfg.Host = host
	} else if host, ok := strings.CutPrefix(config.URL, "http://"); ok {
		cfg.Host = host
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return &WeaviateStore{
		client: client,
		config: config,
		logger: config.Logger.With(slog.String("component", "vectorstore"), slog.String("class", config.Class)),
	}, nil
}

// Vectors pages through the class and returns every vector sorted by ID.
func (s *WeaviateStore) Vectors(ctx context.Context) ([]Vector, error) {
	ctx, span := tracer.Start(ctx, "vectorstore.WeaviateStore.Vectors")
	defer span.End()

	fields := []graphql.Field{
		{Name: s.config.IDProperty},
		{Name: s.config.TextProperty},
		{Name: "_additional { id vector }"},
	}

	var out []Vector
	for offset := 0; ; offset += s.config.PageSize {
		result, err := s.client.GraphQL().Get().
			WithClassName(s.config.Class).
			WithFields(fields...).
			WithLimit(s.config.PageSize).
			WithOffset(offset).
			Do(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "graphql get failed")
			return nil, fmt.Errorf("%w: listing %s: %v", ErrStoreUnreadable, s.config.Class, err)
		}
		if len(result.Errors) > 0 {
			err := fmt.Errorf("%w: query error: %s", ErrStoreUnreadable, result.Errors[0].Message)
			span.RecordError(err)
			span.SetStatus(codes.Error, "graphql error")
			return nil, err
		}

		page := parseVectors(result, s.config)
		out = append(out, page...)
		if len(page) < s.config.PageSize {
			break
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	span.SetAttributes(attribute.Int("vectors", len(out)))
	s.logger.Debug("vectors listed", slog.Int("count", len(out)))
	return out, nil
}

// parseVectors extracts vectors from one GraphQL Get response. Objects
// without a usable ID are skipped.
func parseVectors(result *models.GraphQLResponse, config WeaviateConfig) []Vector {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := data[config.Class].([]interface{})
	if !ok {
		return nil
	}

	out := make([]Vector, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		v := Vector{}
		v.ID, _ = m[config.IDProperty].(string)
		v.Text, _ = m[config.TextProperty].(string)

		if additional, ok := m["_additional"].(map[string]interface{}); ok {
			if v.ID == "" {
				v.ID, _ = additional["id"].(string)
			}
			if raw, ok := additional["vector"].([]interface{}); ok {
				v.Embedding = make([]float32, 0, len(raw))
				for _, x := range raw {
					if f, ok := x.(float64); ok {
						v.Embedding = append(v.Embedding, float32(f))
					}
				}
			}
		}
		if v.ID == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

// objectID derives a stable Weaviate UUID from a vector ID.
func objectID(class, id string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(class+"/"+id)).String())
}

// Put batch-imports vectors. Re-importing an ID overwrites the object.
func (s *WeaviateStore) Put(ctx context.Context, vectors []Vector) error {
	ctx, span := tracer.Start(ctx, "vectorstore.WeaviateStore.Put")
	defer span.End()
	span.SetAttributes(attribute.Int("vectors", len(vectors)))

	if len(vectors) == 0 {
		return nil
	}
	objects := make([]*models.Object, len(vectors))
	for i, v := range vectors {
		if v.ID == "" {
			return ErrInvalidVector
		}
		objects[i] = &models.Object{
			Class:  s.config.Class,
			ID:     objectID(s.config.Class, v.ID),
			Vector: v.Embedding,
			Properties: map[string]interface{}{
				s.config.IDProperty:   v.ID,
				s.config.TextProperty: v.Text,
			},
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch import failed")
		return fmt.Errorf("batch import to %s: %w", s.config.Class, err)
	}

	var failed int
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			failed++
			s.logger.Warn("vector import failed",
				slog.String("id", string(item.ID)),
				slog.String("error", item.Result.Errors.Error[0].Message),
			)
		}
	}
	if failed > 0 {
		err := fmt.Errorf("batch import to %s: %d of %d objects failed", s.config.Class, failed, len(objects))
		span.RecordError(err)
		span.SetStatus(codes.Error, "partial import")
		return err
	}
	return nil
}
