// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type gcsClient struct {
	client *storage.Client
}

func newGCSClient(ctx context.Context, config Config) (*gcsClient, error) {
	var opts []option.ClientOption
	if config.GCSCredentialsFile != "" {
		if _, err := os.Stat(config.GCSCredentialsFile); err != nil {
			return nil, fmt.Errorf("service account key not found at path: %s: %w", config.GCSCredentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(config.GCSCredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &gcsClient{client: client}, nil
}

func (c *gcsClient) bucket(name string) *GCSStore {
	return &GCSStore{bucket: c.client.Bucket(name), name: name}
}

// GCSStore keeps documents in one Google Cloud Storage bucket.
type GCSStore struct {
	bucket *storage.BucketHandle
	name   string
}

// Read downloads the object at key.
func (s *GCSStore) Read(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: gs://%s/%s", ErrNotFound, s.name, key)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs get failed for gs://%s/%s: %w", s.name, key, err)
	}
	defer func() { _ = reader.Close() }()
	return io.ReadAll(reader)
}

// Write uploads data to key.
func (s *GCSStore) Write(ctx context.Context, key string, data []byte) error {
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write failed for gs://%s/%s: %w", s.name, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for gs://%s/%s: %w", s.name, key, err)
	}
	return nil
}
