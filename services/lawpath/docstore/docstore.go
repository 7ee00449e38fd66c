// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package docstore reads and writes pipeline documents by location.
//
// A location is a local path, a gs://bucket/key URI or an s3://bucket/key
// URI. Router picks the backend from the scheme and keeps one client per
// cloud provider for the life of the process.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/AleutianAI/lawpath/pkg/validation"
)

// ErrNotFound is returned when a document does not exist at a location.
var ErrNotFound = errors.New("document not found")

// Scheme names a storage backend.
type Scheme string

const (
	SchemeFile Scheme = "file"
	SchemeGCS  Scheme = "gs"
	SchemeS3   Scheme = "s3"
)

// Location is a parsed document address.
type Location struct {
	Scheme Scheme
	Bucket string
	Key    string
}

// String renders the location in the form ParseLocation accepts.
func (l Location) String() string {
	if l.Scheme == SchemeFile {
		return l.Key
	}
	return string(l.Scheme) + "://" + l.Bucket + "/" + l.Key
}

// ParseLocation splits a path or URI into its backend, bucket and key.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, errors.New("empty document location")
	}
	for _, s := range []Scheme{SchemeGCS, SchemeS3} {
		rest, ok := strings.CutPrefix(raw, string(s)+"://")
		if !ok {
			continue
		}
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" || key == "" {
			return Location{}, fmt.Errorf("location %q needs a bucket and key", raw)
		}
		if err := validation.ValidateBucket(bucket); err != nil {
			return Location{}, fmt.Errorf("location %q: %w", raw, err)
		}
		if err := validation.ValidateObjectKey(key); err != nil {
			return Location{}, fmt.Errorf("location %q: %w", raw, err)
		}
		return Location{Scheme: s, Bucket: bucket, Key: key}, nil
	}
	if rest, ok := strings.CutPrefix(raw, "file://"); ok {
		raw = rest
	}
	if strings.Contains(raw, "://") {
		return Location{}, fmt.Errorf("unsupported document location %q", raw)
	}
	return Location{Scheme: SchemeFile, Key: raw}, nil
}

// Store reads and writes whole documents within one bucket or directory.
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
}

// Config holds cloud credentials. Empty fields fall back to each SDK's
// default credential chain.
type Config struct {
	// GCSCredentialsFile is a service account key file.
	GCSCredentialsFile string `yaml:"gcs_credentials_file"`

	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"`

	// Static S3 credentials. Never read from or written to YAML; the CLI
	// fills them from the environment.
	S3AccessKey string `yaml:"-"`
	S3SecretKey string `yaml:"-"`
}

// Router dispatches document reads and writes by location.
//
// Thread Safety: Safe for concurrent use.
type Router struct {
	config Config
	local  *LocalStore

	mu  sync.Mutex
	gcs *gcsClient
	s3  *s3Client
}

// NewRouter creates a router. Cloud clients are created on first use.
func NewRouter(config Config) *Router {
	return &Router{config: config, local: NewLocalStore("")}
}

// Read fetches the document at raw.
func (r *Router) Read(ctx context.Context, raw string) ([]byte, error) {
	store, key, err := r.resolve(ctx, raw)
	if err != nil {
		return nil, err
	}
	return store.Read(ctx, key)
}

// Write stores data at raw, replacing any existing document.
func (r *Router) Write(ctx context.Context, raw string, data []byte) error {
	store, key, err := r.resolve(ctx, raw)
	if err != nil {
		return err
	}
	return store.Write(ctx, key, data)
}

func (r *Router) resolve(ctx context.Context, raw string) (Store, string, error) {
	loc, err := ParseLocation(raw)
	if err != nil {
		return nil, "", err
	}
	switch loc.Scheme {
	case SchemeGCS:
		c, err := r.gcsClient(ctx)
		if err != nil {
			return nil, "", err
		}
		return c.bucket(loc.Bucket), loc.Key, nil
	case SchemeS3:
		c, err := r.s3Client(ctx)
		if err != nil {
			return nil, "", err
		}
		return c.bucket(loc.Bucket), loc.Key, nil
	default:
		return r.local, loc.Key, nil
	}
}

func (r *Router) gcsClient(ctx context.Context) (*gcsClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gcs == nil {
		c, err := newGCSClient(ctx, r.config)
		if err != nil {
			return nil, err
		}
		r.gcs = c
	}
	return r.gcs, nil
}

func (r *Router) s3Client(ctx context.Context) (*s3Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.s3 == nil {
		c, err := newS3Client(ctx, r.config)
		if err != nil {
			return nil, err
		}
		r.s3 = c
	}
	return r.s3, nil
}

// Close releases cloud clients.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gcs != nil {
		err := r.gcs.client.Close()
		r.gcs = nil
		return err
	}
	return nil
}
