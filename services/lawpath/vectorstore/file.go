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
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// fileDocument is the on-disk layout of a FileStore.
type fileDocument struct {
	Vectors []Vector `json:"vectors"`
}

// FileStore keeps vectors in a single JSON file.
//
// Thread Safety: Safe for concurrent use within one process.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file need not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Vectors reads the file. A missing file yields no vectors.
func (s *FileStore) Vectors(ctx context.Context) ([]Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *FileStore) readLocked() ([]Vector, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnreadable, s.path, err)
	}
	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnreadable, s.path, err)
	}
	return doc.Vectors, nil
}

// Put merges vectors into the file by ID and rewrites it sorted by ID.
func (s *FileStore) Put(ctx context.Context, vectors []Vector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, v := range vectors {
		if v.ID == "" {
			return ErrInvalidVector
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readLocked()
	if err != nil {
		return err
	}
	byID := make(map[string]Vector, len(existing)+len(vectors))
	for _, v := range existing {
		byID[v.ID] = v
	}
	for _, v := range vectors {
		byID[v.ID] = v
	}
	doc := fileDocument{Vectors: make([]Vector, 0, len(byID))}
	for _, v := range byID {
		doc.Vectors = append(doc.Vectors, v)
	}
	sort.Slice(doc.Vectors, func(i, j int) bool { return doc.Vectors[i].ID < doc.Vectors[j].ID })

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding vectors: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	return os.Rename(tmp, s.path)
}
