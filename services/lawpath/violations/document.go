// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package violations

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/AleutianAI/lawpath/services/lawpath/records"
)

// ErrInvalidDocument indicates a violation document that cannot be decoded.
var ErrInvalidDocument = errors.New("invalid violation document")

// Metadata is the violation document header.
type Metadata struct {
	Created         string             `json:"created"`
	Version         string             `json:"version"`
	TotalViolations int                `json:"total_violations"`
	Categories      []records.Category `json:"categories"`
}

// Document is the persisted form of a Corpus.
type Document struct {
	Metadata   Metadata                                   `json:"metadata"`
	Violations map[records.Category][]*records.Violation `json:"violations"`
}

// rawDocument defers per-record decoding so one bad record does not sink
// the document.
type rawDocument struct {
	Metadata struct {
		Created string `json:"created"`
		Version string `json:"version"`
	} `json:"metadata"`
	Violations map[string][]json.RawMessage `json:"violations"`
}

// LoadStats counts the outcome of Load.
type LoadStats struct {
	Loaded     int `json:"loaded"`
	Duplicates int `json:"duplicates"`
	Malformed  int `json:"malformed"`
}

// Load decodes a violation document.
//
// Description:
//
//	Category names are normalised with records.RouteCategory. Categories
//	are read in ascending name order and records in document order, so
//	the resulting corpus order is stable. Malformed records and identity
//	duplicates are logged, counted and skipped. metadata.created and
//	metadata.version are preserved so an unchanged corpus re-encodes to
//	the same document.
//
// Outputs:
//
//   - *Corpus: The loaded corpus.
//   - LoadStats: Loaded, duplicate and malformed counts.
//   - error: ErrInvalidDocument when the envelope cannot be decoded.
func Load(r io.Reader, opts *Options) (*Corpus, LoadStats, error) {
	var stats LoadStats
	var raw rawDocument
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, stats, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	c := New(opts)
	if raw.Metadata.Created != "" {
		c.created = raw.Metadata.Created
	}
	if raw.Metadata.Version != "" {
		c.version = raw.Metadata.Version
	}

	names := make([]string, 0, len(raw.Violations))
	for name := range raw.Violations {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cat := records.RouteCategory(name)
		for i, msg := range raw.Violations[name] {
			var v records.Violation
			if err := json.Unmarshal(msg, &v); err != nil {
				stats.Malformed++
				c.opts.Logger.Warn("malformed violation skipped",
					slog.String("category", name),
					slog.Int("index", i),
					slog.String("error", err.Error()),
				)
				continue
			}
			if c.AddIfNew(cat, &v) {
				stats.Loaded++
				continue
			}
			stats.Duplicates++
			c.opts.Logger.Debug("duplicate violation skipped",
				slog.String("category", name),
				slog.String("key", v.Key().String()),
			)
		}
	}
	return c, stats, nil
}

// Parse decodes a violation document from bytes.
func Parse(data []byte, opts *Options) (*Corpus, LoadStats, error) {
	return Load(bytes.NewReader(data), opts)
}

// Document returns the persisted form of the corpus.
func (c *Corpus) Document() Document {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cats := c.sortedCategoriesLocked()
	doc := Document{
		Metadata: Metadata{
			Created:         c.created,
			Version:         c.version,
			TotalViolations: len(c.keys),
			Categories:      cats,
		},
		Violations: make(map[records.Category][]*records.Violation, len(cats)),
	}
	for _, cat := range cats {
		doc.Violations[cat] = append([]*records.Violation(nil), c.byCat[cat]...)
	}
	return doc
}

// Encode writes the corpus as an indented violation document.
func (c *Corpus) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c.Document()); err != nil {
		return fmt.Errorf("encode violation document: %w", err)
	}
	return nil
}
