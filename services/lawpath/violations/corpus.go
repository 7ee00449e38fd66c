// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package violations stores categorised violation records with identity-key
// de-duplication.
//
// The corpus is append-only: records can be added but never removed or
// re-keyed. Enumeration order is category ascending, then insertion order,
// and is stable for a fixed sequence of additions.
//
// Thread Safety: All methods are safe for concurrent use. Writers are
// expected to be a single coordinator; readers may be many.
package violations

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/lawpath/services/lawpath/records"
)

// DocumentVersion is written to new violation documents.
const DocumentVersion = "1.0.0"

// Options configures a Corpus.
type Options struct {
	// Logger receives duplicate and malformed-record events.
	// Default: slog.Default()
	Logger *slog.Logger

	// Now stamps metadata.created on new corpora. Default: time.Now
	Now func() time.Time
}

// Validate applies defaults.
func (o *Options) Validate() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Entry is one record with its position in the corpus.
type Entry struct {
	// ID is "{category}[{index}]", unique within the corpus.
	ID        string
	Category  records.Category
	Index     int
	Violation *records.Violation
}

// MergeStats counts the outcome of Merge.
type MergeStats struct {
	Added      int `json:"added"`
	Duplicates int `json:"duplicates"`
}

// Corpus is the categorised violation set.
type Corpus struct {
	mu      sync.RWMutex
	opts    Options
	created string
	version string
	byCat   map[records.Category][]*records.Violation
	keys    map[records.IdentityKey]struct{}
}

// New returns an empty corpus.
func New(opts *Options) *Corpus {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.Validate()
	return &Corpus{
		opts:    o,
		created: o.Now().UTC().Format(time.RFC3339),
		version: DocumentVersion,
		byCat:   make(map[records.Category][]*records.Violation),
		keys:    make(map[records.IdentityKey]struct{}),
	}
}

// AddIfNew appends v under category unless its identity key is already
// present.
//
// The category is normalised with records.RouteCategory, so callers may pass
// upstream category names. Returns true when the record was added.
func (c *Corpus) AddIfNew(category records.Category, v *records.Violation) bool {
	if v == nil {
		return false
	}
	cat := records.RouteCategory(string(category))
	key := v.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.keys[key]; dup {
		return false
	}
	c.keys[key] = struct{}{}
	c.byCat[cat] = append(c.byCat[cat], v)
	return true
}

// Add routes v by its category hint (pattern group, else violation type)
// and calls AddIfNew.
func (c *Corpus) Add(v *records.Violation) bool {
	if v == nil {
		return false
	}
	return c.AddIfNew(records.RouteCategory(v.CategoryHint()), v)
}

// Contains reports whether a record with key exists.
func (c *Corpus) Contains(key records.IdentityKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.keys[key]
	return ok
}

// KeySet returns a copy of the identity keys for read-only use by workers.
func (c *Corpus) KeySet() map[records.IdentityKey]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[records.IdentityKey]struct{}, len(c.keys))
	for k := range c.keys {
		out[k] = struct{}{}
	}
	return out
}

// Len returns the number of records.
func (c *Corpus) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

// Counts returns the number of records per non-empty category.
func (c *Corpus) Counts() map[records.Category]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[records.Category]int, len(c.byCat))
	for cat, vs := range c.byCat {
		if len(vs) > 0 {
			out[cat] = len(vs)
		}
	}
	return out
}

// IterAll returns every record, category ascending then insertion order.
func (c *Corpus) IterAll() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cats := c.sortedCategoriesLocked()
	out := make([]Entry, 0, len(c.keys))
	for _, cat := range cats {
		for i, v := range c.byCat[cat] {
			out = append(out, Entry{
				ID:        fmt.Sprintf("%s[%d]", cat, i),
				Category:  cat,
				Index:     i,
				Violation: v,
			})
		}
	}
	return out
}

// Merge adds every record of other that is new to c.
//
// Records are visited in other's IterAll order. Duplicates are logged and
// counted, never raised.
func (c *Corpus) Merge(other *Corpus) MergeStats {
	var stats MergeStats
	if other == nil {
		return stats
	}
	for _, e := range other.IterAll() {
		if c.AddIfNew(e.Category, e.Violation) {
			stats.Added++
			continue
		}
		stats.Duplicates++
		c.opts.Logger.Debug("duplicate violation skipped",
			slog.String("category", string(e.Category)),
			slog.String("key", e.Violation.Key().String()),
		)
	}
	if stats.Duplicates > 0 {
		c.opts.Logger.Info("violation merge complete",
			slog.Int("added", stats.Added),
			slog.Int("duplicates", stats.Duplicates),
		)
	}
	return stats
}

func (c *Corpus) sortedCategoriesLocked() []records.Category {
	cats := make([]records.Category, 0, len(c.byCat))
	for cat, vs := range c.byCat {
		if len(vs) > 0 {
			cats = append(cats, cat)
		}
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}
