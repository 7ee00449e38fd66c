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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/AleutianAI/lawpath/services/lawpath/embed"
	"github.com/AleutianAI/lawpath/services/lawpath/records"
	"github.com/AleutianAI/lawpath/services/lawpath/textbuild"
)

// rootLawID names a law that sits at the document root.
const rootLawID = "root"

// Options configures loading.
type Options struct {
	// Dimension is the expected vector dimension. Zero accepts the
	// dimension of the first vector found.
	Dimension int

	// Logger receives integrity warnings. Default: slog.Default()
	Logger *slog.Logger
}

// Validate applies defaults.
func (o *Options) Validate() {
	if o.Dimension < 0 {
		o.Dimension = 0
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// FormEntry is one row of the flat form table.
type FormEntry struct {
	// ID is the form identity key, suffixed with "@{law path}" when another
	// law already claimed the same key.
	ID string

	Form records.Form

	// LawID is the path of the owning (smallest enclosing) law.
	LawID string

	// Jurisdiction is the owning law's jurisdiction level.
	Jurisdiction string

	// Embedding is set by EmbedForms.
	Embedding []float32
}

// Entry is one row of the flat law enumeration used for matching.
type Entry struct {
	LawID         string
	Law           *records.Law
	Embedding     []float32
	Text          string
	IsGroundTruth bool
}

// Stats summarises a loaded corpus.
type Stats struct {
	Laws            int `json:"laws"`
	Citable         int `json:"citable"`
	WithEmbedding   int `json:"with_embedding"`
	WithGroundTruth int `json:"with_ground_truth"`
	Forms           int `json:"forms"`
	DuplicateForms  int `json:"duplicate_forms"`
	OrphanForms     int `json:"orphan_forms"`
	IntegrityErrors int `json:"integrity_errors"`
}

// Corpus is the loaded law reference document.
type Corpus struct {
	root    map[string]any
	opts    Options
	dim     int
	laws    []*records.Law
	byID    map[string]*records.Law
	objects map[string]map[string]any
	forms   []*FormEntry
	formIDs map[string]*FormEntry
	owned   map[string][]*FormEntry
	stats   Stats
}

// Load decodes a law reference document from r.
//
// Description:
//
//	Walks the tree once, building the law table and the flat form table.
//	A law whose vector lacks its companion text (or is not numeric) loses
//	that vector; the problem is logged and counted, siblings are
//	unaffected. Dimension and normalisation are checked by Check, not
//	here, so a stale corpus can still be re-embedded.
//
// Inputs:
//
//   - r: JSON document whose root is an object.
//   - opts: Loading options. Nil uses defaults.
//
// Outputs:
//
//   - *Corpus: The loaded corpus.
//   - error: ErrInvalidDocument on malformed JSON or a non-object root.
func Load(r io.Reader, opts *Options) (*Corpus, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.Validate()

	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	root, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: root is %T, want object", ErrInvalidDocument, doc)
	}

	c := &Corpus{
		root:    root,
		opts:    o,
		dim:     o.Dimension,
		byID:    make(map[string]*records.Law),
		objects: make(map[string]map[string]any),
		formIDs: make(map[string]*FormEntry),
		owned:   make(map[string][]*FormEntry),
	}

	err := Walk(root, func(n Node) error {
		switch n.Kind {
		case KindLaw:
			c.addLaw(n)
		case KindForm:
			c.addForm(n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.Logger.Debug("law corpus loaded",
		slog.Int("laws", c.stats.Laws),
		slog.Int("forms", c.stats.Forms),
		slog.Int("with_embedding", c.stats.WithEmbedding),
		slog.Int("with_ground_truth", c.stats.WithGroundTruth),
	)
	return c, nil
}

// Parse decodes a law reference document from bytes.
func Parse(data []byte, opts *Options) (*Corpus, error) {
	return Load(bytes.NewReader(data), opts)
}

func (c *Corpus) addLaw(n Node) {
	id := n.Path
	if id == "" {
		id = rootLawID
	}
	obj := n.Object

	law := &records.Law{
		ID:           id,
		Name:         stringField(obj, "name"),
		Description:  stringField(obj, "description"),
		URL:          stringField(obj, "url"),
		KeySections:  stringList(obj["key_sections"]),
		Relevance:    stringField(obj, "relevance"),
		Forms:        formList(obj["reporting_forms"]),
		Jurisdiction: textbuild.JurisdictionFromPath(id),
	}

	law.Embedding, law.EmbeddingText = c.vectorPair(id, obj, "embedding", "embedding_text")
	law.GroundTruthEmbedding, law.GroundTruthText = c.vectorPair(id, obj, "ground_truth_embedding", "ground_truth_text")
	law.IsGroundTruth = len(law.GroundTruthEmbedding) > 0

	c.laws = append(c.laws, law)
	c.byID[id] = law
	c.objects[id] = obj

	c.stats.Laws++
	if law.Citable() {
		c.stats.Citable++
	}
	if len(law.Embedding) > 0 {
		c.stats.WithEmbedding++
	}
	if law.IsGroundTruth {
		c.stats.WithGroundTruth++
	}
}

// vectorPair reads a vector and its companion text. Either both are
// returned or neither.
func (c *Corpus) vectorPair(id string, obj map[string]any, vecKey, textKey string) ([]float32, string) {
	raw, has := obj[vecKey]
	if !has || raw == nil {
		return nil, ""
	}
	vec, ok := floatVector(raw)
	if !ok {
		c.integrityError(id, vecKey, "vector is not a numeric array")
		return nil, ""
	}
	text := stringField(obj, textKey)
	if text == "" {
		c.integrityError(id, vecKey, "missing "+textKey)
		return nil, ""
	}
	return vec, text
}

func (c *Corpus) integrityError(id, field, reason string) {
	c.stats.IntegrityErrors++
	c.opts.Logger.Warn("law vector excluded",
		slog.String("law_id", id),
		slog.String("field", field),
		slog.String("reason", reason),
	)
}

func (c *Corpus) addForm(n Node) {
	form := parseForm(n.Object)
	if n.Owner == "" {
		c.stats.OrphanForms++
		c.opts.Logger.Warn("form outside any law skipped", slog.String("path", n.Path))
		return
	}

	key := form.Key()
	if key == "" {
		key = "unknown"
	}
	id := key
	if _, taken := c.formIDs[id]; taken {
		c.stats.DuplicateForms++
		id = key + "@" + n.Owner
		for i := 2; ; i++ {
			if _, taken := c.formIDs[id]; !taken {
				break
			}
			id = fmt.Sprintf("%s@%s#%d", key, n.Owner, i)
		}
		c.opts.Logger.Debug("duplicate form id disambiguated",
			slog.String("form", key),
			slog.String("id", id),
		)
	}

	entry := &FormEntry{
		ID:           id,
		Form:         form,
		LawID:        n.Owner,
		Jurisdiction: textbuild.JurisdictionFromPath(n.Owner),
	}
	c.forms = append(c.forms, entry)
	c.formIDs[id] = entry
	c.owned[n.Owner] = append(c.owned[n.Owner], entry)
	c.stats.Forms++
}

// =============================================================================
// Integrity
// =============================================================================

// Check enforces the corpus-wide vector invariants.
//
// Description:
//
//	Every law vector must have the corpus dimension and unit norm within
//	embed.NormTolerance, and at least one law must carry a vector. Each
//	violation is fatal and names the offending law.
//
// Outputs:
//
//   - error: Wraps ErrDimensionMismatch, ErrNotNormalized or ErrNoUsableLaws.
func (c *Corpus) Check() error {
	usable := 0
	for _, law := range c.laws {
		for _, field := range []struct {
			name string
			vec  []float32
		}{
			{"embedding", law.Embedding},
			{"ground_truth_embedding", law.GroundTruthEmbedding},
		} {
			if len(field.vec) == 0 {
				continue
			}
			if c.dim == 0 {
				c.dim = len(field.vec)
			}
			if len(field.vec) != c.dim {
				return fmt.Errorf("%w: %s %s has %d, want %d", ErrDimensionMismatch, law.ID, field.name, len(field.vec), c.dim)
			}
			if !embed.IsNormalized(field.vec) {
				return fmt.Errorf("%w: %s %s has norm %.6f", ErrNotNormalized, law.ID, field.name, embed.Norm(field.vec))
			}
		}
		if v, _ := law.Vector(); v != nil {
			usable++
		}
	}
	if usable == 0 {
		return fmt.Errorf("%w: %d laws, none with an embedding", ErrNoUsableLaws, len(c.laws))
	}
	return nil
}

// =============================================================================
// Accessors
// =============================================================================

// Dimension returns the corpus vector dimension, or 0 if not yet known.
func (c *Corpus) Dimension() int { return c.dim }

// Stats returns load statistics.
func (c *Corpus) Stats() Stats { return c.stats }

// Laws returns every law in walk order.
func (c *Corpus) Laws() []*records.Law { return c.laws }

// Law returns the law with the given path.
func (c *Corpus) Law(id string) (*records.Law, bool) {
	law, ok := c.byID[id]
	return law, ok
}

// Forms returns the flat form table in walk order.
func (c *Corpus) Forms() []*FormEntry { return c.forms }

// Form returns the form with the given table ID.
func (c *Corpus) Form(id string) (*FormEntry, bool) {
	f, ok := c.formIDs[id]
	return f, ok
}

// FormsOwnedBy returns the forms whose smallest enclosing law is lawID.
func (c *Corpus) FormsOwnedBy(lawID string) []*FormEntry { return c.owned[lawID] }

// Enumerate returns (law_id, record, embedding, text, is_ground_truth) for
// every law with a vector, in walk order. The ground-truth vector is
// preferred when present.
func (c *Corpus) Enumerate() []Entry {
	out := make([]Entry, 0, len(c.laws))
	for _, law := range c.laws {
		vec, gt := law.Vector()
		if vec == nil {
			continue
		}
		text := law.EmbeddingText
		if gt {
			text = law.GroundTruthText
		}
		out = append(out, Entry{
			LawID:         law.ID,
			Law:           law,
			Embedding:     vec,
			Text:          text,
			IsGroundTruth: gt,
		})
	}
	return out
}

// Encode writes the (possibly augmented) document tree to w.
func (c *Corpus) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c.root); err != nil {
		return fmt.Errorf("encode law reference document: %w", err)
	}
	return nil
}

// =============================================================================
// Field decoding
// =============================================================================

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func stringList(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			return []string{strings.TrimSpace(s)}
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func parseForm(obj map[string]any) records.Form {
	return records.Form{
		FormName:    stringField(obj, "form_name"),
		FormNumber:  stringField(obj, "form_number"),
		Agency:      stringField(obj, "agency"),
		URL:         stringField(obj, "url"),
		Description: stringField(obj, "description"),
		FormType:    stringField(obj, "form_type"),
	}
}

func formList(raw any) []records.Form {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]records.Form, 0, len(items))
	for _, it := range items {
		if obj, ok := it.(map[string]any); ok {
			out = append(out, parseForm(obj))
		}
	}
	return out
}

// floatVector accepts a JSON array of numbers (json.Number or float64) or an
// already-decoded []float32.
func floatVector(raw any) ([]float32, bool) {
	switch v := raw.(type) {
	case []float32:
		return v, len(v) > 0
	case []any:
		if len(v) == 0 {
			return nil, false
		}
		out := make([]float32, len(v))
		for i, x := range v {
			switch n := x.(type) {
			case json.Number:
				f, err := strconv.ParseFloat(n.String(), 32)
				if err != nil {
					return nil, false
				}
				out[i] = float32(f)
			case float64:
				out[i] = float32(n)
			default:
				return nil, false
			}
		}
		return out, true
	default:
		return nil, false
	}
}
