// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/AleutianAI/lawpath/services/lawpath/records"
)

// Source is one file handed to an extractor.
type Source struct {
	// Rel is the slash-separated path relative to the discovery root.
	Rel  string
	Data []byte
}

// Extractor turns one source file into candidate violations.
//
// Extract must be safe for concurrent use and should return promptly once
// ctx is done. A malformed source returns an error wrapping
// ErrSourceUnreadable.
type Extractor interface {
	// Kind names the extractor in reports and metrics.
	Kind() string

	// Glob selects source files relative to the root (doublestar syntax).
	Glob() string

	Extract(ctx context.Context, src Source) ([]*records.Violation, error)
}

// DefaultExtractors returns the file extractors with their default globs.
func DefaultExtractors() []Extractor {
	return []Extractor{
		&TaxDumpExtractor{},
		&ReportExtractor{},
		&LicenseSearchExtractor{},
		&VerificationExtractor{},
	}
}

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func splitLines(data []byte) []string {
	return strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
}

// =============================================================================
// Tax Filing Dumps
// =============================================================================

// TaxDumpExtractor scans line- or tab-separated filing dumps.
//
// A line carrying "Tax Forfeiture" (or "Forfeited Existence") yields one
// record when a "Name:" value is found on that line or within Window lines
// around it. The nearest ISO date and "Filing Number:" in the same span are
// attached.
type TaxDumpExtractor struct {
	// Pattern overrides the default glob "raw/**/*.txt".
	Pattern string

	// Window is the number of lines searched either side. Default: 3
	Window int
}

var (
	isoDate      = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)
	filingNumber = regexp.MustCompile(`Filing Number:\s*(\d+)`)
)

// nearestDate returns the ISO date closest to lines[i] within window lines,
// preferring the line itself and then earlier lines at equal distance.
func nearestDate(lines []string, i, window int) string {
	if m := isoDate.FindStringSubmatch(lines[i]); m != nil {
		return m[1]
	}
	for d := 1; d <= window; d++ {
		for _, j := range []int{i - d, i + d} {
			if j < 0 || j >= len(lines) {
				continue
			}
			if m := isoDate.FindStringSubmatch(lines[j]); m != nil {
				return m[1]
			}
		}
	}
	return ""
}

func (e *TaxDumpExtractor) Kind() string { return "tax_dump" }

func (e *TaxDumpExtractor) Glob() string {
	if e.Pattern != "" {
		return e.Pattern
	}
	return "raw/**/*.txt"
}

func (e *TaxDumpExtractor) Extract(ctx context.Context, src Source) ([]*records.Violation, error) {
	window := e.Window
	if window <= 0 {
		window = 3
	}
	lines := splitLines(src.Data)

	var out []*records.Violation
	for i, line := range lines {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		var vtype, label string
		switch {
		case strings.Contains(line, "Tax Forfeiture"):
			vtype, label = "Tax Forfeiture", "Tax forfeiture"
		case strings.Contains(strings.ToLower(line), "forfeited existence"):
			vtype, label = "Forfeited Existence", "Forfeited existence"
		default:
			continue
		}

		span := strings.Join(lines[max(0, i-window):min(len(lines), i+window+1)], "\n")
		entity, ok := labelledEntity(line)
		if !ok {
			entity, ok = labelledEntity(span)
		}
		if !ok {
			continue
		}

		v := &records.Violation{
			ViolationType: vtype,
			EntityName:    entity,
			Source:        src.Rel,
			Severity:      records.SeverityHigh,
			Description:   fmt.Sprintf("%s found in %s for %s", label, src.Rel, entity),
			Date:          nearestDate(lines, i, window),
		}
		if m := filingNumber.FindStringSubmatch(span); m != nil {
			v.Extra = map[string]json.RawMessage{"filing_number": rawString(m[1])}
		}
		out = append(out, v)
	}
	return out, nil
}

// =============================================================================
// Narrative Reports
// =============================================================================

// ReportExtractor scans free-text reports line by line for category
// keywords. Every group whose keyword occurs on a line yields at most one
// record for that line, provided an entity can be extracted. The record's
// type is the matched keyword in title case ("tax forfeiture" becomes
// "Tax Forfeiture") and its date the nearest ISO date within Window lines.
type ReportExtractor struct {
	// Pattern overrides the default glob "reports/**/*VIOLATION*.md".
	Pattern string

	// Groups overrides DefaultPatterns.
	Groups []PatternGroup

	// Window is the number of lines searched either side for a date.
	// Default: 3
	Window int
}

func (e *ReportExtractor) Kind() string { return "report" }

func (e *ReportExtractor) Glob() string {
	if e.Pattern != "" {
		return e.Pattern
	}
	return "reports/**/*VIOLATION*.md"
}

func (e *ReportExtractor) Extract(ctx context.Context, src Source) ([]*records.Violation, error) {
	groups := e.Groups
	if groups == nil {
		groups = DefaultPatterns
	}
	window := e.Window
	if window <= 0 {
		window = 3
	}
	lines := splitLines(src.Data)
	name := path.Base(src.Rel)

	var out []*records.Violation
	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lower := strings.ToLower(line)
		for _, g := range groups {
			for _, p := range g.Patterns {
				if !strings.Contains(lower, p) {
					continue
				}
				if entity, ok := ExtractEntity(lines, i); ok {
					trimmed := strings.TrimSpace(line)
					severity := records.SeverityMedium
					if strings.Contains(p, "unlicensed") || strings.Contains(p, "fraud") {
						severity = records.SeverityHigh
					}
					out = append(out, &records.Violation{
						ViolationType: titleCase(p),
						EntityName:    entity,
						Source:        src.Rel,
						Severity:      severity,
						Date:          nearestDate(lines, i, window),
						Description:   fmt.Sprintf("Violation found in %s: %s", name, truncateRunes(trimmed, 200)),
						Extra: map[string]json.RawMessage{
							"line_context":            rawString(trimmed),
							records.PatternGroupField: rawString(g.Name),
						},
					})
				}
				break
			}
		}
	}
	return out, nil
}

// =============================================================================
// License Search Results
// =============================================================================

// LicenseSearchExtractor reads one license search result per file, laid
// out as <state>/<person>_finding.json. A result mentioning no license,
// not found, no record or unlicensed yields an Unlicensed Practice record
// for the person in that state.
type LicenseSearchExtractor struct {
	// Pattern overrides the default glob "license_searches/data/*/*.json".
	Pattern string
}

var (
	findingName   = regexp.MustCompile(`([a-z_]+)_finding`)
	noLicenseHits = []string{"no license", "not found", "no record", "unlicensed"}
)

func (e *LicenseSearchExtractor) Kind() string { return "license_search" }

func (e *LicenseSearchExtractor) Glob() string {
	if e.Pattern != "" {
		return e.Pattern
	}
	return "license_searches/data/*/*.json"
}

func (e *LicenseSearchExtractor) Extract(ctx context.Context, src Source) ([]*records.Violation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !json.Valid(src.Data) {
		return nil, fmt.Errorf("%w: %s: invalid JSON", ErrSourceUnreadable, src.Rel)
	}

	lower := strings.ToLower(string(src.Data))
	hit := false
	for _, term := range noLicenseHits {
		if strings.Contains(lower, term) {
			hit = true
			break
		}
	}
	if !hit {
		return nil, nil
	}

	stem := strings.TrimSuffix(path.Base(src.Rel), path.Ext(src.Rel))
	m := findingName.FindStringSubmatch(stem)
	if m == nil {
		return nil, nil
	}
	person := strings.TrimSpace(titleCase(strings.ReplaceAll(m[1], "_", " ")))
	if person == "" {
		return nil, nil
	}
	state := path.Base(path.Dir(src.Rel))

	return []*records.Violation{{
		ViolationType: "Unlicensed Practice",
		EntityName:    person,
		State:         state,
		Source:        src.Rel,
		Severity:      records.SeverityHigh,
		Description:   fmt.Sprintf("No license found for %s in %s", person, state),
	}}, nil
}

// =============================================================================
// License Verification Documents
// =============================================================================

// VerificationExtractor walks nested license verification documents.
//
// When the root has a personnel_list, each person's license_verification
// subtree is searched with the person's name in scope. Otherwise the whole
// document is searched. An object is unlicensed when confirmed_unlicensed
// is true, its status contains not_found, or its result mentions no
// license or not found. The jurisdiction is read from the JSON path (tx,
// md, dc) and defaults to Virginia.
type VerificationExtractor struct {
	// Pattern overrides the default glob "**/*license_verification*.json".
	Pattern string
}

func (e *VerificationExtractor) Kind() string { return "license_verification" }

func (e *VerificationExtractor) Glob() string {
	if e.Pattern != "" {
		return e.Pattern
	}
	return "**/*license_verification*.json"
}

func (e *VerificationExtractor) Extract(ctx context.Context, src Source) ([]*records.Violation, error) {
	dec := json.NewDecoder(bytes.NewReader(src.Data))
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnreadable, src.Rel, err)
	}

	w := &verificationWalker{ctx: ctx, source: src.Rel}
	root, _ := doc.(map[string]any)
	if people, ok := root["personnel_list"].([]any); ok {
		for _, p := range people {
			person, _ := p.(map[string]any)
			name := titleCase(strings.ReplaceAll(stringField(person, "name"), "_", " "))
			if name == "" {
				continue
			}
			w.walk(person["license_verification"], "license_verification", name)
		}
	} else {
		w.walk(doc, "", "")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return w.out, nil
}

type verificationWalker struct {
	ctx    context.Context
	source string
	out    []*records.Violation
}

func (w *verificationWalker) walk(node any, jsonPath, person string) {
	if w.ctx.Err() != nil {
		return
	}
	switch n := node.(type) {
	case map[string]any:
		current := person
		if name := stringField(n, "name"); name != "" {
			current = name
		}
		if current != "" {
			current = titleCase(strings.ReplaceAll(current, "_", " "))
		}

		confirmed, _ := n["confirmed_unlicensed"].(bool)
		status := strings.ToLower(anyString(n["status"]))
		result := strings.ToLower(anyString(n["result"]))
		unlicensed := confirmed ||
			strings.Contains(status, "not_found") ||
			strings.Contains(result, "no license") ||
			strings.Contains(result, "no_license") ||
			strings.Contains(result, "not found")

		if unlicensed && current != "" {
			w.out = append(w.out, w.record(n, jsonPath, current))
		}

		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := k
			if jsonPath != "" {
				child = jsonPath + "." + k
			}
			w.walk(n[k], child, current)
		}

	case []any:
		for i, item := range n {
			w.walk(item, fmt.Sprintf("%s[%d]", jsonPath, i), person)
		}
	}
}

func (w *verificationWalker) record(n map[string]any, jsonPath, person string) *records.Violation {
	jurisdiction := jurisdictionFromPath(jsonPath)
	v := &records.Violation{
		ViolationType: fmt.Sprintf("Unlicensed Practice (%s)", jurisdiction),
		EntityName:    person,
		Source:        w.source,
		Severity:      records.SeverityHigh,
		Jurisdiction:  jurisdiction,
		Description:   fmt.Sprintf("Verification confirms no license found for %s in %s", person, jurisdiction),
	}
	extra := make(map[string]json.RawMessage)
	verified := stringField(n, "verified_date")
	if verified == "" {
		verified = stringField(n, "search_date")
	}
	if verified != "" {
		extra["verified_date"] = rawString(verified)
	}
	if r := anyString(n["result"]); r != "" {
		extra["search_result"] = rawString(r)
	}
	if len(extra) > 0 {
		v.Extra = extra
	}
	return v
}

// pathJurisdictions maps a JSON key prefix ("tx" in "tx_search") to a
// jurisdiction.
var pathJurisdictions = map[string]string{
	"tx": "Texas", "texas": "Texas",
	"md": "Maryland", "maryland": "Maryland",
	"dc": "District of Columbia",
	"va": "Virginia", "virginia": "Virginia",
}

// jurisdictionFromPath reads the jurisdiction from the deepest JSON key
// whose first underscore-separated word names one, defaulting to Virginia.
func jurisdictionFromPath(jsonPath string) string {
	segs := strings.Split(strings.ToLower(jsonPath), ".")
	for i := len(segs) - 1; i >= 0; i-- {
		seg := segs[i]
		if j := strings.IndexByte(seg, '['); j >= 0 {
			seg = seg[:j]
		}
		head, _, _ := strings.Cut(seg, "_")
		if j, ok := pathJurisdictions[head]; ok {
			return j
		}
	}
	return "Virginia"
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func anyString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
