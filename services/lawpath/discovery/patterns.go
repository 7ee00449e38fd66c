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
	"regexp"
	"strings"
	"unicode"
)

// PatternGroup is a keyword list for one pattern category.
type PatternGroup struct {
	// Name is the snake_case group name, e.g. "licensing_violations".
	Name     string
	Patterns []string
}

// DefaultPatterns are the keyword groups scanned in reports and used to
// select candidate vectors. Order is significant for output order.
var DefaultPatterns = []PatternGroup{
	{Name: "tax_violations", Patterns: []string{
		"tax forfeiture", "tax evasion", "failure to pay tax", "tax fraud",
		"delinquent tax", "tax penalty", "tax lien", "tax delinquency",
	}},
	{Name: "licensing_violations", Patterns: []string{
		"unlicensed", "license required", "license violation", "no license",
		"license expired", "license suspended", "license revoked", "operating without license",
	}},
	{Name: "filing_violations", Patterns: []string{
		"late filing", "failure to file", "overdue filing", "delinquent filing",
		"filing violation", "missed filing", "filing deadline",
	}},
	{Name: "entity_violations", Patterns: []string{
		"forfeited existence", "forfeited entity", "entity forfeiture",
		"dissolved entity", "inactive entity", "entity status violation",
	}},
	{Name: "regulatory_violations", Patterns: []string{
		"regulatory violation", "compliance violation", "regulatory non-compliance",
		"violation of", "breach of", "non-compliance with",
	}},
	{Name: "fraud_violations", Patterns: []string{
		"fraud", "false statement", "misrepresentation", "deceptive practice",
		"fraudulent", "scheme to defraud", "wire fraud", "mail fraud",
	}},
	{Name: "property_violations", Patterns: []string{
		"property violation", "landlord violation", "tenant violation",
		"housing violation", "property code violation", "unsafe property",
	}},
}

// matchesAny reports whether lower contains any pattern of any group.
func matchesAny(groups []PatternGroup, lower string) bool {
	for _, g := range groups {
		for _, p := range g.Patterns {
			if strings.Contains(lower, p) {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// Entity Extraction
// =============================================================================

// MaxEntityTokens is the longest entity name accepted.
const MaxEntityTokens = 4

var (
	headingEntity = regexp.MustCompile(`^###?\s*\d+\.\s*([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,3})\s*-`)
	pairedName    = regexp.MustCompile(`([A-Z][a-z]+\s+[A-Z][a-z]+)`)
	companyName   = regexp.MustCompile(`([A-Z][A-Za-z\s&,]+(?:Inc|LLC|Corp|Ltd)\.?)`)
	labelledName  = regexp.MustCompile(`Name:\s*([^\n|\t]+)`)
)

// entityDenylist holds title-cased pairs that are section labels, not names.
var entityDenylist = map[string]struct{}{
	"Date December":    {},
	"Status CONFIRMED": {},
	"Severity HIGH":    {},
}

// ExtractEntity finds a plausible entity name for lines[i].
//
// Description:
//
//	Tries, in order: a numbered heading "### 1. Name Here - ...", the first
//	capitalised word pair in the three preceding lines that is not a known
//	label, and a company name ending in Inc, LLC, Corp or Ltd on the line
//	itself. Names longer than MaxEntityTokens are rejected.
//
// Outputs:
//
//	string - The entity name.
//	bool - False when no confident name was found.
func ExtractEntity(lines []string, i int) (string, bool) {
	line := lines[i]
	entity := ""

	if m := headingEntity.FindStringSubmatch(line); m != nil {
		entity = strings.TrimSpace(m[1])
	}
	if entity == "" {
		for j := max(0, i-3); j < i; j++ {
			m := pairedName.FindStringSubmatch(lines[j])
			if m == nil {
				continue
			}
			candidate := strings.TrimSpace(m[1])
			if _, deny := entityDenylist[candidate]; !deny {
				entity = candidate
				break
			}
		}
	}
	if entity == "" {
		if m := companyName.FindStringSubmatch(line); m != nil {
			entity = strings.TrimSpace(m[1])
		}
	}

	if entity == "" || len(strings.Fields(entity)) > MaxEntityTokens {
		return "", false
	}
	return entity, true
}

// labelledEntity returns the value after "Name:" in text.
func labelledEntity(text string) (string, bool) {
	m := labelledName.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	name := strings.TrimSpace(m[1])
	return name, name != ""
}

// titleCase upper-cases the first letter of every letter run and
// lower-cases the rest.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		prevLetter = false
		b.WriteRune(r)
	}
	return b.String()
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
