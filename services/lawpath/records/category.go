// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package records

import (
	"sort"
	"strings"
)

// Category is a normalised violation category.
type Category string

const (
	CategoryTaxForfeitures      Category = "tax_forfeitures"
	CategoryForfeitedEntities   Category = "forfeited_entities"
	CategoryFilingViolations    Category = "filing_violations"
	CategoryLicensingViolations Category = "licensing_violations"
	CategoryFraudViolations     Category = "fraud_violations"
	CategoryPropertyViolations  Category = "property_violations"
	CategoryOtherViolations     Category = "other_violations"
)

var knownCategories = map[Category]struct{}{
	CategoryTaxForfeitures:      {},
	CategoryForfeitedEntities:   {},
	CategoryFilingViolations:    {},
	CategoryLicensingViolations: {},
	CategoryFraudViolations:     {},
	CategoryPropertyViolations:  {},
	CategoryOtherViolations:     {},
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	_, ok := knownCategories[c]
	return ok
}

// AllCategories returns the fixed category set in ascending order.
func AllCategories() []Category {
	out := make([]Category, 0, len(knownCategories))
	for c := range knownCategories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// categoryRule routes a lower-cased hint to a category when any keyword matches.
type categoryRule struct {
	keywords []string
	category Category
}

// Rules are evaluated in order; the first hit wins.
var categoryRules = []categoryRule{
	{keywords: []string{"tax", "forfeiture"}, category: CategoryTaxForfeitures},
	{keywords: []string{"forfeited", "entity"}, category: CategoryForfeitedEntities},
	{keywords: []string{"licens"}, category: CategoryLicensingViolations},
	{keywords: []string{"filing"}, category: CategoryFilingViolations},
	{keywords: []string{"fraud"}, category: CategoryFraudViolations},
	{keywords: []string{"property"}, category: CategoryPropertyViolations},
}

// RouteCategory maps a free-text category or violation-type hint to a
// normalised Category. Hints that already name a fixed category are
// returned unchanged.
func RouteCategory(hint string) Category {
	h := strings.ToLower(strings.TrimSpace(hint))
	if c := Category(h); c.Valid() {
		return c
	}
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(h, kw) {
				return rule.category
			}
		}
	}
	return CategoryOtherViolations
}
