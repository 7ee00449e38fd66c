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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/lawpath/services/lawpath/records"
)

var fixedClock = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

func testOptions() *Options { return &Options{Now: fixedClock} }

func violation(entity, vtype, date string) *records.Violation {
	return &records.Violation{EntityName: entity, ViolationType: vtype, Date: date, Severity: records.SeverityHigh}
}

func TestAddIfNew(t *testing.T) {
	c := New(testOptions())

	assert.True(t, c.AddIfNew(records.CategoryTaxForfeitures, violation("Acme LLC", "Tax Forfeiture", "2023-06-01")))
	assert.False(t, c.AddIfNew(records.CategoryTaxForfeitures, violation("ACME llc", "tax forfeiture", "2023-06-01")), "identity key is case-insensitive")
	assert.True(t, c.AddIfNew(records.CategoryTaxForfeitures, violation("Acme LLC", "Tax Forfeiture", "2024-01-01")))
	assert.False(t, c.AddIfNew(records.CategoryTaxForfeitures, nil))
	assert.Equal(t, 2, c.Len())

	assert.True(t, c.Contains(records.IdentityKey{Entity: "acme llc", Type: "tax forfeiture", Date: "2023-06-01"}))
}

func TestAddIfNew_NormalisesCategory(t *testing.T) {
	c := New(testOptions())
	c.AddIfNew("unlicensed practice", violation("Bob", "Unlicensed Practice", ""))
	c.AddIfNew("something odd", violation("Carol", "Odd", ""))

	assert.Equal(t, map[records.Category]int{
		records.CategoryLicensingViolations: 1,
		records.CategoryOtherViolations:     1,
	}, c.Counts())
}

func TestAdd_RoutesByType(t *testing.T) {
	c := New(testOptions())
	c.Add(violation("Acme", "Wire Fraud", ""))
	entries := c.IterAll()
	require.Len(t, entries, 1)
	assert.Equal(t, records.CategoryFraudViolations, entries[0].Category)
}

func TestAdd_RoutesByPatternGroup(t *testing.T) {
	c := New(testOptions())
	v := violation("Acme", "Failure To File", "")
	v.Extra = map[string]json.RawMessage{records.PatternGroupField: json.RawMessage(`"filing_violations"`)}
	require.True(t, c.Add(v))
	assert.Equal(t, map[records.Category]int{records.CategoryFilingViolations: 1}, c.Counts())
}

func TestIterAll_Order(t *testing.T) {
	c := New(testOptions())
	c.AddIfNew(records.CategoryTaxForfeitures, violation("z", "t", "1"))
	c.AddIfNew(records.CategoryFilingViolations, violation("b", "f", "1"))
	c.AddIfNew(records.CategoryTaxForfeitures, violation("a", "t", "1"))
	c.AddIfNew(records.CategoryFilingViolations, violation("a", "f", "1"))

	var ids []string
	for _, e := range c.IterAll() {
		ids = append(ids, e.ID+"="+e.Violation.EntityName)
	}
	assert.Equal(t, []string{
		"filing_violations[0]=b",
		"filing_violations[1]=a",
		"tax_forfeitures[0]=z",
		"tax_forfeitures[1]=a",
	}, ids)
}

func TestMerge(t *testing.T) {
	base := New(testOptions())
	base.AddIfNew(records.CategoryTaxForfeitures, violation("Acme LLC", "tax forfeiture", "2023-06-01"))

	found := New(testOptions())
	found.AddIfNew(records.CategoryTaxForfeitures, violation("Acme LLC", "Tax Forfeiture", "2023-06-01"))
	found.AddIfNew(records.CategoryFraudViolations, violation("Beta Inc", "fraud", ""))

	stats := base.Merge(found)
	assert.Equal(t, MergeStats{Added: 1, Duplicates: 1}, stats)
	assert.Equal(t, 2, base.Len())

	assert.Equal(t, MergeStats{}, base.Merge(nil))
}

func TestDocument_RoundTripIsStable(t *testing.T) {
	input := []byte(`{
		"metadata": {"created": "2024-05-01T00:00:00Z", "version": "0.9"},
		"violations": {
			"tax_forfeitures": [
				{"violation_type": "Tax Forfeiture", "entity_name": "Acme LLC", "date": "2023-06-01", "severity": "HIGH", "filing_number": "801234"},
				{"violation_type": "tax forfeiture", "entity_name": "acme llc", "date": "2023-06-01"}
			],
			"entity_violations": [
				{"violation_type": "Forfeited Existence", "entity_name": "Beta Inc", "effective_date": "2022-01-01"},
				"not an object"
			]
		}
	}`)

	c, stats, err := Parse(input, testOptions())
	require.NoError(t, err)
	assert.Equal(t, LoadStats{Loaded: 2, Duplicates: 1, Malformed: 1}, stats)

	var first bytes.Buffer
	require.NoError(t, c.Encode(&first))

	again, _, err := Parse(first.Bytes(), testOptions())
	require.NoError(t, err)
	again.Merge(New(testOptions()))

	var second bytes.Buffer
	require.NoError(t, again.Encode(&second))
	assert.Equal(t, first.String(), second.String())

	doc := again.Document()
	assert.Equal(t, "2024-05-01T00:00:00Z", doc.Metadata.Created)
	assert.Equal(t, "0.9", doc.Metadata.Version)
	assert.Equal(t, 2, doc.Metadata.TotalViolations)
	assert.Equal(t, []records.Category{records.CategoryForfeitedEntities, records.CategoryTaxForfeitures}, doc.Metadata.Categories)
	assert.Contains(t, first.String(), `"filing_number": "801234"`)
}

func TestLoad_InvalidEnvelope(t *testing.T) {
	_, _, err := Parse([]byte(`{"violations": []}`), nil)
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestNew_EmptyDocument(t *testing.T) {
	doc := New(testOptions()).Document()
	assert.Equal(t, "2025-01-02T03:04:05Z", doc.Metadata.Created)
	assert.Equal(t, DocumentVersion, doc.Metadata.Version)
	assert.Empty(t, doc.Metadata.Categories)
	assert.NotNil(t, doc.Metadata.Categories)
}
