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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteCategory(t *testing.T) {
	tests := []struct {
		hint string
		want Category
	}{
		{"Tax Forfeiture", CategoryTaxForfeitures},
		{"forfeiture of charter", CategoryTaxForfeitures},
		{"Forfeited Existence", CategoryForfeitedEntities},
		{"entity status", CategoryForfeitedEntities},
		{"Unlicensed Contractor", CategoryLicensingViolations},
		{"license lapse", CategoryLicensingViolations},
		{"Licensing Violations", CategoryLicensingViolations},
		{"Operating Without License", CategoryLicensingViolations},
		{"failure to file annual report (filing)", CategoryFilingViolations},
		{"wire fraud", CategoryFraudViolations},
		{"property code", CategoryPropertyViolations},
		{"money laundering", CategoryOtherViolations},
		{"", CategoryOtherViolations},
		{"licensing_violations", CategoryLicensingViolations},
		{"FILING_VIOLATIONS", CategoryFilingViolations},
	}
	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			assert.Equal(t, tt.want, RouteCategory(tt.hint))
		})
	}
}

func TestAllCategoriesSortedAndValid(t *testing.T) {
	cats := AllCategories()
	require.Len(t, cats, 7)
	for i := 1; i < len(cats); i++ {
		assert.Less(t, string(cats[i-1]), string(cats[i]))
	}
	for _, c := range cats {
		assert.True(t, c.Valid())
	}
	assert.False(t, Category("misc").Valid())
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, SeverityHigh, ParseSeverity(" high "))
	assert.Equal(t, SeverityMedium, ParseSeverity("Medium"))
	assert.Equal(t, SeverityLow, ParseSeverity("LOW"))
	assert.Equal(t, SeverityUnknown, ParseSeverity("critical"))
	assert.Equal(t, SeverityUnknown, ParseSeverity(""))
}

func TestViolationKey(t *testing.T) {
	v := Violation{EntityName: "  Acme LLC", ViolationType: "Tax Forfeiture", FilingDate: "2023-06-01"}
	assert.Equal(t, IdentityKey{Entity: "acme llc", Type: "tax forfeiture", Date: "2023-06-01"}, v.Key())

	v.Date = "2022-01-01"
	assert.Equal(t, "2022-01-01", v.Key().Date, "date takes precedence over filing_date")
}

func TestViolationCategoryHint(t *testing.T) {
	v := &Violation{ViolationType: "Failure To File"}
	assert.Equal(t, "Failure To File", v.CategoryHint())

	v.Extra = map[string]json.RawMessage{PatternGroupField: json.RawMessage(`"filing_violations"`)}
	assert.Equal(t, "filing_violations", v.CategoryHint())
	assert.Equal(t, CategoryFilingViolations, RouteCategory(v.CategoryHint()))

	v.Extra[PatternGroupField] = json.RawMessage(`7`)
	assert.Equal(t, "Failure To File", v.CategoryHint())
}

func TestViolationPassthroughFields(t *testing.T) {
	input := `{"violation_type":"tax forfeiture","entity_name":"Acme LLC","severity":"high",
		"filing_number":"0801234567","date":"2023-06-01","amount":1250.5}`

	var v Violation
	require.NoError(t, json.Unmarshal([]byte(input), &v))
	assert.Equal(t, SeverityHigh, v.Severity)
	assert.Contains(t, v.Extra, "filing_number")
	assert.Contains(t, v.Extra, "amount")

	out, err := json.Marshal(v)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "0801234567", decoded["filing_number"])
	assert.Equal(t, 1250.5, decoded["amount"])
	assert.Equal(t, "HIGH", decoded["severity"])
	assert.NotContains(t, decoded, "state", "empty optional fields are omitted")
}

func TestViolationNumericTextField(t *testing.T) {
	var v Violation
	require.NoError(t, json.Unmarshal([]byte(`{"entity_name":"X","violation_type":"fraud","date":20230601}`), &v))
	assert.Equal(t, "20230601", v.Date)
}

func TestLawVectorPrefersGroundTruth(t *testing.T) {
	l := &Law{Embedding: []float32{1, 0}}
	vec, gt := l.Vector()
	assert.False(t, gt)
	assert.Equal(t, []float32{1, 0}, vec)

	l.GroundTruthEmbedding = []float32{0, 1}
	vec, gt = l.Vector()
	assert.True(t, gt)
	assert.Equal(t, []float32{0, 1}, vec)

	vec, _ = (&Law{}).Vector()
	assert.Nil(t, vec)
}

func TestFormKey(t *testing.T) {
	assert.Equal(t, "FinCEN 111", Form{FormName: "SAR", FormNumber: " FinCEN 111 "}.Key())
	assert.Equal(t, "Complaint Form", Form{FormName: "Complaint Form"}.Key())
}
