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
	"fmt"
	"strings"
)

// Violation is an observation that an entity engaged in regulated conduct.
//
// Fields not modelled here are preserved in Extra so a violation document
// survives a load/save cycle without losing upstream attributes.
type Violation struct {
	ViolationType string
	EntityName    string
	Description   string
	Severity      Severity
	Source        string
	Date          string
	FilingDate    string
	EffectiveDate string
	Jurisdiction  string
	State         string

	// Similarity is set on ML-discovered candidates only.
	Similarity *float64

	// Extra holds passthrough fields keyed by their JSON name.
	Extra map[string]json.RawMessage
}

// PrimaryDate returns the first non-empty of date, filing_date, effective_date.
func (v *Violation) PrimaryDate() string {
	for _, d := range []string{v.Date, v.FilingDate, v.EffectiveDate} {
		if d = strings.TrimSpace(d); d != "" {
			return d
		}
	}
	return ""
}

// PatternGroupField is the passthrough key naming the keyword group a
// narrative record was found by, e.g. "filing_violations".
const PatternGroupField = "pattern_group"

// CategoryHint returns the text a corpus routes v by: its pattern group
// when it carries one, otherwise its violation type.
func (v *Violation) CategoryHint() string {
	if raw, ok := v.Extra[PatternGroupField]; ok {
		var group string
		if err := json.Unmarshal(raw, &group); err == nil && strings.TrimSpace(group) != "" {
			return group
		}
	}
	return v.ViolationType
}

// Key returns the violation identity key.
func (v *Violation) Key() IdentityKey {
	return IdentityKey{
		Entity: strings.ToLower(strings.TrimSpace(v.EntityName)),
		Type:   strings.ToLower(strings.TrimSpace(v.ViolationType)),
		Date:   v.PrimaryDate(),
	}
}

// violationFields lists the modelled JSON keys; anything else is passthrough.
var violationFields = map[string]struct{}{
	"violation_type": {}, "entity_name": {}, "description": {}, "severity": {},
	"source": {}, "date": {}, "filing_date": {}, "effective_date": {},
	"jurisdiction": {}, "state": {}, "similarity": {},
}

// MarshalJSON writes modelled fields (omitting empties) merged with Extra.
// Keys come out sorted because the intermediate value is a map.
func (v Violation) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(v.Extra)+8)
	for k, raw := range v.Extra {
		out[k] = raw
	}
	put := func(key, val string) {
		if val != "" {
			out[key] = val
		}
	}
	out["violation_type"] = v.ViolationType
	out["entity_name"] = v.EntityName
	put("description", v.Description)
	sev := v.Severity
	if sev == "" {
		sev = SeverityUnknown
	}
	out["severity"] = sev
	put("source", v.Source)
	put("date", v.Date)
	put("filing_date", v.FilingDate)
	put("effective_date", v.EffectiveDate)
	put("jurisdiction", v.Jurisdiction)
	put("state", v.State)
	if v.Similarity != nil {
		out["similarity"] = *v.Similarity
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads modelled fields and keeps the rest in Extra.
//
// Upstream documents sometimes carry numbers or booleans in text fields;
// those are kept as their literal text rather than rejected.
func (v *Violation) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode violation: %w", err)
	}

	str := func(key string) string {
		msg, ok := raw[key]
		if !ok {
			return ""
		}
		var s string
		if err := json.Unmarshal(msg, &s); err == nil {
			return s
		}
		var num json.Number
		if err := json.Unmarshal(msg, &num); err == nil {
			return num.String()
		}
		var b bool
		if err := json.Unmarshal(msg, &b); err == nil {
			return fmt.Sprint(b)
		}
		return ""
	}

	*v = Violation{
		ViolationType: str("violation_type"),
		EntityName:    str("entity_name"),
		Description:   str("description"),
		Severity:      ParseSeverity(str("severity")),
		Source:        str("source"),
		Date:          str("date"),
		FilingDate:    str("filing_date"),
		EffectiveDate: str("effective_date"),
		Jurisdiction:  str("jurisdiction"),
		State:         str("state"),
	}
	if msg, ok := raw["similarity"]; ok {
		var f float64
		if err := json.Unmarshal(msg, &f); err == nil {
			v.Similarity = &f
		}
	}
	for k, msg := range raw {
		if _, known := violationFields[k]; known {
			continue
		}
		if v.Extra == nil {
			v.Extra = make(map[string]json.RawMessage)
		}
		v.Extra[k] = msg
	}
	return nil
}
