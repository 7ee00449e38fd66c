// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package textbuild serialises laws, violations and forms into the canonical
// strings that are embedded.
//
// Each builder concatenates labelled fields in a fixed order separated by
// Separator. The order participates in the embedding, so it is part of the
// contract: changing it invalidates every stored vector. Missing fields are
// omitted rather than rendered empty. All builders are pure.
package textbuild

import (
	"strings"

	"github.com/AleutianAI/lawpath/services/lawpath/records"
)

// Separator joins labelled fields.
const Separator = " | "

// Jurisdiction levels derived from a law path.
const (
	JurisdictionFederal = "federal"
	JurisdictionState   = "state"
	JurisdictionLocal   = "local"
)

// citationMarkers identify a section string that is already a full citation.
var citationMarkers = []string{"U.S.C.", "Code", "Stat.", "Penal", "Rev. Stat"}

// fields accumulates labelled parts, dropping empty values.
type fields []string

func (f *fields) add(label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	*f = append(*f, label+": "+value)
}

func (f *fields) raw(part string) {
	*f = append(*f, part)
}

func (f fields) String() string {
	return strings.Join(f, Separator)
}

// JurisdictionFromPath derives the jurisdiction level from a law path.
func JurisdictionFromPath(path string) string {
	switch {
	case strings.Contains(path, "federal"):
		return JurisdictionFederal
	case strings.Contains(path, "states"):
		return JurisdictionState
	default:
		return JurisdictionLocal
	}
}

// LawText builds the base canonical text for a law.
//
// Order: LAW, DESCRIPTION, OFFICIAL_SOURCE, FULL_CITATIONS, KEY_SECTIONS,
// RELEVANCE, REPORTING_FORMS, JURISDICTION, GROUND_TRUTH,
// AUTHORITATIVE_SOURCE.
func LawText(law *records.Law) string {
	f := lawPrefix(law)
	f.add("REPORTING_FORMS", formsInline(law.Forms))
	f.add("JURISDICTION", JurisdictionFromPath(law.ID))
	f.raw("GROUND_TRUTH: TRUE")
	f.raw("AUTHORITATIVE_SOURCE: TRUE")
	return f.String()
}

// GroundTruthText builds the full-citation text for a law.
//
// It shares the LawText prefix, then lists every key section under
// STATUTORY_SECTIONS and every form under REPORTING_MECHANISMS as bulleted
// lines, so the full citation payload reaches the embedding.
func GroundTruthText(law *records.Law) string {
	f := lawPrefix(law)

	if sections := nonEmpty(law.KeySections); len(sections) > 0 {
		var b strings.Builder
		b.WriteString("STATUTORY_SECTIONS:")
		for _, s := range sections {
			b.WriteString("\n  - ")
			b.WriteString(s)
		}
		f.raw(b.String())
	}

	if len(law.Forms) > 0 {
		var b strings.Builder
		b.WriteString("REPORTING_MECHANISMS:")
		for _, form := range law.Forms {
			b.WriteString("\n  - ")
			b.WriteString(mechanismLine(form))
		}
		f.raw(b.String())
	}

	f.add("JURISDICTION", JurisdictionFromPath(law.ID))
	f.raw("GROUND_TRUTH: TRUE")
	f.raw("AUTHORITATIVE_SOURCE: TRUE")
	return f.String()
}

// ViolationText builds the canonical text for a violation.
func ViolationText(v *records.Violation) string {
	var f fields
	f.add("VIOLATION_TYPE", v.ViolationType)
	f.add("ENTITY", v.EntityName)
	f.add("DESCRIPTION", v.Description)
	f.add("SEVERITY", string(v.Severity))
	f.add("JURISDICTION", v.Jurisdiction)
	f.add("STATE", v.State)
	f.add("SOURCE", v.Source)
	return f.String()
}

// FormText builds the canonical text for a reporting form.
func FormText(form records.Form) string {
	var f fields
	f.add("FORM_NAME", form.FormName)
	f.add("FORM_NUMBER", form.FormNumber)
	f.add("AGENCY", form.Agency)
	f.add("DESCRIPTION", form.Description)
	f.add("FORM_TYPE", form.FormType)
	f.add("URL", form.URL)
	return f.String()
}

// lawPrefix renders the fields shared by the base and ground-truth texts.
func lawPrefix(law *records.Law) fields {
	var f fields
	f.add("LAW", law.Name)
	f.add("DESCRIPTION", law.Description)
	f.add("OFFICIAL_SOURCE", law.URL)

	if sections := nonEmpty(law.KeySections); len(sections) > 0 {
		citations := make([]string, len(sections))
		for i, s := range sections {
			citations[i] = fullCitation(law.Name, s)
		}
		f.add("FULL_CITATIONS", strings.Join(citations, Separator))
		f.add("KEY_SECTIONS", strings.Join(sections, "; "))
	}

	f.add("RELEVANCE", law.Relevance)
	return f
}

// fullCitation qualifies a bare "§ n" section with the law name.
func fullCitation(lawName, section string) string {
	for _, m := range citationMarkers {
		if strings.Contains(section, m) {
			return section
		}
	}
	if strings.Contains(section, "§") && lawName != "" {
		return lawName + " " + section
	}
	return section
}

// formsInline renders forms for the base text's REPORTING_FORMS field.
func formsInline(forms []records.Form) string {
	parts := make([]string, 0, len(forms))
	for _, form := range forms {
		var segs []string
		head := strings.TrimSpace(form.FormName)
		if n := strings.TrimSpace(form.FormNumber); n != "" {
			head = strings.TrimSpace(head + " (" + n + ")")
		}
		if head != "" {
			segs = append(segs, head)
		}
		if a := strings.TrimSpace(form.Agency); a != "" {
			segs = append(segs, a)
		}
		if d := strings.TrimSpace(form.Description); d != "" {
			segs = append(segs, d)
		}
		if u := strings.TrimSpace(form.URL); u != "" {
			segs = append(segs, "URL: "+u)
		}
		if len(segs) > 0 {
			parts = append(parts, strings.Join(segs, " - "))
		}
	}
	return strings.Join(parts, Separator)
}

// mechanismLine renders one REPORTING_MECHANISMS bullet.
func mechanismLine(form records.Form) string {
	var b strings.Builder
	name := strings.TrimSpace(form.FormName)
	if name == "" {
		name = "Unknown Form"
	}
	b.WriteString(name)
	if n := strings.TrimSpace(form.FormNumber); n != "" {
		b.WriteString(" (Form " + n + ")")
	}
	if a := strings.TrimSpace(form.Agency); a != "" {
		b.WriteString(" - " + a)
	}
	if u := strings.TrimSpace(form.URL); u != "" {
		b.WriteString(" - " + u)
	}
	if d := strings.TrimSpace(form.Description); d != "" {
		b.WriteString(": " + d)
	}
	return b.String()
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
