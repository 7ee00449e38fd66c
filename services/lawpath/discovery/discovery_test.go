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
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/lawpath/services/lawpath/records"
	"github.com/AleutianAI/lawpath/services/lawpath/vectorstore"
	"github.com/AleutianAI/lawpath/services/lawpath/violations"
)

// =============================================================================
// Fixtures
// =============================================================================

const taxDump = "Filing Number: 80012345\n" +
	"Name: Lone Star Holdings LLC\n" +
	"Status: Tax Forfeiture\t2021-06-04\n" +
	"\n" +
	"Name: Other Co | Forfeited Existence | 2019-01-02\n"

const report = "# Findings\n" +
	"Date December\n" +
	"John Smith\n" +
	"He was operating as an unlicensed contractor.\n" +
	"\n" +
	"### 2. Acme Widgets - failure to file annual report\n"

const verification = `{"personnel_list": [
  {"name": "bob_jones", "license_verification": {
    "va_search": {"status": "NOT_FOUND", "search_date": "2024-01-02"},
    "tx_search": {"result": "Active"}
  }},
  {"name": "carol_white", "license_verification": {"confirmed_unlicensed": true}}
]}`

var fixedNow = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func sourceTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "raw/lariat.txt", taxDump)
	writeFile(t, root, "reports/2024_VIOLATION_summary.md", report)
	writeFile(t, root, "license_searches/data/maryland/jane_doe_finding.json", `{"result": "No license found"}`)
	writeFile(t, root, "license_searches/data/virginia/broken_finding.json", `{not json`)
	writeFile(t, root, "va/personnel_license_verification.json", verification)
	return root
}

func options(root string) *Options {
	return &Options{Root: root, Workers: 2, Logger: quietLogger(), Now: fixedNow}
}

func types(vs []*records.Violation) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.ViolationType + "/" + v.EntityName
	}
	return out
}

// =============================================================================
// Entity Extraction
// =============================================================================

func TestExtractEntity(t *testing.T) {
	tests := []struct {
		name   string
		lines  []string
		want   string
		wantOK bool
	}{
		{
			name:   "numbered heading",
			lines:  []string{"### 12. Maria Lopez Garcia - unlicensed work"},
			want:   "Maria Lopez Garcia",
			wantOK: true,
		},
		{
			name:   "previous line skips label pairs",
			lines:  []string{"Date December", "Peter Parker", "fraud alleged"},
			want:   "Peter Parker",
			wantOK: true,
		},
		{
			name:   "company on the line",
			lines:  []string{"filed late by Harbor Point LLC."},
			want:   "Harbor Point LLC.",
			wantOK: true,
		},
		{
			name:   "too many tokens",
			lines:  []string{"the North Shore Metro Housing Group Inc was cited"},
			wantOK: false,
		},
		{
			name:   "nothing plausible",
			lines:  []string{"tax lien recorded"},
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractEntity(tt.lines, len(tt.lines)-1)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Licensing Violations", titleCase("licensing violations"))
	assert.Equal(t, "Jane Doe", titleCase("JANE doe"))
	assert.Equal(t, "O'Neil", titleCase("o'neil"))
}

// =============================================================================
// Extractors
// =============================================================================

func TestTaxDumpExtractor(t *testing.T) {
	got, err := (&TaxDumpExtractor{}).Extract(context.Background(), Source{Rel: "raw/lariat.txt", Data: []byte(taxDump)})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Tax Forfeiture", got[0].ViolationType)
	assert.Equal(t, "Lone Star Holdings LLC", got[0].EntityName)
	assert.Equal(t, "2021-06-04", got[0].Date)
	assert.Equal(t, records.SeverityHigh, got[0].Severity)
	assert.JSONEq(t, `"80012345"`, string(got[0].Extra["filing_number"]))

	assert.Equal(t, "Forfeited Existence", got[1].ViolationType)
	assert.Equal(t, "Other Co", got[1].EntityName)
	assert.Equal(t, "2019-01-02", got[1].Date)
	assert.NotContains(t, got[1].Extra, "filing_number")
}

func TestReportExtractor(t *testing.T) {
	got, err := (&ReportExtractor{}).Extract(context.Background(), Source{Rel: "reports/x_VIOLATION.md", Data: []byte(report)})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Unlicensed/John Smith",
		"Failure To File/Acme Widgets",
	}, types(got))
	assert.Equal(t, records.SeverityHigh, got[0].Severity)
	assert.Equal(t, records.SeverityMedium, got[1].Severity)
	assert.True(t, strings.HasPrefix(got[1].Description, "Violation found in x_VIOLATION.md: ### 2."))
	assert.Equal(t, records.CategoryLicensingViolations, records.RouteCategory(got[0].CategoryHint()))
	assert.Equal(t, records.CategoryFilingViolations, records.RouteCategory(got[1].CategoryHint()))
	assert.Empty(t, got[0].Date)
}

func TestReportExtractor_NearestDate(t *testing.T) {
	doc := "Acme LLC recorded a tax forfeiture on 2023-06-01.\n" +
		"Filed 2020-01-01\n" +
		"\n" +
		"Reported 2024-02-02\n" +
		"Beta Corp was operating without license\n" +
		"Noted 2024-03-03\n"
	got, err := (&ReportExtractor{}).Extract(context.Background(), Source{Rel: "reports/a_VIOLATION.md", Data: []byte(doc)})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Tax Forfeiture", got[0].ViolationType)
	assert.Equal(t, "Acme LLC", got[0].EntityName)
	assert.Equal(t, "2023-06-01", got[0].Date)
	assert.Equal(t, records.IdentityKey{Entity: "acme llc", Type: "tax forfeiture", Date: "2023-06-01"}, got[0].Key())

	assert.Equal(t, "Operating Without License", got[1].ViolationType)
	assert.Equal(t, "2024-02-02", got[1].Date, "earlier line wins at equal distance")
}

func TestLicenseSearchExtractor(t *testing.T) {
	e := &LicenseSearchExtractor{}
	ctx := context.Background()

	got, err := e.Extract(ctx, Source{
		Rel:  "license_searches/data/maryland/jane_doe_finding.json",
		Data: []byte(`{"query": "Jane Doe", "result": "No license found"}`),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Jane Doe", got[0].EntityName)
	assert.Equal(t, "maryland", got[0].State)
	assert.Equal(t, "Unlicensed Practice", got[0].ViolationType)

	got, err = e.Extract(ctx, Source{Rel: "x/maryland/jane_doe_finding.json", Data: []byte(`{"result": "Active #123"}`)})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = e.Extract(ctx, Source{Rel: "x/y/z_finding.json", Data: []byte(`{`)})
	assert.ErrorIs(t, err, ErrSourceUnreadable)
}

func TestVerificationExtractor(t *testing.T) {
	e := &VerificationExtractor{}
	got, err := e.Extract(context.Background(), Source{Rel: "va/v.json", Data: []byte(verification)})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Unlicensed Practice (Virginia)/Bob Jones",
		"Unlicensed Practice (Virginia)/Carol White",
	}, types(got))
	assert.JSONEq(t, `"2024-01-02"`, string(got[0].Extra["verified_date"]))
	assert.Equal(t, "Virginia", got[0].Jurisdiction)

	got, err = e.Extract(context.Background(), Source{
		Rel:  "dc.json",
		Data: []byte(`{"tx": {"name": "dan_gray", "result": "No license on file"}}`),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Dan Gray", got[0].EntityName)
	assert.Equal(t, "Texas", got[0].Jurisdiction)

	_, err = e.Extract(context.Background(), Source{Rel: "bad.json", Data: []byte(`[`)})
	assert.ErrorIs(t, err, ErrSourceUnreadable)
}

func TestJurisdictionFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"license_verification.tx_search", "Texas"},
		{"license_verification.md_search", "Maryland"},
		{"license_verification.dc_search", "District of Columbia"},
		{"tx", "Texas"},
		{"records[2].maryland", "Maryland"},
		{"tx_search.va_search", "Virginia"},
		{"cmdb_export.status_checks", "Virginia"},
		{"contexts.adcock_notes", "Virginia"},
		{"", "Virginia"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, jurisdictionFromPath(tt.path))
		})
	}
}

// =============================================================================
// ML Discovery
// =============================================================================

// axisEmbedder maps every text onto the first axis.
type axisEmbedder struct{}

func (axisEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}
func (axisEmbedder) Dimension() int { return 2 }
func (axisEmbedder) Model() string  { return "axis" }

func mlStore(t *testing.T) vectorstore.Store {
	t.Helper()
	s := vectorstore.NewFileStore(filepath.Join(t.TempDir(), "vectors.json"))
	require.NoError(t, s.Put(context.Background(), []vectorstore.Vector{
		{ID: "a", Text: "Name: Acme Holdings | tax forfeiture noted", Embedding: []float32{0.9, 0.1}},
		{ID: "b", Text: "Name: Beta Corp | unlicensed", Embedding: []float32{0.1, 0.9}},
		{ID: "c", Text: "Name: Gamma | weather report", Embedding: []float32{1, 0}},
		{ID: "d", Text: "tax lien without a name", Embedding: []float32{1, 0}},
		{ID: "e", Text: "Name: Delta | fraud", Embedding: []float32{1, 0, 0}},
	}))
	return s
}

func existingCorpus(vs ...*records.Violation) *violations.Corpus {
	c := violations.New(&violations.Options{Logger: quietLogger(), Now: fixedNow})
	for _, v := range vs {
		c.Add(v)
	}
	return c
}

func TestMLDiscovery(t *testing.T) {
	ml := &MLDiscovery{Store: mlStore(t), Embedder: axisEmbedder{}, Logger: quietLogger()}
	existing := []*records.Violation{{ViolationType: "Tax Forfeiture", EntityName: "Known Co"}}

	got, err := ml.Discover(context.Background(), existing)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ML-Discovered Violation", got[0].ViolationType)
	assert.Equal(t, "Acme Holdings", got[0].EntityName)
	assert.Equal(t, MLSource, got[0].Source)
	require.NotNil(t, got[0].Similarity)
	assert.InDelta(t, 0.9939, *got[0].Similarity, 1e-3)
	assert.True(t, strings.HasPrefix(got[0].Description, "ML similarity match (0.994) for Acme Holdings"))

	got, err = ml.Discover(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// =============================================================================
// Run
// =============================================================================

func TestRun_Report(t *testing.T) {
	root := sourceTree(t)
	existing := existingCorpus(&records.Violation{
		ViolationType: "Tax Forfeiture",
		EntityName:    "lone star holdings llc",
		Date:          "2021-06-04",
	})

	res, err := Run(context.Background(), existing, options(root))
	require.NoError(t, err)

	r := res.Report
	assert.Equal(t, 5, r.SourcesScanned)
	assert.Equal(t, 7, r.CandidatesFound)
	assert.Equal(t, 1, r.SkippedDuplicates)
	assert.Equal(t, 6, r.NewViolations)
	assert.Equal(t, 1, r.SourceErrors)
	assert.Zero(t, r.Timeouts)
	assert.Equal(t, 2, r.BySource["tax_dump"])
	assert.Equal(t, 2, r.BySource["report"])
	assert.Equal(t, 1, r.BySource["license_search"])
	assert.Equal(t, 2, r.BySource["license_verification"])

	assert.Equal(t, 6, res.Found.Len())
	assert.Equal(t, 1, existing.Len(), "existing corpus is read only")

	counts := res.Found.Counts()
	assert.Equal(t, 4, counts[records.CategoryLicensingViolations])
	assert.Equal(t, 1, counts[records.CategoryForfeitedEntities])
	assert.Equal(t, 1, counts[records.CategoryFilingViolations])

	for _, e := range res.Found.IterAll() {
		assert.JSONEq(t, `"2025-03-01T12:00:00Z"`, string(e.Violation.Extra["discovered_at"]))
	}
}

func TestRun_NarrativeDuplicateSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "reports/2024_VIOLATION_notes.md", "Acme LLC recorded a tax forfeiture on 2023-06-01.\n")
	existing := existingCorpus(&records.Violation{
		ViolationType: "tax forfeiture",
		EntityName:    "Acme LLC",
		Date:          "2023-06-01",
	})

	res, err := Run(context.Background(), existing, options(root))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.CandidatesFound)
	assert.Equal(t, 1, res.Report.SkippedDuplicates)
	assert.Zero(t, res.Report.NewViolations)
	assert.Zero(t, res.Found.Len())
}

func TestRun_SecondPassFindsNothingNew(t *testing.T) {
	root := sourceTree(t)
	existing := existingCorpus()

	first, err := Run(context.Background(), existing, options(root))
	require.NoError(t, err)
	require.Positive(t, first.Report.NewViolations)
	existing.Merge(first.Found)

	second, err := Run(context.Background(), existing, options(root))
	require.NoError(t, err)
	assert.Zero(t, second.Report.NewViolations)
	assert.Equal(t, second.Report.CandidatesFound, second.Report.SkippedDuplicates)
}

func TestRun_Deterministic(t *testing.T) {
	root := sourceTree(t)
	a, err := Run(context.Background(), existingCorpus(), options(root))
	require.NoError(t, err)
	b, err := Run(context.Background(), existingCorpus(), options(root))
	require.NoError(t, err)
	assert.Equal(t, a.Found.Document(), b.Found.Document())
}

func TestRun_WithML(t *testing.T) {
	opts := &Options{
		Extractors: []Extractor{},
		ML:         &MLDiscovery{Store: mlStore(t), Embedder: axisEmbedder{}, Logger: quietLogger()},
		Logger:     quietLogger(),
		Now:        fixedNow,
	}
	existing := existingCorpus(&records.Violation{ViolationType: "Tax Forfeiture", EntityName: "Known Co"})

	res, err := Run(context.Background(), existing, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.SourcesScanned)
	assert.Equal(t, 1, res.Report.NewViolations)
	assert.Equal(t, 1, res.Found.Counts()[records.CategoryOtherViolations])
}

// blockingExtractor never finishes before its context.
type blockingExtractor struct{}

func (blockingExtractor) Kind() string { return "blocking" }
func (blockingExtractor) Glob() string { return "raw/*.txt" }
func (blockingExtractor) Extract(ctx context.Context, _ Source) ([]*records.Violation, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRun_JobTimeout(t *testing.T) {
	root := sourceTree(t)
	opts := options(root)
	opts.Extractors = []Extractor{blockingExtractor{}, &TaxDumpExtractor{}}
	opts.JobTimeout = 20 * time.Millisecond

	res, err := Run(context.Background(), existingCorpus(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.Timeouts)
	assert.Equal(t, 2, res.Report.NewViolations)
}

func TestRun_Errors(t *testing.T) {
	_, err := Run(context.Background(), nil, options(filepath.Join(t.TempDir(), "missing")))
	assert.ErrorIs(t, err, ErrSourceUnreadable)

	opts := options(sourceTree(t))
	opts.Extractors = []Extractor{&TaxDumpExtractor{Pattern: "raw/[.txt"}}
	_, err = Run(context.Background(), nil, opts)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, nil, options(sourceTree(t)))
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Watch
// =============================================================================

func TestWatch_TriggersOnChange(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, root, &WatchOptions{Debounce: 20 * time.Millisecond, Logger: quietLogger()},
			func(context.Context) error {
				select {
				case fired <- struct{}{}:
				default:
				}
				return nil
			})
	}()

	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(5 * time.Second)
	for n := 0; ; n++ {
		select {
		case <-fired:
			cancel()
			assert.NoError(t, <-done)
			return
		case <-tick.C:
			writeFile(t, root, "raw/new.txt", strings.Repeat("x", n+1))
		case <-deadline:
			t.Fatal("watch did not fire")
		}
	}
}
