// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/deep-research/pkg/types"
)

func sampleReport() *types.ResearchReport {
	retrieved := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	sources := []types.SourceRecord{
		{ID: "aaaaaaaaaaaa", URL: "https://www.energy.gov/solar", Title: "Solar Energy Basics", Quality: types.QualityHigh, PublishedDate: "2024-03-05", RetrievedAt: retrieved},
		{ID: "bbbbbbbbbbbb", URL: "https://example.com/wind", Title: "Wind | Power", Quality: types.QualityMedium, RetrievedAt: retrieved},
		{ID: "cccccccccccc", URL: "https://example.org/unused", Title: "Unused", Quality: types.QualityMedium, RetrievedAt: retrieved},
	}
	return &types.ResearchReport{
		SessionID: "sess-1",
		Mode:      types.ModeComprehensive,
		Question:  "How do renewables affect emissions?",
		Context: types.ClarifiedContext{
			OriginalQuestion:  "How do renewables affect emissions?",
			ClarifiedQuestion: "How do renewables affect emissions? (timeframe: since 2015)",
			Subject:           "renewables emissions",
			Scope:             "general",
			Timeframe:         "since 2015",
			Depth:             types.DepthStandard,
			Expertise:         types.ExpertiseIntermediate,
			Defaulted:         true,
		},
		Tasks: []types.ResearchTask{
			{ID: "t1", Facet: "overview", Query: "renewables emissions overview", Status: types.TaskCompleted,
				Result: types.TaskResult{SourceIDs: []string{"aaaaaaaaaaaa"}, FindingIDs: []string{"f1"}}},
			{ID: "t2", Facet: "evidence", Query: "renewables a|b", Status: types.TaskCompleted,
				Result: types.TaskResult{SourceIDs: []string{"bbbbbbbbbbbb"}, FindingIDs: []string{"f2"}, Degraded: true}},
		},
		Sources: sources,
		Findings: []types.Finding{
			{ID: "f1", TaskID: "t1", Claim: "Solar increases grid emissions.", SourceIDs: []string{"aaaaaaaaaaaa"}, Confidence: 0.5, Disputed: true, Tags: []string{types.TagDisputed}},
			{ID: "f2", TaskID: "t2", Claim: "Solar decreases grid emissions.", SourceIDs: []string{"bbbbbbbbbbbb", "aaaaaaaaaaaa"}, Confidence: 0.3, Disputed: true, Tags: []string{types.TagDisputed}},
		},
		Conflicts: []types.Conflict{{FindingIDs: [2]string{"f1", "f2"}, Subject: "solar grid emissions", Category: types.ConflictDataQuality}},
		Citations: []types.Citation{
			{Text: "energy.gov. (2024). Solar Energy Basics. Retrieved January 15, 2026, from https://www.energy.gov/solar", Style: types.StyleAPA, SourceID: "aaaaaaaaaaaa"},
			{Text: "example.com. (n.d.). Wind | Power. Retrieved January 15, 2026, from https://example.com/wind", Style: types.StyleAPA, SourceID: "bbbbbbbbbbbb"},
		},
		Summary: "Sources disagree about solar and emissions.",
		Caveats: []string{"2 findings are disputed; conflicting claims are presented side by side."},
		Execution: types.ExecutionSummary{
			Operations:  4,
			SuccessRate: 0.75,
			Handoffs:    5,
			Agents: map[types.AgentKind]types.AgentStats{
				types.AgentSearch:       {Calls: 2, Successes: 1, TotalDuration: 2 * time.Second, AverageDuration: time.Second},
				types.AgentRequirements: {Calls: 1, Successes: 1},
				types.AgentCitations:    {Calls: 1, Successes: 1},
			},
			Duration: 3 * time.Second,
		},
		GeneratedAt: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

func TestMarkdown_Sections(t *testing.T) {
	md := Markdown(sampleReport())

	sections := []string{
		"# Research Report: How do renewables affect emissions?",
		"## Executive Summary",
		"## Key Findings",
		"## Conflicting Evidence",
		"## Coverage Caveats",
		"## Sources and Citations",
		"## Research Methodology",
		"## Execution Summary",
	}
	last := -1
	for _, s := range sections {
		idx := strings.Index(md, s)
		require.GreaterOrEqual(t, idx, 0, "missing %q", s)
		assert.Greater(t, idx, last, "%q out of order", s)
		last = idx
	}

	assert.Contains(t, md, "1. Solar increases grid emissions. [1]")
	assert.Contains(t, md, "2. Solar decreases grid emissions. [1] [2]")
	assert.Contains(t, md, "_Confidence 0.30; disputed_")
	assert.Contains(t, md, "- **solar grid emissions** (data quality)")
	assert.Contains(t, md, "Assess source reliability")
	assert.Contains(t, md, "3 sources retrieved, 2 cited, APA style.")
	assert.Contains(t, md, "Source types: government 1, organization 1, commercial 1.")
	assert.Contains(t, md, "- Clarified question: How do renewables affect emissions? (timeframe: since 2015)")
	assert.Contains(t, md, `| evidence | renewables a\|b | completed (fallback) | 1 | 1 |`)
	assert.Contains(t, md, "4 agent operations, 75% successful, 5 phase handoffs, 3s total.")

	req := strings.Index(md, "| requirements |")
	search := strings.Index(md, "| search |")
	cit := strings.Index(md, "| citations |")
	assert.True(t, req < search && search < cit, "agents in pipeline order")
}

func TestMarkdown_OmitsEmptyOptionalSections(t *testing.T) {
	r := sampleReport()
	r.Conflicts = nil
	r.Caveats = nil
	r.Citations = nil

	md := Markdown(r)
	assert.NotContains(t, md, "## Conflicting Evidence")
	assert.NotContains(t, md, "## Coverage Caveats")
	assert.Contains(t, md, "No citable sources.")
	assert.Contains(t, md, "1. Solar increases grid emissions.  \n")
}

func TestRestyle(t *testing.T) {
	r := sampleReport()
	mla, err := Restyle(r, types.StyleMLA)
	require.NoError(t, err)

	require.Len(t, mla.Citations, 2)
	assert.Equal(t, types.StyleMLA, mla.Citations[0].Style)
	assert.Equal(t, `"Solar Energy Basics." energy.gov, 5 Mar. 2024, https://www.energy.gov/solar. Accessed 15 Jan. 2026.`, mla.Citations[0].Text)
	assert.Equal(t, "bbbbbbbbbbbb", mla.Citations[1].SourceID)
	assert.Equal(t, types.StyleAPA, r.Citations[0].Style, "original is unchanged")

	_, err = Restyle(r, "chicago")
	assert.Error(t, err)

	r.Citations[0].SourceID = "missing"
	_, err = Restyle(r, types.StyleAPA)
	assert.ErrorContains(t, err, "unknown source")
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		err  bool
	}{
		{"", FormatMarkdown, false},
		{"MD", FormatMarkdown, false},
		{"json", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"csl", FormatCSL, false},
		{"bib", FormatBibTeX, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode_CitedSourcesOnly(t *testing.T) {
	var bib bytes.Buffer
	require.NoError(t, Encode(&bib, sampleReport(), FormatBibTeX))
	assert.Equal(t, 2, strings.Count(bib.String(), "@misc{"))
	assert.NotContains(t, bib.String(), "Unused")

	var csl bytes.Buffer
	require.NoError(t, Encode(&csl, sampleReport(), FormatCSL))
	assert.Contains(t, csl.String(), "Solar Energy Basics")
	assert.NotContains(t, csl.String(), "Unused")
}

func TestWriteReadFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := sampleReport()

	for _, name := range []string{"out/report.yaml", "out/report.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, WriteFile(path, want))

			got, err := ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, want.SessionID, got.SessionID)
			assert.Equal(t, want.Findings, got.Findings)
			assert.Equal(t, want.Conflicts, got.Conflicts)
			assert.Equal(t, want.Citations, got.Citations)
			assert.Equal(t, want.Execution.Agents, got.Execution.Agents)
			assert.True(t, want.GeneratedAt.Equal(got.GeneratedAt))
		})
	}
}

func TestReadFile_RejectsMarkdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, WriteFile(path, sampleReport()))
	_, err := ReadFile(path)
	assert.Error(t, err)
}
