// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report renders research reports as Markdown, JSON, YAML, CSL-YAML,
// or BibTeX and saves them to disk.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/deep-research/internal/citation"
	"github.com/pdiddy/deep-research/internal/reflection"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Markdown renders r as a Markdown document.
func Markdown(r *types.ResearchReport) string {
	var b strings.Builder
	refs := referenceNumbers(r.Citations)

	fmt.Fprintf(&b, "# Research Report: %s\n\n", r.Question)
	fmt.Fprintf(&b, "_%s research, generated %s, session `%s`_\n\n",
		titleCase(string(r.Mode)), r.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"), r.SessionID)

	b.WriteString("## Executive Summary\n\n")
	b.WriteString(strings.TrimSpace(r.Summary))
	b.WriteString("\n\n")

	b.WriteString("## Key Findings\n\n")
	if len(r.Findings) == 0 {
		b.WriteString("No findings.\n\n")
	}
	for i, f := range r.Findings {
		fmt.Fprintf(&b, "%d. %s%s  \n", i+1, f.Claim, refMarks(f.SourceIDs, refs))
		fmt.Fprintf(&b, "   _Confidence %.2f", f.Confidence)
		if len(f.Tags) > 0 {
			fmt.Fprintf(&b, "; %s", strings.Join(f.Tags, ", "))
		}
		b.WriteString("_\n")
	}
	if len(r.Findings) > 0 {
		b.WriteString("\n")
	}

	if len(r.Conflicts) > 0 {
		b.WriteString("## Conflicting Evidence\n\n")
		claims := make(map[string]string, len(r.Findings))
		for _, f := range r.Findings {
			claims[f.ID] = f.Claim
		}
		for _, c := range r.Conflicts {
			subject := c.Subject
			if subject == "" {
				subject = "unspecified subject"
			}
			fmt.Fprintf(&b, "- **%s** (%s)\n", subject, strings.ReplaceAll(string(c.Category), "_", " "))
			fmt.Fprintf(&b, "  - %s\n", claims[c.FindingIDs[0]])
			fmt.Fprintf(&b, "  - %s\n", claims[c.FindingIDs[1]])
			fmt.Fprintf(&b, "  - _%s_\n", reflection.Resolution(c.Category))
		}
		b.WriteString("\n")
	}

	if len(r.Caveats) > 0 {
		b.WriteString("## Coverage Caveats\n\n")
		for _, c := range r.Caveats {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Sources and Citations\n\n")
	if len(r.Citations) == 0 {
		b.WriteString("No citable sources.\n\n")
	} else {
		for i, c := range r.Citations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, c.Text)
		}
		fmt.Fprintf(&b, "\n_%d sources retrieved, %d cited, %s style._\n\n", len(r.Sources), len(r.Citations), r.Citations[0].Style)
		if mix := sourceMix(r.Sources); mix != "" {
			fmt.Fprintf(&b, "Source types: %s.\n\n", mix)
		}
	}

	writeMethodology(&b, r)
	writeExecution(&b, r.Execution)
	return b.String()
}

// sourceMix counts sources per type, e.g. "government 1, commercial 2".
func sourceMix(sources []types.SourceRecord) string {
	counts := make(map[types.SourceType]int)
	for _, src := range sources {
		t := src.Type
		if t == "" {
			t = types.SourceTypeForURL(src.URL)
		}
		counts[t]++
	}
	var parts []string
	for _, t := range types.SourceTypes {
		if n := counts[t]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", t, n))
		}
	}
	return strings.Join(parts, ", ")
}

func writeMethodology(b *strings.Builder, r *types.ResearchReport) {
	c := r.Context
	b.WriteString("## Research Methodology\n\n")
	if c.ClarifiedQuestion != "" && c.ClarifiedQuestion != r.Question {
		fmt.Fprintf(b, "- Clarified question: %s\n", c.ClarifiedQuestion)
	}
	if c.Subject != "" {
		fmt.Fprintf(b, "- Subject: %s\n", c.Subject)
	}
	fmt.Fprintf(b, "- Scope: %s; timeframe: %s\n", orDash(c.Scope), orDash(c.Timeframe))
	fmt.Fprintf(b, "- Depth: %s; expertise: %s\n", orDash(string(c.Depth)), orDash(string(c.Expertise)))
	if c.Defaulted {
		b.WriteString("- Unspecified details were filled with defaults.\n")
	}
	for _, qa := range c.FollowUps {
		fmt.Fprintf(b, "- Q: %s A: %s\n", qa.Question, qa.Answer)
	}
	b.WriteString("\n| Task | Query | Status | Sources | Findings |\n|---|---|---|---|---|\n")
	for _, t := range r.Tasks {
		status := string(t.Status)
		if t.Result.Degraded {
			status += " (fallback)"
		}
		fmt.Fprintf(b, "| %s | %s | %s | %d | %d |\n",
			cell(t.Facet), cell(t.Query), status, len(t.Result.SourceIDs), len(t.Result.FindingIDs))
	}
	b.WriteString("\n")
}

func writeExecution(b *strings.Builder, e types.ExecutionSummary) {
	b.WriteString("## Execution Summary\n\n")
	fmt.Fprintf(b, "%d agent operations, %.0f%% successful, %d phase handoffs, %s total.\n\n",
		e.Operations, e.SuccessRate*100, e.Handoffs, e.Duration.Round(time.Millisecond))
	if len(e.Agents) == 0 {
		return
	}
	b.WriteString("| Agent | Calls | Successes | Avg duration |\n|---|---|---|---|\n")
	kinds := make([]types.AgentKind, 0, len(e.Agents))
	for k := range e.Agents {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return agentOrder(kinds[i]) < agentOrder(kinds[j]) })
	for _, k := range kinds {
		st := e.Agents[k]
		fmt.Fprintf(b, "| %s | %d | %d | %s |\n", k, st.Calls, st.Successes, st.AverageDuration.Round(time.Millisecond))
	}
	b.WriteString("\n")
}

// referenceNumbers maps each cited source ID to its 1-based position in
// the bibliography.
func referenceNumbers(citations []types.Citation) map[string]int {
	refs := make(map[string]int, len(citations))
	for i, c := range citations {
		refs[c.SourceID] = i + 1
	}
	return refs
}

func refMarks(ids []string, refs map[string]int) string {
	var nums []int
	for _, id := range ids {
		if n, ok := refs[id]; ok {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	var b strings.Builder
	for _, n := range nums {
		fmt.Fprintf(&b, " [%d]", n)
	}
	return b.String()
}

func agentOrder(k types.AgentKind) int {
	for i, a := range types.AllAgents {
		if a == k {
			return i
		}
	}
	return len(types.AllAgents)
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Restyle returns a copy of r with its citations reformatted in style.
func Restyle(r *types.ResearchReport, style types.CitationStyle) (*types.ResearchReport, error) {
	out := *r
	out.Citations = make([]types.Citation, 0, len(r.Citations))
	for _, c := range r.Citations {
		src, ok := r.Source(c.SourceID)
		if !ok {
			return nil, fmt.Errorf("citation references unknown source %s", c.SourceID)
		}
		nc, err := citation.Format(src, style)
		if err != nil {
			return nil, err
		}
		out.Citations = append(out.Citations, nc)
	}
	return &out, nil
}

// CitedSources returns the sources referenced by r's citations, in
// bibliography order.
func CitedSources(r *types.ResearchReport) []types.SourceRecord {
	var out []types.SourceRecord
	for _, c := range r.Citations {
		if src, ok := r.Source(c.SourceID); ok {
			out = append(out, src)
		}
	}
	return out
}
