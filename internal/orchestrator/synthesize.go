// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/citation"
	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/pkg/types"
)

// synthesis is everything the report needs beyond the session itself.
type synthesis struct {
	findings  []types.Finding
	conflicts []types.Conflict
	sources   []types.SourceRecord
	citations []types.Citation
}

// synthesize reconciles findings across tasks, checks that every finding
// resolves to a retrieved source, and formats citations for the cited
// sources. Citations are formatted only after all findings exist.
func (o *Orchestrator) synthesize(ctx context.Context, s *session) (synthesis, error) {
	if err := ctx.Err(); err != nil {
		return synthesis{}, err
	}
	findings, records := s.gathered()

	start := o.now()
	rec := o.agents.Reflection.Reconcile(findings, records)
	s.recordCall(o.agents.Reflection.Name(), o.now().Sub(start), true)
	s.remapFindings(rec.Merged, len(rec.Findings))

	sort.SliceStable(rec.Findings, func(i, j int) bool {
		return rec.Findings[i].Confidence > rec.Findings[j].Confidence
	})

	byID := make(map[string]types.SourceRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	cited := make(map[string]bool)
	for _, f := range rec.Findings {
		for _, id := range f.SourceIDs {
			if _, ok := byID[id]; !ok {
				return synthesis{}, fmt.Errorf("finding %s references unknown source %s", f.ID, id)
			}
			cited[id] = true
		}
	}
	var citedRecords []types.SourceRecord
	for _, r := range records {
		if cited[r.ID] {
			citedRecords = append(citedRecords, r)
		}
	}

	citations, err := call(ctx, o, s, o.agents.Citations, citation.Input{Records: citedRecords, Style: s.style})
	if err != nil {
		return synthesis{}, fmt.Errorf("formatting citations: %w", err)
	}

	s.emit(fmt.Sprintf("%d findings, %d conflicts, %d citations", len(rec.Findings), len(rec.Conflicts), len(citations)))
	return synthesis{
		findings:  rec.Findings,
		conflicts: rec.Conflicts,
		sources:   records,
		citations: citations,
	}, nil
}

// report assembles the final report. It fails with ErrNoFindings when the
// session gathered nothing.
func (o *Orchestrator) report(ctx context.Context, s *session, syn synthesis) (*types.ResearchReport, error) {
	if len(syn.findings) == 0 {
		return nil, ErrNoFindings
	}
	tasks := s.snapshotTasks()

	summary := fallbackSummary(s.question, syn, tasks)
	if o.model != nil {
		text, err := o.summarize(ctx, s, syn)
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			o.log.Warn("model summary failed, using generated summary", zap.String("session", s.id), zap.Error(err))
		default:
			summary = text
		}
	}

	return &types.ResearchReport{
		SessionID:   s.id,
		Mode:        s.mode,
		Question:    s.question,
		Context:     s.context,
		Tasks:       tasks,
		Sources:     syn.sources,
		Findings:    syn.findings,
		Conflicts:   syn.conflicts,
		Citations:   syn.citations,
		Summary:     summary,
		Caveats:     caveats(tasks, syn),
		GeneratedAt: o.now().UTC(),
	}, nil
}

// caveats lists what the report could not fully cover.
func caveats(tasks []types.ResearchTask, syn synthesis) []string {
	var out []string
	for _, t := range tasks {
		switch {
		case t.Status == types.TaskFailed:
			out = append(out, fmt.Sprintf("Sub-topic %q could not be researched: %s.", t.Facet, t.Result.Error))
		case t.Result.Degraded:
			out = append(out, fmt.Sprintf("Sub-topic %q relied on fallback data instead of live search results.", t.Facet))
		}
	}

	fallback, disputed := 0, 0
	for _, f := range syn.findings {
		if f.HasTag(types.TagFallbackData) {
			fallback++
		}
		if f.Disputed {
			disputed++
		}
	}
	if fallback > 0 {
		out = append(out, fmt.Sprintf("%d of %d findings are based on fallback data and carry low confidence.", fallback, len(syn.findings)))
	}
	if disputed > 0 {
		out = append(out, fmt.Sprintf("%d findings are disputed; conflicting claims are presented side by side.", disputed))
	}
	if len(syn.citations) == 0 {
		out = append(out, "No citable sources were retrieved.")
	}
	return out
}

// fallbackSummary is the summary used without a model.
func fallbackSummary(question string, syn synthesis, tasks []types.ResearchTask) string {
	completed := 0
	for _, t := range tasks {
		if t.Status == types.TaskCompleted {
			completed++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Research on %q produced %d findings from %d sources across %d of %d research tasks.",
		question, len(syn.findings), len(syn.sources), completed, len(tasks))
	top := syn.findings
	if len(top) > 3 {
		top = top[:3]
	}
	if len(top) > 0 {
		b.WriteString(" Key points:")
		for _, f := range top {
			fmt.Fprintf(&b, " %s", ensurePeriod(f.Claim))
		}
	}
	if len(syn.conflicts) > 0 {
		fmt.Fprintf(&b, " Sources disagree on %d point(s); both sides are reported.", len(syn.conflicts))
	}
	return b.String()
}

func ensurePeriod(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?") {
		return s
	}
	return s + "."
}

var summaryPromptTmpl = template.Must(template.New("summary").Parse(`Write an executive summary of three to five sentences answering the research question from the findings below.

Rules:
- Use only the findings; do not add facts.
- When findings are marked DISPUTED, present both sides.
- Mention low confidence where most findings are low confidence.
- Plain prose, no headings or lists.

Research question: {{.Question}}

Findings:
{{range .Findings}}- {{.Claim}} (confidence {{printf "%.2f" .Confidence}}{{if .Disputed}}, DISPUTED{{end}})
{{end}}`))

// maxSummaryFindings bounds the findings sent to the model.
const maxSummaryFindings = 12

func (o *Orchestrator) summarize(ctx context.Context, s *session, syn synthesis) (string, error) {
	findings := syn.findings
	if len(findings) > maxSummaryFindings {
		findings = findings[:maxSummaryFindings]
	}
	question := s.context.ClarifiedQuestion
	if question == "" {
		question = s.question
	}
	var buf bytes.Buffer
	if err := summaryPromptTmpl.Execute(&buf, map[string]any{
		"Question": question,
		"Findings": findings,
	}); err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	text, err := o.model.Generate(ctx, llm.Request{Prompt: buf.String()})
	if err != nil {
		return "", err
	}
	if text = strings.TrimSpace(text); text == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}
