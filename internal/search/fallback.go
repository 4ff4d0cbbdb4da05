// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Provider names recorded on fallback sources.
const (
	ProviderCache       = "cache"
	ProviderModel       = "llm"
	ProviderPlaceholder = "placeholder"
)

// SourceLookup finds previously cached sources for a query. *store.Store
// implements it.
type SourceLookup interface {
	Lookup(ctx context.Context, query string, limit int) ([]types.SourceRecord, error)
}

// backgroundPromptTmpl asks the model for background facts when no live
// search is possible.
var backgroundPromptTmpl = template.Must(template.New("background").Parse(`Live web search is unavailable. Using only well-established background knowledge, write {{.Sentences}} short factual sentences that help answer the research query below.

Rules:
- One claim per sentence, plain prose, no lists or headings.
- Prefer widely accepted facts; do not invent statistics, dates, or quotes.
- If you do not know, write fewer sentences.

Research query:
{{.Query}}
`))

// Fallback answers queries without a live search provider. It tries, in
// order: sources cached by earlier live searches, background knowledge from
// the model, and finally a deterministic placeholder source. It never fails
// except on context cancellation.
type Fallback struct {
	lookup SourceLookup
	model  llm.Model
	log    *zap.Logger
}

// NewFallback creates a fallback provider. lookup and model may be nil.
func NewFallback(lookup SourceLookup, model llm.Model, log *zap.Logger) *Fallback {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fallback{lookup: lookup, model: model, log: log}
}

// Name returns "fallback".
func (f *Fallback) Name() string { return "fallback" }

// Search returns the best available offline results for query.
func (f *Fallback) Search(ctx context.Context, query string, maxResults int) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	if f.lookup != nil {
		cached, err := f.lookup.Lookup(ctx, query, maxResults)
		if err != nil {
			f.log.Warn("source cache lookup failed", zap.String("query", query), zap.Error(err))
		}
		if len(cached) > 0 {
			f.log.Debug("fallback served from source cache", zap.String("query", query), zap.Int("sources", len(cached)))
			out := Response{}
			for _, r := range cached {
				out.Results = append(out.Results, RawResult{
					Title:         r.Title,
					URL:           r.URL,
					Content:       r.Snippet,
					Score:         r.Score,
					PublishedDate: r.PublishedDate,
					Provider:      ProviderCache,
				})
			}
			return out, nil
		}
	}

	if f.model != nil {
		text, err := f.background(ctx, query)
		if err == nil {
			return Response{Results: []RawResult{{
				Title:    "Background knowledge: " + query,
				URL:      modelSourceURL(query),
				Content:  text,
				Provider: ProviderModel,
			}}}, nil
		}
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		f.log.Warn("fallback background generation failed", zap.String("query", query), zap.Error(err))
	}

	return Response{Results: []RawResult{placeholder(query)}}, nil
}

func (f *Fallback) background(ctx context.Context, query string) (string, error) {
	var buf bytes.Buffer
	if err := backgroundPromptTmpl.Execute(&buf, struct {
		Query     string
		Sentences int
	}{Query: query, Sentences: 4}); err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return f.model.Generate(ctx, llm.Request{Prompt: buf.String()})
}

// modelSourceURL identifies model-generated background text as a source.
func modelSourceURL(query string) string {
	return "llm://background?q=" + url.QueryEscape(strings.TrimSpace(query))
}

// placeholder is the last-resort source: a pointer to a general reference
// search for the query.
func placeholder(query string) RawResult {
	q := strings.TrimSpace(query)
	return RawResult{
		Title: "Reference search: " + q,
		URL:   "https://en.wikipedia.org/wiki/Special:Search?search=" + url.QueryEscape(q),
		Content: fmt.Sprintf("Live search results were not available for %q. "+
			"General reference works on this topic should be consulted to verify any conclusions.", q),
		Provider: ProviderPlaceholder,
	}
}
