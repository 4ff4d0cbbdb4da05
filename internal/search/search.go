// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search issues web search queries, normalizes provider results into
// source records, and degrades to cached or offline data when the live
// provider is missing or rate limited.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/ratelimit"
	"github.com/pdiddy/deep-research/pkg/types"
)

// SourceSaver persists live results for later fallback lookups. *store.Store
// implements it.
type SourceSaver interface {
	Save(ctx context.Context, query string, records []types.SourceRecord) error
}

// Output is the result of one search call.
type Output struct {
	Query    string
	Records  []types.SourceRecord
	Answer   string
	Provider string

	// DupsRemoved counts results merged during normalization.
	DupsRemoved int

	// Degraded is set when Records came from the fallback provider.
	Degraded bool

	// Err is the provider failure marker. It wraps ratelimit.ErrRateLimitExceeded
	// when quota retries were exhausted (Records then hold fallback data) or
	// ErrProviderUnavailable for other provider failures (Records empty).
	Err error
}

// Failed reports whether the provider failed, even if fallback records were
// returned.
func (o Output) Failed() bool { return o.Err != nil }

func (o Output) clone() Output {
	o.Records = append([]types.SourceRecord(nil), o.Records...)
	return o
}

// Agent is the search step of the research pipeline.
type Agent struct {
	primary  Provider
	fallback Provider
	limiter  *ratelimit.Limiter
	cache    *Cache
	saver    SourceSaver
	cfg      types.SearchConfig
	log      *zap.Logger
	now      func() time.Time
}

// Option configures an Agent.
type Option func(*Agent)

// WithPrimary sets the live provider. Without one every query goes to the fallback.
func WithPrimary(p Provider) Option { return func(a *Agent) { a.primary = p } }

// WithFallback replaces the default placeholder-only fallback provider.
func WithFallback(p Provider) Option { return func(a *Agent) { a.fallback = p } }

// WithCache enables the in-memory result cache.
func WithCache(c *Cache) Option { return func(a *Agent) { a.cache = c } }

// WithSaver persists successful live results.
func WithSaver(s SourceSaver) Option { return func(a *Agent) { a.saver = s } }

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(a *Agent) {
		if log != nil {
			a.log = log
		}
	}
}

// WithClock overrides the clock used for RetrievedAt.
func WithClock(now func() time.Time) Option { return func(a *Agent) { a.now = now } }

// NewAgent creates a search agent. The limiter is required and is shared
// with every other component calling external APIs.
func NewAgent(cfg types.SearchConfig, limiter *ratelimit.Limiter, opts ...Option) *Agent {
	a := &Agent{
		limiter: limiter,
		cfg:     cfg,
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.fallback == nil {
		a.fallback = NewFallback(nil, nil, a.log)
	}
	return a
}

// Name returns the agent kind.
func (a *Agent) Name() types.AgentKind { return types.AgentSearch }

// Execute runs Search. It satisfies the common agent capability.
func (a *Agent) Execute(ctx context.Context, query string) (Output, error) {
	return a.Search(ctx, query)
}

// HasLiveProvider reports whether a live search provider is configured.
func (a *Agent) HasLiveProvider() bool { return a.primary != nil }

// Search runs one query. The returned error is non-nil only for an empty
// query or when ctx is done; provider failures are reported in Output.Err.
func (a *Agent) Search(ctx context.Context, query string) (Output, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Output{}, ErrEmptyQuery
	}

	if out, ok := a.cache.Get(query); ok {
		a.log.Debug("search cache hit", zap.String("query", query))
		return out, nil
	}

	if a.primary == nil {
		out, err := a.runFallback(ctx, query)
		if err != nil {
			return Output{Query: query}, err
		}
		return out, nil
	}

	name := a.primary.Name()
	resp, err := ratelimit.Call(ctx, a.limiter, name, func(ctx context.Context) (Response, error) {
		return a.primary.Search(ctx, query, a.cfg.MaxResults)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Output{Query: query}, ctxErr
		}
		if errors.Is(err, ratelimit.ErrRateLimitExceeded) {
			a.log.Warn("search rate limited, using fallback data", zap.String("query", query), zap.Error(err))
			out, fbErr := a.runFallback(ctx, query)
			if fbErr != nil {
				return Output{Query: query}, fbErr
			}
			out.Err = err
			return out, nil
		}
		a.log.Warn("search provider failed", zap.String("provider", name), zap.String("query", query), zap.Error(err))
		return Output{
			Query:    query,
			Provider: name,
			Err:      fmt.Errorf("%s: %w: %w", name, ErrProviderUnavailable, err),
		}, nil
	}

	records, removed := a.normalize(resp.Results, name, false)
	out := Output{
		Query:       query,
		Records:     records,
		Answer:      resp.Answer,
		Provider:    name,
		DupsRemoved: removed,
	}

	if len(records) > 0 {
		a.cache.Put(query, out)
		if a.saver != nil {
			if err := a.saver.Save(ctx, query, records); err != nil {
				a.log.Warn("saving sources to cache failed", zap.Error(err))
			}
		}
	}
	return out, nil
}

func (a *Agent) runFallback(ctx context.Context, query string) (Output, error) {
	resp, err := a.fallback.Search(ctx, query, a.cfg.MaxResults)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Output{}, ctxErr
		}
		return Output{
			Query:    query,
			Provider: a.fallback.Name(),
			Degraded: true,
			Err:      fmt.Errorf("%s: %w: %w", a.fallback.Name(), ErrProviderUnavailable, err),
		}, nil
	}
	records, removed := a.normalize(resp.Results, a.fallback.Name(), true)
	return Output{
		Query:       query,
		Records:     records,
		Answer:      resp.Answer,
		Provider:    a.fallback.Name(),
		DupsRemoved: removed,
		Degraded:    true,
	}, nil
}

// normalize turns provider results into source records: it drops results
// without a URL, merges duplicates by normalized URL or title, truncates
// snippets, and assigns quality, ID and retrieval time.
func (a *Agent) normalize(results []RawResult, provider string, fallback bool) ([]types.SourceRecord, int) {
	retrieved := a.now().UTC()
	seen := make(map[string]int)
	var records []types.SourceRecord
	removed := 0

	for _, r := range results {
		u := strings.TrimSpace(r.URL)
		if u == "" {
			continue
		}
		rec := types.SourceRecord{
			ID:            types.SourceID(u),
			URL:           u,
			Title:         collapseSpace(r.Title),
			Snippet:       truncate(collapseSpace(r.Content), a.snippetLength()),
			Quality:       types.QualityForURL(u),
			Type:          types.SourceTypeForURL(u),
			Provider:      provider,
			Score:         r.Score,
			PublishedDate: strings.TrimSpace(r.PublishedDate),
			RetrievedAt:   retrieved,
			Fallback:      fallback,
		}
		if r.Provider != "" {
			rec.Provider = r.Provider
		}
		if rec.Title == "" {
			rec.Title = types.SiteName(u)
		}

		urlKey := "url:" + types.NormalizeURL(u)
		titleKey := "title:" + normalizeTitle(rec.Title)
		if idx, ok := seen[urlKey]; ok {
			mergeInto(&records[idx], rec)
			removed++
			continue
		}
		if titleKey != "title:" {
			if idx, ok := seen[titleKey]; ok {
				mergeInto(&records[idx], rec)
				removed++
				continue
			}
		}

		idx := len(records)
		records = append(records, rec)
		seen[urlKey] = idx
		if titleKey != "title:" {
			seen[titleKey] = idx
		}
	}
	return records, removed
}

func (a *Agent) snippetLength() int {
	if a.cfg.SnippetLength > 0 {
		return a.cfg.SnippetLength
	}
	return 500
}

// mergeInto fills empty fields of dst from src and keeps the higher score.
func mergeInto(dst *types.SourceRecord, src types.SourceRecord) {
	if len(src.Snippet) > len(dst.Snippet) {
		dst.Snippet = src.Snippet
	}
	if dst.PublishedDate == "" {
		dst.PublishedDate = src.PublishedDate
	}
	if src.Score > dst.Score {
		dst.Score = src.Score
	}
}

// normalizeTitle returns a lowercased, punctuation-stripped version of the title.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate shortens s to at most max runes, ending with "..." when cut.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= len("...") {
		return string(runes[:max])
	}
	return strings.TrimSpace(string(runes[:max-3])) + "..."
}

// FormatTable writes records as a human-readable table to w.
func FormatTable(out Output, w io.Writer) {
	if len(out.Records) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-60s  %-7s  %-6s  %s\n", "Rank", "Title", "Quality", "Score", "URL")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for i, r := range out.Records {
		fmt.Fprintf(w, "%-4d  %-60s  %-7s  %-6.2f  %s\n",
			i+1, truncate(r.Title, 60), r.Quality, r.Score, r.URL)
	}

	fmt.Fprintf(w, "\n%d results from %s", len(out.Records), out.Provider)
	if out.DupsRemoved > 0 {
		fmt.Fprintf(w, " (%d duplicates removed)", out.DupsRemoved)
	}
	if out.Degraded {
		fmt.Fprint(w, " [fallback data]")
	}
	fmt.Fprintln(w)
}
