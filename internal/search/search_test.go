// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/internal/ratelimit"
	"github.com/pdiddy/deep-research/internal/store"
	"github.com/pdiddy/deep-research/pkg/types"
)

// stubProvider returns a fixed response or error and counts calls.
type stubProvider struct {
	name  string
	resp  Response
	err   error
	calls atomic.Int32
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Search(context.Context, string, int) (Response, error) {
	s.calls.Add(1)
	return s.resp, s.err
}

type memorySaver struct {
	saved map[string][]types.SourceRecord
}

func (m *memorySaver) Save(_ context.Context, q string, recs []types.SourceRecord) error {
	if m.saved == nil {
		m.saved = map[string][]types.SourceRecord{}
	}
	m.saved[q] = recs
	return nil
}

var fixedNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func testConfig() types.SearchConfig {
	cfg := types.DefaultConfig().Search
	cfg.SnippetLength = 80
	return cfg
}

func fastLimiter() *ratelimit.Limiter {
	return ratelimit.New(types.RateLimitConfig{MaxAttempts: 2, RetryDelay: time.Millisecond})
}

func TestSearch_EmptyQuery(t *testing.T) {
	a := NewAgent(testConfig(), fastLimiter())
	_, err := a.Search(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearch_NormalizesAndDedupes(t *testing.T) {
	primary := &stubProvider{name: "tavily", resp: Response{
		Answer: "Renewable energy comes from natural sources.",
		Results: []RawResult{
			{Title: "Renewable Energy  Explained", URL: "https://www.eia.gov/energyexplained/renewable-sources/", Content: "Renewable energy is energy from sources that are naturally replenishing.", Score: 0.9},
			{Title: "Renewable energy explained!", URL: "https://mirror.example.net/renewables", Content: "dup by title", Score: 0.95},
			{Title: "No URL", URL: "", Content: "dropped"},
			{Title: "What is renewable energy?", URL: "https://www.EIA.gov/energyexplained/renewable-sources", Content: "dup by url"},
			{Title: "", URL: "https://www.un.org/en/climatechange/what-is-renewable-energy", Content: strings.Repeat("long snippet ", 20)},
		},
	}}
	saver := &memorySaver{}
	a := NewAgent(testConfig(), fastLimiter(),
		WithPrimary(primary), WithSaver(saver), WithClock(func() time.Time { return fixedNow }),
		WithLogger(zaptest.NewLogger(t)))

	out, err := a.Search(context.Background(), "what is renewable energy")
	require.NoError(t, err)
	require.NoError(t, out.Err)

	assert.Equal(t, "tavily", out.Provider)
	assert.False(t, out.Degraded)
	assert.Equal(t, 2, out.DupsRemoved)
	assert.Equal(t, "Renewable energy comes from natural sources.", out.Answer)
	require.Len(t, out.Records, 2)

	first := out.Records[0]
	assert.Equal(t, "Renewable Energy Explained", first.Title)
	assert.Equal(t, types.QualityHigh, first.Quality)
	assert.Equal(t, types.SourceGovernment, first.Type)
	assert.Equal(t, 0.95, first.Score)
	assert.Equal(t, types.SourceID(first.URL), first.ID)
	assert.Equal(t, fixedNow, first.RetrievedAt)
	assert.False(t, first.Fallback)

	second := out.Records[1]
	assert.Equal(t, "un.org", second.Title)
	assert.Equal(t, types.QualityMedium, second.Quality)
	assert.Equal(t, types.SourceOrganization, second.Type)
	assert.True(t, strings.HasSuffix(second.Snippet, "..."))
	assert.LessOrEqual(t, len([]rune(second.Snippet)), 80)

	assert.Len(t, saver.saved["what is renewable energy"], 2)
}

func TestSearch_CacheHitSkipsProvider(t *testing.T) {
	primary := &stubProvider{name: "tavily", resp: Response{Results: []RawResult{
		{Title: "Solar", URL: "https://nrel.gov/solar", Content: "Solar power."},
	}}}
	a := NewAgent(testConfig(), fastLimiter(), WithPrimary(primary), WithCache(NewCache(8, time.Hour)))

	_, err := a.Search(context.Background(), "Solar power")
	require.NoError(t, err)
	out, err := a.Search(context.Background(), "  solar   POWER ")
	require.NoError(t, err)

	assert.Equal(t, int32(1), primary.calls.Load())
	require.Len(t, out.Records, 1)
	assert.Equal(t, "https://nrel.gov/solar", out.Records[0].URL)
}

func TestSearch_RateLimitDegradesToFallback(t *testing.T) {
	primary := &stubProvider{name: "tavily", err: &httputil.StatusError{StatusCode: http.StatusTooManyRequests}}
	a := NewAgent(testConfig(), fastLimiter(), WithPrimary(primary))

	out, err := a.Search(context.Background(), "wind turbines")
	require.NoError(t, err)

	assert.ErrorIs(t, out.Err, ratelimit.ErrRateLimitExceeded)
	assert.True(t, out.Degraded)
	assert.Equal(t, "fallback", out.Provider)
	require.Len(t, out.Records, 1)
	assert.True(t, out.Records[0].Fallback)
	assert.Equal(t, ProviderPlaceholder, out.Records[0].Provider)
	assert.Equal(t, int32(2), primary.calls.Load())
}

func TestSearch_ProviderFailure(t *testing.T) {
	primary := &stubProvider{name: "tavily", err: errors.New("connection refused")}
	a := NewAgent(testConfig(), fastLimiter(), WithPrimary(primary))

	out, err := a.Search(context.Background(), "wind turbines")
	require.NoError(t, err)
	assert.ErrorIs(t, out.Err, ErrProviderUnavailable)
	assert.NotErrorIs(t, out.Err, ratelimit.ErrRateLimitExceeded)
	assert.Empty(t, out.Records)
	assert.False(t, out.Degraded)
	assert.Equal(t, int32(1), primary.calls.Load())
}

func TestSearch_NoPrimaryUsesFallback(t *testing.T) {
	a := NewAgent(testConfig(), fastLimiter())
	assert.False(t, a.HasLiveProvider())

	out, err := a.Execute(context.Background(), "What is renewable energy?")
	require.NoError(t, err)
	assert.NoError(t, out.Err)
	assert.True(t, out.Degraded)
	require.NotEmpty(t, out.Records)
	for _, r := range out.Records {
		assert.True(t, r.Fallback)
	}
	assert.Equal(t, types.AgentSearch, a.Name())
}

func TestSearch_ContextCancelled(t *testing.T) {
	primary := &stubProvider{name: "tavily", err: context.Canceled}
	a := NewAgent(testConfig(), fastLimiter(), WithPrimary(primary))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Search(ctx, "anything")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFallback_Order(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(store.MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Save(ctx, "geothermal energy", []types.SourceRecord{{
		ID: types.SourceID("https://energy.gov/geo"), URL: "https://energy.gov/geo",
		Title: "Geothermal Basics", Snippet: "Geothermal energy is heat from the earth.",
		Quality: types.QualityHigh, RetrievedAt: fixedNow,
	}}))

	model := llm.ModelFunc(func(_ context.Context, req llm.Request) (string, error) {
		assert.Contains(t, req.Prompt, "tidal power")
		return "Tidal power uses the rise and fall of tides to generate electricity.", nil
	})
	failing := llm.ModelFunc(func(context.Context, llm.Request) (string, error) {
		return "", errors.New("model down")
	})

	t.Run("cached sources first", func(t *testing.T) {
		f := NewFallback(db, model, zaptest.NewLogger(t))
		resp, err := f.Search(ctx, "geothermal energy", 5)
		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, ProviderCache, resp.Results[0].Provider)
		assert.Equal(t, "https://energy.gov/geo", resp.Results[0].URL)
	})

	t.Run("model background next", func(t *testing.T) {
		f := NewFallback(db, model, nil)
		resp, err := f.Search(ctx, "tidal power", 5)
		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, ProviderModel, resp.Results[0].Provider)
		assert.True(t, strings.HasPrefix(resp.Results[0].URL, "llm://"))
		assert.Equal(t, types.QualityLow, types.QualityForURL(resp.Results[0].URL))
	})

	t.Run("placeholder last", func(t *testing.T) {
		f := NewFallback(nil, failing, nil)
		resp, err := f.Search(ctx, "tidal power", 5)
		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, ProviderPlaceholder, resp.Results[0].Provider)

		again, err := f.Search(ctx, "tidal power", 5)
		require.NoError(t, err)
		assert.Equal(t, resp, again)
	})
}

func TestTavily_Search(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tvly-key", req.APIKey)
		assert.Equal(t, "solar power", req.Query)
		assert.Equal(t, "advanced", req.SearchDepth)
		assert.Equal(t, 3, req.MaxResults)
		assert.True(t, req.IncludeAnswer)

		_, _ = w.Write([]byte(`{"answer":"Solar power converts sunlight.","results":[
			{"title":"Solar","url":"https://nrel.gov/solar","content":"Solar energy.","score":0.87,"published_date":"2024-05-01"}
		]}`))
	}))
	defer ts.Close()

	old := tavilyURL
	tavilyURL = ts.URL
	defer func() { tavilyURL = old }()

	tv := NewTavily("tvly-key", testConfig())
	resp, err := tv.Search(context.Background(), "solar power", 3)
	require.NoError(t, err)
	assert.Equal(t, "Solar power converts sunlight.", resp.Answer)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, RawResult{Title: "Solar", URL: "https://nrel.gov/solar", Content: "Solar energy.", Score: 0.87, PublishedDate: "2024-05-01"}, resp.Results[0])
}

func TestTavily_QuotaIsRetriedThroughAgent(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"title":"Wind","url":"https://energy.gov/wind","content":"Wind energy."}]}`))
	}))
	defer ts.Close()

	old := tavilyURL
	tavilyURL = ts.URL
	defer func() { tavilyURL = old }()

	a := NewAgent(testConfig(), fastLimiter(), WithPrimary(NewTavily("k", testConfig())))
	out, err := a.Search(context.Background(), "wind")
	require.NoError(t, err)
	require.NoError(t, out.Err)
	require.Len(t, out.Records, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTavily_MissingKey(t *testing.T) {
	_, err := NewTavily("", testConfig()).Search(context.Background(), "x", 1)
	assert.Error(t, err)
}

func TestCache_Expiry(t *testing.T) {
	c := NewCache(2, time.Minute)
	now := fixedNow
	c.now = func() time.Time { return now }

	c.Put("q", Output{Query: "q", Records: []types.SourceRecord{{ID: "a"}}})
	got, ok := c.Get("Q")
	require.True(t, ok)
	got.Records[0].ID = "mutated"

	again, ok := c.Get("q")
	require.True(t, ok)
	assert.Equal(t, "a", again.Records[0].ID)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("q")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"renewable energy sources", 12, "renewable..."},
		{"renewable", 2, "re"},
		{"renewable", 3, "ren"},
		{"énergie", 1, "é"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncate(tt.s, tt.max), "%q/%d", tt.s, tt.max)
	}
}

func TestSearch_TinySnippetLength(t *testing.T) {
	cfg := testConfig()
	cfg.SnippetLength = 2
	a := NewAgent(cfg, fastLimiter())

	out, err := a.Execute(context.Background(), "What is renewable energy?")
	require.NoError(t, err)
	require.NotEmpty(t, out.Records)
	for _, r := range out.Records {
		assert.LessOrEqual(t, len([]rune(r.Snippet)), 2)
	}
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "renewable energy explained", normalizeTitle("Renewable  Energy: Explained!"))
	assert.Equal(t, "", normalizeTitle("!!!"))
}

func TestFormatTable(t *testing.T) {
	var buf bytes.Buffer
	FormatTable(Output{Provider: "fallback", Degraded: true, Records: []types.SourceRecord{
		{Title: "Solar", URL: "https://nrel.gov/solar", Quality: types.QualityHigh, Score: 0.5},
	}}, &buf)
	out := buf.String()
	assert.Contains(t, out, "Solar")
	assert.Contains(t, out, "1 results from fallback")
	assert.Contains(t, out, "[fallback data]")

	buf.Reset()
	FormatTable(Output{}, &buf)
	assert.Equal(t, "No results found.\n", buf.String())
}
