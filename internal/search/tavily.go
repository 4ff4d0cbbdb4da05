// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

// tavilyURL is the Tavily search endpoint. Package-level var for test substitution.
var tavilyURL = "https://api.tavily.com/search"

// Tavily queries the Tavily web search API.
type Tavily struct {
	apiKey string
	cfg    types.SearchConfig
	client *http.Client
}

// NewTavily creates a Tavily provider. The HTTP timeout comes from cfg.
func NewTavily(apiKey string, cfg types.SearchConfig) *Tavily {
	return &Tavily{
		apiKey: apiKey,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// tavilyRequest is the request body for POST /search.
type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth,omitempty"`
	MaxResults    int    `json:"max_results,omitempty"`
	IncludeAnswer bool   `json:"include_answer"`
}

// tavilyResponse is the subset of the Tavily response we read.
type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title         string  `json:"title"`
		URL           string  `json:"url"`
		Content       string  `json:"content"`
		Score         float64 `json:"score"`
		PublishedDate string  `json:"published_date"`
	} `json:"results"`
}

// Name returns "tavily".
func (t *Tavily) Name() string { return "tavily" }

// Search posts the query to Tavily. HTTP errors are returned as
// *httputil.StatusError so that quota responses can be retried by the caller.
func (t *Tavily) Search(ctx context.Context, query string, maxResults int) (Response, error) {
	if strings.TrimSpace(t.apiKey) == "" {
		return Response{}, errors.New("tavily: API key is missing")
	}
	if maxResults <= 0 {
		maxResults = t.cfg.MaxResults
	}

	headers := map[string]string{}
	if t.cfg.UserAgent != "" {
		headers["User-Agent"] = t.cfg.UserAgent
	}

	var resp tavilyResponse
	err := httputil.PostJSON(ctx, t.client, tavilyURL, headers, tavilyRequest{
		APIKey:        t.apiKey,
		Query:         query,
		SearchDepth:   t.cfg.Depth,
		MaxResults:    maxResults,
		IncludeAnswer: t.cfg.IncludeAnswer,
	}, &resp)
	if err != nil {
		return Response{}, err
	}

	out := Response{Answer: strings.TrimSpace(resp.Answer)}
	for _, r := range resp.Results {
		out.Results = append(out.Results, RawResult{
			Title:         r.Title,
			URL:           r.URL,
			Content:       r.Content,
			Score:         r.Score,
			PublishedDate: r.PublishedDate,
		})
	}
	return out, nil
}
