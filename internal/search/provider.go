// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"errors"
)

// ErrProviderUnavailable marks a provider failure other than quota
// exhaustion. The orchestrator marks the task failed and continues.
var ErrProviderUnavailable = errors.New("search provider unavailable")

// ErrEmptyQuery is returned by Agent.Search for a blank query.
var ErrEmptyQuery = errors.New("query is empty")

// RawResult is one provider result before normalization.
type RawResult struct {
	Title         string
	URL           string
	Content       string
	Score         float64
	PublishedDate string

	// Provider overrides the provider name recorded on the source, for
	// providers that aggregate several origins.
	Provider string
}

// Response is one batch of provider results.
type Response struct {
	Results []RawResult

	// Answer is the provider's short generated answer, when requested.
	Answer string
}

// Provider searches a single web search backend. Each backend (Tavily, the
// offline fallback) implements this interface.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) (Response, error)
}
