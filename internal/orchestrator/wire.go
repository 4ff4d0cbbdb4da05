// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/citation"
	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/internal/metrics"
	"github.com/pdiddy/deep-research/internal/planning"
	"github.com/pdiddy/deep-research/internal/ratelimit"
	"github.com/pdiddy/deep-research/internal/reflection"
	"github.com/pdiddy/deep-research/internal/requirements"
	"github.com/pdiddy/deep-research/internal/search"
	"github.com/pdiddy/deep-research/internal/store"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Dependencies are the process-level collaborators Build wires in. All are
// optional.
type Dependencies struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// Asker answers follow-up questions when cfg.Orchestrator.Interactive is set.
	Asker requirements.Asker

	// Sink is the default progress sink.
	Sink EventSink
}

// Build validates cfg and wires the production stack: one shared rate
// limiter, the Gemini model, the SQLite source cache, Tavily search when a
// key is configured, and the five agents. The returned close function
// releases the cache database.
func Build(ctx context.Context, cfg types.Config, deps Dependencies) (*Orchestrator, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	limiter := ratelimit.New(cfg.RateLimit,
		ratelimit.WithLogger(log.Named("ratelimit")),
		ratelimit.WithObserver(deps.Metrics))

	model, err := llm.NewGemini(ctx, cfg.LLM, limiter, log.Named("llm"))
	if err != nil {
		return nil, nil, fmt.Errorf("creating model: %w", err)
	}

	path := cfg.Cache.Path
	if path == "" {
		path = store.MemoryPath
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening source cache: %w", err)
	}

	searchOpts := []search.Option{
		search.WithCache(search.NewCache(cfg.Cache.Size, cfg.Cache.TTL)),
		search.WithSaver(st),
		search.WithFallback(search.NewFallback(st, model, log.Named("fallback"))),
		search.WithLogger(log.Named("search")),
	}
	if cfg.Search.TavilyAPIKey != "" {
		searchOpts = append(searchOpts, search.WithPrimary(search.NewTavily(cfg.Search.TavilyAPIKey, cfg.Search)))
	} else {
		log.Warn("no Tavily API key configured, searches use fallback data")
	}

	reqOpts := []requirements.Option{
		requirements.WithModel(model),
		requirements.WithLogger(log.Named("requirements")),
	}
	if deps.Asker != nil {
		reqOpts = append(reqOpts, requirements.WithAsker(deps.Asker))
	}

	agents := Agents{
		Requirements: requirements.NewAgent(cfg.Orchestrator, reqOpts...),
		Planning:     planning.NewAgent(cfg.Planning, model, log.Named("planning")),
		Search:       search.NewAgent(cfg.Search, limiter, searchOpts...),
		Reflection:   reflection.NewAgent(cfg.Reflection, log.Named("reflection")),
		Citations:    citation.NewAgent(log.Named("citations")),
	}

	opts := []Option{
		WithModel(model),
		WithMetrics(deps.Metrics),
		WithLogger(log.Named("orchestrator")),
	}
	if deps.Sink != nil {
		opts = append(opts, WithSink(deps.Sink))
	}
	o, err := New(cfg, agents, opts...)
	if err != nil {
		return nil, nil, errors.Join(err, st.Close())
	}
	return o, st.Close, nil
}
