// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/pdiddy/deep-research/internal/ratelimit"
	"github.com/pdiddy/deep-research/pkg/types"
)

// TargetGemini is the rate-limit target for Gemini calls.
const TargetGemini = "gemini"

// geminiBaseURL overrides the API endpoint when non-empty. Package-level var
// for test substitution.
var geminiBaseURL = ""

// Gemini calls the Gemini API through google.golang.org/genai. Every call
// passes through the shared rate limiter.
type Gemini struct {
	client  *genai.Client
	cfg     types.AIConfig
	limiter *ratelimit.Limiter
	log     *zap.Logger
}

// NewGemini creates a Gemini model. The API key in cfg is required.
func NewGemini(ctx context.Context, cfg types.AIConfig, limiter *ratelimit.Limiter, log *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, types.ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = types.DefaultConfig().LLM.Model
	}
	if log == nil {
		log = zap.NewNop()
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if geminiBaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: geminiBaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	return &Gemini{client: client, cfg: cfg, limiter: limiter, log: log}, nil
}

// Generate sends one completion request and returns the response text.
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	config := g.generateConfig(req)
	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	text, err := ratelimit.Call(ctx, g.limiter, TargetGemini, func(ctx context.Context) (string, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, config)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	})
	if err != nil {
		return "", fmt.Errorf("gemini %s: %w", g.cfg.Model, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	g.log.Debug("gemini completion", zap.String("model", g.cfg.Model), zap.Int("chars", len(text)))
	return text, nil
}

func (g *Gemini) generateConfig(req Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if g.cfg.Temperature > 0 {
		temp := float32(g.cfg.Temperature)
		config.Temperature = &temp
	}
	if g.cfg.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(g.cfg.MaxOutputTokens)
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}
	return config
}
