// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingAPIKey is returned by Config.Validate when no Gemini key is configured.
var ErrMissingAPIKey = errors.New("missing GEMINI_API_KEY")

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "deep-research/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// AIConfig holds settings for the Gemini completion API.
type AIConfig struct {
	// Model is the Gemini model identifier (e.g. "gemini-2.5-flash").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the Gemini API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxOutputTokens caps the length of each completion.
	MaxOutputTokens int `json:"max_output_tokens" yaml:"max_output_tokens"`

	// Temperature is the sampling temperature.
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// SearchConfig holds settings for the web search provider.
type SearchConfig struct {
	HTTPConfig `yaml:",inline"`

	// TavilyAPIKey enables live search. When empty the fallback provider is used.
	TavilyAPIKey string `json:"tavily_api_key,omitempty" yaml:"tavily_api_key,omitempty"`

	// Depth is the Tavily search depth: "basic" or "advanced".
	Depth string `json:"depth" yaml:"depth"`

	// MaxResults is the number of results requested per query (default 5).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// IncludeAnswer asks the provider for a generated short answer.
	IncludeAnswer bool `json:"include_answer" yaml:"include_answer"`

	// SnippetLength truncates source snippets to this many runes.
	SnippetLength int `json:"snippet_length" yaml:"snippet_length"`
}

// RateLimitConfig controls call spacing and quota retries.
type RateLimitConfig struct {
	// MinInterval is the minimum spacing between grants for one target (default 7s).
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval"`

	// MaxAttempts is the total number of attempts on quota errors (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// RetryDelay is the fixed wait between quota retries (default 5s).
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`
}

// PlanningConfig holds settings for task decomposition.
type PlanningConfig struct {
	// MaxTasks caps the number of sub-tasks in a plan (default 5).
	MaxTasks int `json:"max_tasks" yaml:"max_tasks"`
}

// ReflectionConfig holds settings for finding synthesis.
type ReflectionConfig struct {
	// SimilarityThreshold is the normalized similarity at or above which two
	// claims are merged (default 0.85).
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`

	// MaxClaimsPerSource caps the sentences taken from one snippet (default 3).
	MaxClaimsPerSource int `json:"max_claims_per_source" yaml:"max_claims_per_source"`

	// ConflictOverlap is the minimum subject token overlap for two claims to
	// be compared for contradiction (default 0.6).
	ConflictOverlap float64 `json:"conflict_overlap" yaml:"conflict_overlap"`
}

// CitationConfig holds settings for reference formatting.
type CitationConfig struct {
	Style CitationStyle `json:"style" yaml:"style"`
}

// OrchestratorConfig holds settings for session execution.
type OrchestratorConfig struct {
	// MaxConcurrency bounds how many tasks execute at once (default 2).
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency"`

	// Interactive enables follow-up questions during clarification.
	Interactive bool `json:"interactive" yaml:"interactive"`

	// ClarifyTimeout bounds how long clarification waits for answers (default 60s).
	ClarifyTimeout time.Duration `json:"clarify_timeout" yaml:"clarify_timeout"`
}

// CacheConfig holds settings for the search result caches.
type CacheConfig struct {
	// Path is the SQLite source cache file. Empty disables the persistent cache.
	Path string `json:"path" yaml:"path"`

	// Size is the number of queries held in the in-memory LRU (default 256).
	Size int `json:"size" yaml:"size"`

	// TTL is how long an in-memory entry stays valid (default 1h).
	TTL time.Duration `json:"ttl" yaml:"ttl"`
}

// Config groups all component configurations.
type Config struct {
	LLM          AIConfig           `json:"llm" yaml:"llm"`
	Search       SearchConfig       `json:"search" yaml:"search"`
	RateLimit    RateLimitConfig    `json:"rate_limit" yaml:"rate_limit"`
	Planning     PlanningConfig     `json:"planning" yaml:"planning"`
	Reflection   ReflectionConfig   `json:"reflection" yaml:"reflection"`
	Citations    CitationConfig     `json:"citations" yaml:"citations"`
	Orchestrator OrchestratorConfig `json:"orchestrator" yaml:"orchestrator"`
	Cache        CacheConfig        `json:"cache" yaml:"cache"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		LLM: AIConfig{
			Model:           "gemini-2.5-flash",
			MaxOutputTokens: 2048,
			Temperature:     0.3,
		},
		Search: SearchConfig{
			HTTPConfig: HTTPConfig{
				Timeout:   30 * time.Second,
				UserAgent: "deep-research/0.1",
			},
			Depth:         "advanced",
			MaxResults:    5,
			IncludeAnswer: true,
			SnippetLength: 500,
		},
		RateLimit: RateLimitConfig{
			MinInterval: 7 * time.Second,
			MaxAttempts: 3,
			RetryDelay:  5 * time.Second,
		},
		Planning: PlanningConfig{MaxTasks: 5},
		Reflection: ReflectionConfig{
			SimilarityThreshold: 0.85,
			MaxClaimsPerSource:  3,
			ConflictOverlap:     0.6,
		},
		Citations: CitationConfig{Style: StyleAPA},
		Orchestrator: OrchestratorConfig{
			MaxConcurrency: 2,
			ClarifyTimeout: 60 * time.Second,
		},
		Cache: CacheConfig{
			Size: 256,
			TTL:  time.Hour,
		},
	}
}

// MinSnippetLength is the shortest non-default snippet length.
const MinSnippetLength = 4

// Validate checks that the configuration can run a session.
func (c Config) Validate() error {
	if c.LLM.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model must be set")
	}
	if c.RateLimit.MinInterval < 0 {
		return fmt.Errorf("rate_limit.min_interval must not be negative, got %s", c.RateLimit.MinInterval)
	}
	if c.RateLimit.MaxAttempts < 1 {
		return fmt.Errorf("rate_limit.max_attempts must be at least 1, got %d", c.RateLimit.MaxAttempts)
	}
	if c.Planning.MaxTasks < 1 {
		return fmt.Errorf("planning.max_tasks must be at least 1, got %d", c.Planning.MaxTasks)
	}
	if c.Orchestrator.MaxConcurrency < 1 {
		return fmt.Errorf("orchestrator.max_concurrency must be at least 1, got %d", c.Orchestrator.MaxConcurrency)
	}
	if c.Search.MaxResults < 1 {
		return fmt.Errorf("search.max_results must be at least 1, got %d", c.Search.MaxResults)
	}
	if c.Search.SnippetLength != 0 && c.Search.SnippetLength < MinSnippetLength {
		return fmt.Errorf("search.snippet_length must be 0 (default) or at least %d, got %d", MinSnippetLength, c.Search.SnippetLength)
	}
	if c.Reflection.SimilarityThreshold <= 0 || c.Reflection.SimilarityThreshold > 1 {
		return fmt.Errorf("reflection.similarity_threshold must be in (0, 1], got %v", c.Reflection.SimilarityThreshold)
	}
	if _, err := ParseCitationStyle(string(c.Citations.Style)); err != nil {
		return err
	}
	return nil
}
