// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/deep-research/internal/secrets"
	"github.com/pdiddy/deep-research/pkg/types"
)

// loadConfig layers defaults, the config file and DEEP_RESEARCH_* variables,
// then command flags. API keys resolve flag > environment > .secrets/.
func loadConfig(cmd *cobra.Command) (types.Config, error) {
	cfg := types.DefaultConfig()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setString(&cfg.LLM.Model, "llm.model")
	setInt(&cfg.LLM.MaxOutputTokens, "llm.max_output_tokens")
	setFloat(&cfg.LLM.Temperature, "llm.temperature")

	setDuration(&cfg.Search.Timeout, "search.timeout")
	setString(&cfg.Search.UserAgent, "search.user_agent")
	setString(&cfg.Search.Depth, "search.depth")
	setInt(&cfg.Search.MaxResults, "search.max_results")
	setBool(&cfg.Search.IncludeAnswer, "search.include_answer")
	setInt(&cfg.Search.SnippetLength, "search.snippet_length")

	setDuration(&cfg.RateLimit.MinInterval, "rate_limit.min_interval")
	setInt(&cfg.RateLimit.MaxAttempts, "rate_limit.max_attempts")
	setDuration(&cfg.RateLimit.RetryDelay, "rate_limit.retry_delay")

	setInt(&cfg.Planning.MaxTasks, "planning.max_tasks")
	setFloat(&cfg.Reflection.SimilarityThreshold, "reflection.similarity_threshold")
	setInt(&cfg.Reflection.MaxClaimsPerSource, "reflection.max_claims_per_source")
	setFloat(&cfg.Reflection.ConflictOverlap, "reflection.conflict_overlap")

	setInt(&cfg.Orchestrator.MaxConcurrency, "orchestrator.max_concurrency")
	setBool(&cfg.Orchestrator.Interactive, "orchestrator.interactive")
	setDuration(&cfg.Orchestrator.ClarifyTimeout, "orchestrator.clarify_timeout")

	setString(&cfg.Cache.Path, "cache.path")
	setInt(&cfg.Cache.Size, "cache.size")
	setDuration(&cfg.Cache.TTL, "cache.ttl")

	style := viper.GetString("citations.style")
	if f := cmd.Flags().Lookup("style"); f != nil && f.Changed {
		style = f.Value.String()
	}
	if style != "" {
		s, err := types.ParseCitationStyle(style)
		if err != nil {
			return cfg, err
		}
		cfg.Citations.Style = s
	}

	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.LLM.Model, _ = flags.GetString("model")
	}
	if flags.Changed("concurrency") {
		cfg.Orchestrator.MaxConcurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("max-tasks") {
		cfg.Planning.MaxTasks, _ = flags.GetInt("max-tasks")
	}
	if flags.Changed("interactive") {
		cfg.Orchestrator.Interactive, _ = flags.GetBool("interactive")
	}
	if flags.Changed("cache") {
		cfg.Cache.Path, _ = flags.GetString("cache")
	}

	geminiFlag, _ := flags.GetString("gemini-key")
	tavilyFlag, _ := flags.GetString("tavily-key")
	cfg.LLM.APIKey = secrets.Resolve(geminiFlag, secrets.GeminiKeyEnv, loadedSecrets, secrets.GeminiKeyFile)
	cfg.Search.TavilyAPIKey = secrets.Resolve(tavilyFlag, secrets.TavilyKeyEnv, loadedSecrets, secrets.TavilyKeyFile)

	return cfg, cfg.Validate()
}

// addSessionFlags registers the flags shared by commands that run sessions.
func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().String("model", "", "Gemini model identifier")
	cmd.Flags().String("gemini-key", "", "Gemini API key (overrides GEMINI_API_KEY)")
	cmd.Flags().String("tavily-key", "", "Tavily API key (overrides TAVILY_API_KEY)")
	cmd.Flags().Int("concurrency", 0, "maximum tasks researched at once")
	cmd.Flags().Int("max-tasks", 0, "maximum sub-topics in a plan")
	cmd.Flags().Bool("interactive", false, "answer follow-up questions on stdin")
	cmd.Flags().String("cache", "", "SQLite source cache file")
}

func setString(dst *string, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetString(key)
	}
}

func setInt(dst *int, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetInt(key)
	}
}

func setFloat(dst *float64, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetFloat64(key)
	}
}

func setBool(dst *bool, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetBool(key)
	}
}

func setDuration(dst *time.Duration, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetDuration(key)
	}
}
