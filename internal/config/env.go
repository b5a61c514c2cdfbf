package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/velora/internal/ir"
)

// applyEnv overrides cfg from environment variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = n
		return nil
	}

	var mode string
	str("UPDATE_MODE", &mode)
	if mode != "" {
		cfg.Mode = ir.UpdateMode(strings.ToLower(mode))
	}
	str("SOURCE_DOCUMENT_PATH", &cfg.Source.Path)
	str("LLM_PROVIDER", &cfg.LLM.Provider)
	str("LLM_MODEL", &cfg.LLM.Model)
	str("LOG_LEVEL", &cfg.Log.Level)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	str("GEMINI_API_KEY", &cfg.LLM.GeminiAPIKey)
	str("OPENAI_API_KEY", &cfg.LLM.OpenAIAPIKey)
	str("UPSTASH_REDIS_REST_URL", &cfg.Cache.UpstashURL)
	str("UPSTASH_REDIS_REST_TOKEN", &cfg.Cache.UpstashToken)
	if cfg.Cache.UpstashURL != "" && cfg.Cache.Remote == "none" {
		cfg.Cache.Remote = "upstash"
	}

	if err := num("MAX_RETRIES", &cfg.LLM.MaxRetries); err != nil {
		return err
	}
	if err := num("MAX_TOKENS", &cfg.LLM.MaxTokens); err != nil {
		return err
	}
	// BATCH_SIZE bounds how many requirements are in flight at once.
	if err := num("BATCH_SIZE", &cfg.Concurrency); err != nil {
		return err
	}

	if v, ok := lookup("API_TIMEOUT"); ok && v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("API_TIMEOUT: %w", err)
		}
		cfg.LLM.Timeout = d
	}
	if v, ok := lookup("RUN_TIMEOUT"); ok && v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("RUN_TIMEOUT: %w", err)
		}
		cfg.Run.Timeout = d
	}
	if v, ok := lookup("TEMPERATURE"); ok && v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("TEMPERATURE: %w", err)
		}
		cfg.LLM.Temperature = f
	}
	return nil
}

// parseSeconds accepts a Go duration ("90s") or a bare number of seconds.
func parseSeconds(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}
