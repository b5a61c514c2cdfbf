// Package provider builds the configured llm.Client.
package provider

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/velora/internal/llm"
	"github.com/roach88/velora/internal/llm/gemini"
	"github.com/roach88/velora/internal/llm/mock"
	"github.com/roach88/velora/internal/llm/openai"
)

// Config selects and authenticates a provider.
type Config struct {
	Provider     string
	Model        string
	GeminiAPIKey string
	OpenAIAPIKey string
	OpenAIBase   string
}

type factory func(ctx context.Context, cfg Config) (llm.Client, error)

var factories = map[string]factory{
	"gemini": func(ctx context.Context, cfg Config) (llm.Client, error) {
		return gemini.New(ctx, cfg.GeminiAPIKey, cfg.Model)
	},
	"openai": func(_ context.Context, cfg Config) (llm.Client, error) {
		var opts []openai.Option
		if cfg.OpenAIBase != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBase))
		}
		return openai.New(cfg.OpenAIAPIKey, cfg.Model, opts...)
	},
	"mock": func(context.Context, Config) (llm.Client, error) {
		return mock.New(), nil
	},
}

// Names returns the supported provider names, sorted.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New returns the client for cfg.Provider.
func New(ctx context.Context, cfg Config) (llm.Client, error) {
	f, ok := factories[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q (supported: %v)", cfg.Provider, Names())
	}
	client, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", cfg.Provider, err)
	}
	return client, nil
}
