// Package llm turns requirement text into test cases with a language model,
// and judges whether a requirement edit is cosmetic or functional.
//
// Providers live in subpackages (gemini, openai, mock) behind the Client
// interface; package provider picks one from configuration. Provider errors
// wrap the ir sentinels (ir.ErrRateLimited, ir.ErrAuth, ir.ErrUnavailable)
// so Generator can decide what to retry and the orchestrator can record a
// failure cause.
package llm

import (
	"context"
	"time"
)

// Client is a text completion backend.
type Client interface {
	// Name identifies the provider and model, e.g. "gemini:gemini-2.5-flash".
	Name() string
	// Complete returns the model's text for p.
	Complete(ctx context.Context, p Prompt) (string, error)
}

// Prompt is one completion request.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
	// JSON asks the provider for a JSON response where supported.
	JSON bool
}

// Settings bound model calls.
type Settings struct {
	MaxRetries  int           `yaml:"max_retries" json:"max_retries"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		MaxRetries:  3,
		Temperature: 0.3,
		MaxTokens:   2000,
		Timeout:     300 * time.Second,
	}
}
