// Package gemini is an llm.Client backed by the Google Gemini API.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/roach88/velora/internal/ir"
	"github.com/roach88/velora/internal/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// Client generates content with a Gemini model.
type Client struct {
	client *genai.Client
	model  string
}

// New creates a client. apiKey is required.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required: %w", ir.ErrAuth)
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Client{client: client, model: model}, nil
}

// Name implements llm.Client.
func (c *Client) Name() string {
	return "gemini:" + c.model
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, p llm.Prompt) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(p.Temperature)),
		MaxOutputTokens: int32(p.MaxTokens),
	}
	if p.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(p.System, genai.RoleUser)
	}
	if p.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(p.User), cfg)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("gemini: %w: %v", classify(err), err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini: %w: empty response", ir.ErrMalformedOutput)
	}
	return text, nil
}

// classify maps an API error to an ir sentinel from its status text.
func classify(err error) error {
	msg := err.Error()
	switch {
	case containsAny(msg, "429", "RESOURCE_EXHAUSTED", "quota"):
		return ir.ErrRateLimited
	case containsAny(msg, "401", "403", "UNAUTHENTICATED", "PERMISSION_DENIED", "API key not valid"):
		return ir.ErrAuth
	default:
		return ir.ErrUnavailable
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
