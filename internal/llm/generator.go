package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/velora/internal/ir"
)

// Generator produces test cases for one requirement per call.
type Generator struct {
	client   Client
	settings Settings
	logger   *zap.Logger
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) GeneratorOption {
	return func(g *Generator) {
		g.logger = l
	}
}

// WithBackoff sets the delay before the first retry; it doubles per attempt.
func WithBackoff(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		g.backoff = d
	}
}

// NewGenerator creates a Generator over client.
func NewGenerator(client Client, s Settings, opts ...GeneratorOption) *Generator {
	g := &Generator{
		client:   client,
		settings: s,
		logger:   zap.NewNop(),
		backoff:  time.Second,
		sleep:    sleep,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate asks the model for test cases covering text.
//
// Rate limiting, provider unavailability and unparseable output are retried
// up to MaxRetries times with exponential backoff. Authentication failures and
// context cancellation return at once.
func (g *Generator) Generate(ctx context.Context, text string, tmpl ir.Template) ([]ir.TestCase, error) {
	prompt := GenerationPrompt(text, tmpl, g.settings)
	delay := g.backoff

	var lastErr error
	for attempt := 0; attempt <= g.settings.MaxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Debug("retrying generation",
				zap.String("provider", g.client.Name()),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if err := g.sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
		}

		cases, err := g.attempt(ctx, prompt, tmpl)
		if err == nil {
			return cases, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			break
		}
	}
	return nil, fmt.Errorf("generate with %s: %w", g.client.Name(), lastErr)
}

func (g *Generator) attempt(ctx context.Context, prompt Prompt, tmpl ir.Template) ([]ir.TestCase, error) {
	if g.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.settings.Timeout)
		defer cancel()
	}
	out, err := g.client.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return ParseTestCases(out, tmpl)
}

func retryable(err error) bool {
	return errors.Is(err, ir.ErrRateLimited) ||
		errors.Is(err, ir.ErrUnavailable) ||
		errors.Is(err, ir.ErrMalformedOutput)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
