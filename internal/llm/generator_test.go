package llm_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/velora/internal/ir"
	"github.com/roach88/velora/internal/llm"
	"github.com/roach88/velora/internal/llm/mock"
)

const block = `Test Case Title: T
Description: D
Preconditions: P
Test Steps: 1. S
Expected Result: R`

func settings(retries int) llm.Settings {
	s := llm.DefaultSettings()
	s.MaxRetries = retries
	return s
}

func TestGenerator_RetriesTransientErrors(t *testing.T) {
	client := mock.New(
		mock.Reply{Err: fmt.Errorf("429: %w", ir.ErrRateLimited)},
		mock.Reply{Text: "garbage"},
		mock.Reply{Text: block},
	)
	g := llm.NewGenerator(client, settings(3), llm.WithBackoff(time.Millisecond))

	cases, err := g.Generate(context.Background(), "req", ir.DefaultTemplate())
	require.NoError(t, err)
	assert.Len(t, cases, 1)
	assert.Equal(t, 3, client.Calls())
}

func TestGenerator_GivesUpAfterMaxRetries(t *testing.T) {
	unavailable := fmt.Errorf("503: %w", ir.ErrUnavailable)
	client := mock.New(
		mock.Reply{Err: unavailable},
		mock.Reply{Err: unavailable},
		mock.Reply{Err: unavailable},
	)
	g := llm.NewGenerator(client, settings(2), llm.WithBackoff(time.Millisecond))

	_, err := g.Generate(context.Background(), "req", ir.DefaultTemplate())
	assert.ErrorIs(t, err, ir.ErrUnavailable)
	assert.Equal(t, ir.CauseUnavailable, ir.GenerationCause(err))
	assert.Equal(t, 3, client.Calls())
}

func TestGenerator_AuthIsNotRetried(t *testing.T) {
	client := mock.New(mock.Reply{Err: fmt.Errorf("401: %w", ir.ErrAuth)})
	g := llm.NewGenerator(client, settings(3), llm.WithBackoff(time.Millisecond))

	_, err := g.Generate(context.Background(), "req", ir.DefaultTemplate())
	assert.ErrorIs(t, err, ir.ErrAuth)
	assert.Equal(t, 1, client.Calls())
}

func TestGenerator_CancelledDuringBackoff(t *testing.T) {
	client := mock.New(mock.Reply{Err: ir.ErrRateLimited})
	g := llm.NewGenerator(client, settings(3), llm.WithBackoff(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := g.Generate(ctx, "req", ir.DefaultTemplate())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, client.Calls())
}

func TestJudge(t *testing.T) {
	client := mock.New(
		mock.Reply{Text: `{"materiality": "cosmetic", "summary": "typo fix"}`},
		mock.Reply{Err: ir.ErrUnavailable},
	)
	j := llm.NewJudge(client, llm.DefaultSettings())

	got, err := j.Judge(context.Background(), "old", "new")
	require.NoError(t, err)
	assert.Equal(t, ir.MaterialityCosmetic, got)
	assert.True(t, client.Prompts()[0].JSON)

	_, err = j.Judge(context.Background(), "old", "new")
	assert.ErrorIs(t, err, ir.ErrUnavailable)
}
