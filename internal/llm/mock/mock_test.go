package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/velora/internal/ir"
	"github.com/roach88/velora/internal/llm"
)

func TestClient_DeterministicGeneration(t *testing.T) {
	c := New()
	p := llm.GenerationPrompt("Users can export reports.", ir.DefaultTemplate(), llm.DefaultSettings())

	a, err := c.Complete(context.Background(), p)
	require.NoError(t, err)
	b, err := c.Complete(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	cases, err := llm.ParseTestCases(a, ir.DefaultTemplate())
	require.NoError(t, err)
	assert.Len(t, cases, 2)
	assert.Equal(t, 2, c.Calls())
}

func TestClient_Script(t *testing.T) {
	boom := errors.New("boom")
	c := New(Reply{Err: boom}, Reply{Text: "cosmetic"})

	_, err := c.Complete(context.Background(), llm.Prompt{})
	assert.ErrorIs(t, err, boom)

	out, err := c.Complete(context.Background(), llm.Prompt{})
	require.NoError(t, err)
	assert.Equal(t, "cosmetic", out)

	out, err = c.Complete(context.Background(), llm.Prompt{JSON: true})
	require.NoError(t, err)
	assert.Contains(t, out, "functional")
	assert.Len(t, c.Prompts(), 3)
}
