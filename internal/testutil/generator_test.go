package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/velora/internal/ir"
)

func TestGenerator_Deterministic(t *testing.T) {
	g := NewGenerator(3)

	a, err := g.Generate(context.Background(), "text", ir.DefaultTemplate())
	require.NoError(t, err)
	b, err := g.Generate(context.Background(), "text", ir.DefaultTemplate())
	require.NoError(t, err)

	assert.Len(t, a, 3)
	assert.Equal(t, a, b)
	assert.Equal(t, "Medium", a[0]["Priority"])
	assert.Equal(t, 2, g.Calls())
	assert.Equal(t, 2, g.CallsFor("text"))
}

func TestGenerator_FailOn(t *testing.T) {
	g := NewGenerator(1)
	boom := errors.New("boom")

	g.FailOn("bad", boom)
	_, err := g.Generate(context.Background(), "bad", ir.DefaultTemplate())
	assert.ErrorIs(t, err, boom)

	g.FailOn("bad", nil)
	_, err = g.Generate(context.Background(), "bad", ir.DefaultTemplate())
	assert.NoError(t, err)
}

func TestGenerator_BlockHonorsContext(t *testing.T) {
	g := NewGenerator(1)
	g.Block()
	defer g.Release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := g.Generate(ctx, "x", ir.DefaultTemplate())
		done <- err
	}()

	<-g.Started()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
