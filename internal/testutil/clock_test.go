package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_StartsAtEpoch(t *testing.T) {
	c := NewClock(time.Time{})
	assert.Equal(t, Epoch, c.Now())
}

func TestClock_Advance(t *testing.T) {
	c := NewClock(time.Time{})

	got := c.Advance(90 * time.Minute)
	assert.Equal(t, Epoch.Add(90*time.Minute), got)
	assert.Equal(t, got, c.Now())

	c.Advance(-time.Hour)
	assert.Equal(t, got, c.Now(), "negative advance must be ignored")
}

func TestClock_Reset(t *testing.T) {
	c := NewClock(time.Time{})
	c.Advance(time.Hour)
	c.Reset()
	assert.Equal(t, Epoch, c.Now())
}

func TestClock_ConcurrentAdvance(t *testing.T) {
	c := NewClock(time.Time{})

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
		}()
	}
	wg.Wait()

	assert.Equal(t, Epoch.Add(100*time.Second), c.Now())
}
