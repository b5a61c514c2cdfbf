package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/velora/internal/ir"
)

// Generator is a deterministic test case generator that counts its calls.
//
// Each call returns PerCall test cases whose fields are derived from the
// requirement text, so identical text yields identical payloads. Failures
// can be scripted per text, and Block makes every call wait until Release
// so tests can pile concurrent callers onto one key.
//
// Thread-safety: Generator is safe for concurrent use.
type Generator struct {
	PerCall int

	mu       sync.Mutex
	calls    int
	byText   map[string]int
	failures map[string]error
	gate     chan struct{}
	started  chan struct{}
}

// NewGenerator creates a generator producing perCall test cases per call.
// perCall < 1 means 2.
func NewGenerator(perCall int) *Generator {
	if perCall < 1 {
		perCall = 2
	}
	return &Generator{
		PerCall:  perCall,
		byText:   make(map[string]int),
		failures: make(map[string]error),
	}
}

// FailOn makes calls for text return err until cleared with FailOn(text, nil).
func (g *Generator) FailOn(text string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failures, text)
		return
	}
	g.failures[text] = err
}

// Block makes subsequent calls wait until Release. Started receives one
// value per blocked call.
func (g *Generator) Block() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gate = make(chan struct{})
	g.started = make(chan struct{}, 64)
}

// Started signals each call that reached the gate.
func (g *Generator) Started() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.started
}

// Release unblocks all waiting and future calls.
func (g *Generator) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gate != nil {
		close(g.gate)
		g.gate = nil
	}
}

// Calls returns the total number of calls.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// CallsFor returns the number of calls made for text.
func (g *Generator) CallsFor(text string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.byText[text]
}

// Generate produces test cases for text following tmpl.
func (g *Generator) Generate(ctx context.Context, text string, tmpl ir.Template) ([]ir.TestCase, error) {
	g.mu.Lock()
	g.calls++
	g.byText[text]++
	failure := g.failures[text]
	gate, started := g.gate, g.started
	g.mu.Unlock()

	if gate != nil {
		started <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failure != nil {
		return nil, failure
	}

	out := make([]ir.TestCase, g.PerCall)
	for i := range out {
		tc := make(ir.TestCase, len(tmpl))
		for _, f := range tmpl {
			tc[f.Name] = f.Default
		}
		tc["Test Case Title"] = fmt.Sprintf("Case %d", i+1)
		tc["Description"] = text
		out[i] = tc
	}
	return out, nil
}
