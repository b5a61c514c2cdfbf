// Package mock provides an offline llm.Client.
//
// With no script it answers deterministically from the prompt: generation
// prompts get two test case blocks covering the requested fields, judge
// prompts get a functional verdict. Tests can script replies and errors.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/roach88/velora/internal/llm"
)

// Reply is one scripted response.
type Reply struct {
	Text string
	Err  error
}

// Client is a scripted, call-counting llm.Client.
type Client struct {
	mu      sync.Mutex
	script  []Reply
	calls   int
	prompts []llm.Prompt
}

// New creates a client that plays script in order, then falls back to
// deterministic answers.
func New(script ...Reply) *Client {
	return &Client{script: script}
}

// Name implements llm.Client.
func (c *Client) Name() string {
	return "mock"
}

// Calls returns the number of Complete calls.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Prompts returns the prompts received so far.
func (c *Client) Prompts() []llm.Prompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Prompt(nil), c.prompts...)
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, p llm.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.calls++
	c.prompts = append(c.prompts, p)
	var next *Reply
	if len(c.script) > 0 {
		next = &c.script[0]
		c.script = c.script[1:]
	}
	c.mu.Unlock()

	if next != nil {
		return next.Text, next.Err
	}
	if p.JSON {
		return `{"materiality": "functional", "summary": "offline judge"}`, nil
	}
	return answer(p.User), nil
}

var fieldLine = regexp.MustCompile(`(?m)^(.+): <value>$`)

func answer(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	tag := strings.ToUpper(hex.EncodeToString(sum[:3]))

	var fields []string
	for _, m := range fieldLine.FindAllStringSubmatch(prompt, -1) {
		fields = append(fields, m[1])
	}

	var b strings.Builder
	for i, scenario := range []string{"positive path", "invalid input"} {
		if i > 0 {
			b.WriteString(llm.Separator + "\n")
		}
		for _, f := range fields {
			fmt.Fprintf(&b, "%s: %s %s %d\n", f, scenario, tag, i+1)
		}
	}
	return b.String()
}
