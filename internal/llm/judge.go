package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/velora/internal/ir"
)

// Judge asks the model whether an edit is cosmetic or functional.
type Judge struct {
	client   Client
	settings Settings
}

// NewJudge creates a Judge over client.
func NewJudge(client Client, s Settings) *Judge {
	return &Judge{client: client, settings: s}
}

type judgeAnswer struct {
	Materiality string `json:"materiality"`
	Summary     string `json:"summary"`
}

// Judge implements classify.Judge. Answers other than cosmetic or functional
// are errors; the classifier then treats the change as functional.
func (j *Judge) Judge(ctx context.Context, previous, current string) (ir.Materiality, error) {
	if j.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.settings.Timeout)
		defer cancel()
	}
	out, err := j.client.Complete(ctx, JudgePrompt(previous, current, j.settings))
	if err != nil {
		return ir.MaterialityNone, fmt.Errorf("judge with %s: %w", j.client.Name(), err)
	}
	return parseJudgeAnswer(out)
}

func parseJudgeAnswer(out string) (ir.Materiality, error) {
	text := strings.TrimSpace(out)
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	var ans judgeAnswer
	if err := json.Unmarshal([]byte(text), &ans); err != nil {
		// Tolerate a bare one-word reply.
		ans.Materiality = text
	}
	switch strings.ToLower(strings.TrimSpace(ans.Materiality)) {
	case "cosmetic":
		return ir.MaterialityCosmetic, nil
	case "functional":
		return ir.MaterialityFunctional, nil
	}
	return ir.MaterialityNone, fmt.Errorf("%w: judge answered %q", ir.ErrMalformedOutput, truncate(text, 80))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
