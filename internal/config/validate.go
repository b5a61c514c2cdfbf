package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/velora/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// schema compiles the embedded schema in a fresh context; a cue.Context is
// not safe for concurrent use.
func schema() (*cue.Context, cue.Value) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue")).
		LookupPath(cue.ParsePath("#Config"))
	return ctx, v
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration:\n  " + strings.Join(e.Problems, "\n  ")
}

// Validate checks c against the schema, plus the rules CUE cannot express
// over the encoded form.
func (c Config) Validate() error {
	ctx, s := schema()
	if err := s.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	v := s.Unify(ctx.Encode(c.schemaView()))
	var problems []string
	if err := v.Validate(cue.Concrete(true)); err != nil {
		for _, e := range errors.Errors(err) {
			path := strings.Join(e.Path(), ".")
			format, args := e.Msg()
			problems = append(problems, fmt.Sprintf("%s: %s", path, fmt.Sprintf(format, args...)))
		}
	}

	seen := make(map[string]bool, len(c.Template))
	for _, f := range c.Template {
		key := strings.ToLower(f.Name)
		if seen[key] {
			problems = append(problems, fmt.Sprintf("template: duplicate field %q", f.Name))
		}
		seen[key] = true
	}
	if len(c.Template) > 0 && !seen[strings.ToLower(ir.FieldTestCaseID)] {
		problems = append(problems, fmt.Sprintf("template: must include %q", ir.FieldTestCaseID))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// schemaView is the plain-data form of c that the schema constrains.
// Durations are encoded as milliseconds and secrets are left out.
func (c Config) schemaView() map[string]any {
	fields := make([]any, len(c.Template))
	for i, f := range c.Template {
		fields[i] = map[string]any{"name": f.Name, "default": f.Default}
	}
	return map[string]any{
		"source":       map[string]any{"path": c.Source.Path},
		"mode":         string(c.Mode),
		"policy_label": c.PolicyLabel,
		"concurrency":  c.Concurrency,
		"run":          map[string]any{"timeout_ms": c.Run.Timeout.Milliseconds()},
		"template":     fields,
		"llm": map[string]any{
			"provider":    c.LLM.Provider,
			"model":       c.LLM.Model,
			"base_url":    c.LLM.BaseURL,
			"max_retries": c.LLM.MaxRetries,
			"temperature": c.LLM.Temperature,
			"max_tokens":  c.LLM.MaxTokens,
			"timeout_ms":  c.LLM.Timeout.Milliseconds(),
			"judge":       c.LLM.Judge,
		},
		"mapping": map[string]any{
			"backend": c.Mapping.Backend,
			"path":    c.Mapping.Path,
		},
		"cache": map[string]any{
			"ttl_ms":        c.Cache.TTL.Milliseconds(),
			"remote":        c.Cache.Remote,
			"badger_dir":    c.Cache.BadgerDir,
			"remote_ttl_ms": c.Cache.RemoteTTL.Milliseconds(),
			"upstash_url":   c.Cache.UpstashURL,
		},
		"output": map[string]any{
			"result":  c.Output.Result,
			"metrics": c.Output.Metrics,
		},
		"log": map[string]any{"level": c.Log.Level},
	}
}
