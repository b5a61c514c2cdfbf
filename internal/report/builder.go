// Package report aggregates per-requirement outcomes into the
// ReconciliationResult handed to the destination writer.
//
// The builder is pure: the same records in any arrival order build the same
// result, and Canonical renders it byte-identically.
package report

import (
	"cmp"
	"slices"

	"github.com/roach88/velora/internal/ir"
)

// Builder collects action records and issues for one run.
// Not safe for concurrent use; the orchestrator feeds it from one goroutine.
type Builder struct {
	mode     ir.UpdateMode
	actions  []ir.ActionRecord
	errors   []ir.Issue
	warnings []ir.Issue
}

// NewBuilder creates a builder for a run in mode.
func NewBuilder(mode ir.UpdateMode) *Builder {
	return &Builder{mode: mode}
}

// Record adds one resolved action.
func (b *Builder) Record(a ir.ActionRecord) {
	b.actions = append(b.actions, a)
}

// Error adds a per-requirement or run-level error.
func (b *Builder) Error(issue ir.Issue) {
	b.errors = append(b.errors, issue)
}

// Warn adds a recovered condition.
func (b *Builder) Warn(issue ir.Issue) {
	b.warnings = append(b.warnings, issue)
}

// Build returns the result. Actions are ordered by (Order, RequirementID),
// issues by (RequirementID, Kind, Message). Every action kind and outcome has
// a count, zero included.
func (b *Builder) Build() ir.ReconciliationResult {
	actions := make([]ir.ActionRecord, len(b.actions))
	for i, a := range b.actions {
		actions[i] = normalizeAction(a)
	}
	slices.SortStableFunc(actions, func(x, y ir.ActionRecord) int {
		return cmp.Or(cmp.Compare(x.Order, y.Order), cmp.Compare(x.RequirementID, y.RequirementID))
	})

	byAction := map[ir.ActionKind]int{
		ir.ActionCreate:     0,
		ir.ActionRegenerate: 0,
		ir.ActionSkip:       0,
		ir.ActionRetire:     0,
	}
	byOutcome := map[ir.Outcome]int{
		ir.OutcomeSucceeded: 0,
		ir.OutcomeFailed:    0,
		ir.OutcomeSkipped:   0,
	}
	for _, a := range actions {
		byAction[a.Action]++
		byOutcome[a.Outcome]++
	}

	return ir.ReconciliationResult{
		Mode:            b.mode,
		Actions:         actions,
		CountsByAction:  byAction,
		CountsByOutcome: byOutcome,
		Errors:          sortIssues(b.errors),
		Warnings:        sortIssues(b.warnings),
	}
}

func normalizeAction(a ir.ActionRecord) ir.ActionRecord {
	a.Before = sortedIDs(a.Before)
	a.After = sortedIDs(a.After)
	a.Superseded = sortedIDs(a.Superseded)
	a.TestCases = slices.Clone(a.TestCases)
	return a
}

func sortedIDs(ids []string) []string {
	out := slices.Clone(ids)
	if out == nil {
		return []string{}
	}
	slices.Sort(out)
	return out
}

func sortIssues(issues []ir.Issue) []ir.Issue {
	out := slices.Clone(issues)
	if out == nil {
		return []ir.Issue{}
	}
	slices.SortStableFunc(out, func(x, y ir.Issue) int {
		return cmp.Or(
			cmp.Compare(x.RequirementID, y.RequirementID),
			cmp.Compare(x.Kind, y.Kind),
			cmp.Compare(x.Message, y.Message),
		)
	})
	return out
}
