package reconcile

import (
	"context"
	"slices"

	"github.com/roach88/velora/internal/fingerprint"
	"github.com/roach88/velora/internal/ir"
	"github.com/roach88/velora/internal/strategy"
)

// PlannedAction is one requirement's change record and the decision for it.
type PlannedAction struct {
	Change   ir.ChangeRecord   `json:"change"`
	Decision strategy.Decision `json:"decision"`
	Entry    *ir.MappingEntry  `json:"entry,omitempty"`
}

// Plan is the side-effect-free part of a run.
type Plan struct {
	Mode     ir.UpdateMode   `json:"mode"`
	Actions  []PlannedAction `json:"actions"`
	Warnings []ir.Issue      `json:"warnings"`
}

// Count returns how many planned actions are of kind.
func (p Plan) Count(kind ir.ActionKind) int {
	n := 0
	for _, a := range p.Actions {
		if a.Decision.Action == kind {
			n++
		}
	}
	return n
}

// Plan classifies units against the ledger and decides an action for each
// requirement. Nothing is generated or written. Plan fails only when ctx is
// cancelled while a judge is running.
func (o *Orchestrator) Plan(ctx context.Context, units []ir.RequirementUnit) (Plan, error) {
	return o.plan(ctx, units, nil)
}

// PlanDocument derives units from raw requirements and plans them. Identity
// fallbacks are reported as plan warnings.
func (o *Orchestrator) PlanDocument(ctx context.Context, raw []ir.RawRequirement) (Plan, error) {
	units, warnings := fingerprint.Units(raw)
	return o.plan(ctx, units, warnings)
}

func (o *Orchestrator) plan(ctx context.Context, units []ir.RequirementUnit, warnings []ir.Issue) (Plan, error) {
	records, judged, err := o.classifier.Classify(ctx, units, o.ledger, o.cfg.Mode)
	if err != nil {
		return Plan{}, err
	}
	warnings = append(slices.Clone(warnings), judged...)

	actions := make([]PlannedAction, len(records))
	for i, rec := range records {
		var entry *ir.MappingEntry
		if e, ok := o.ledger.Get(rec.RequirementID); ok {
			entry = &e
		}
		actions[i] = PlannedAction{
			Change:   rec,
			Decision: strategy.Decide(rec, entry, o.cfg.Mode),
			Entry:    entry,
		}
	}
	return Plan{Mode: o.cfg.Mode, Actions: actions, Warnings: warnings}, nil
}

// actionRecord starts the result line for pa with the requirement's current
// ids as both before and after.
func (pa PlannedAction) actionRecord(outcome ir.Outcome) ir.ActionRecord {
	var before []string
	if pa.Entry != nil {
		before = slices.Clone(pa.Entry.TestCaseIDs)
	}
	return ir.ActionRecord{
		Order:         pa.Change.Order,
		RequirementID: pa.Change.RequirementID,
		Change:        pa.Change.Kind,
		Materiality:   pa.Change.Materiality,
		Action:        pa.Decision.Action,
		Outcome:       outcome,
		Reason:        pa.Decision.Reason,
		Before:        before,
		After:         slices.Clone(before),
	}
}
