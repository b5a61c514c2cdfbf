package harness

import (
	"slices"

	"github.com/roach88/velora/internal/ir"
)

// RunTrace is what one run of a scenario produced.
type RunTrace struct {
	RunID       string                  `json:"run_id"`
	Mode        ir.UpdateMode           `json:"mode"`
	Result      ir.ReconciliationResult `json:"result"`
	Digest      string                  `json:"digest"`
	Generations int64                   `json:"generations"`
	Committed   bool                    `json:"committed"`

	// Mapping is the committed mapping store after the run, sorted by
	// requirement id.
	Mapping []ir.MappingEntry `json:"mapping"`
}

// Action returns the action recorded for requirementID.
func (t RunTrace) Action(requirementID string) (ir.ActionRecord, bool) {
	for _, a := range t.Result.Actions {
		if a.RequirementID == requirementID {
			return a, true
		}
	}
	return ir.ActionRecord{}, false
}

// Mapped returns the requirement ids in the committed mapping, sorted.
func (t RunTrace) Mapped() []string {
	ids := make([]string, len(t.Mapping))
	for i, e := range t.Mapping {
		ids[i] = e.RequirementID
	}
	slices.Sort(ids)
	return ids
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Runs holds one trace per executed run, in order.
	Runs []RunTrace `json:"runs"`

	// Errors contains failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Runs:   []RunTrace{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// run returns the trace for the 1-based run index n.
func (r *Result) run(n int) (RunTrace, bool) {
	if n < 1 || n > len(r.Runs) {
		return RunTrace{}, false
	}
	return r.Runs[n-1], true
}
