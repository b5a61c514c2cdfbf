package ir

// ActionKind is what the orchestrator does for one requirement.
type ActionKind string

const (
	ActionCreate     ActionKind = "CREATE"
	ActionRegenerate ActionKind = "REGENERATE"
	ActionSkip       ActionKind = "SKIP"
	ActionRetire     ActionKind = "RETIRE"
)

// Outcome is how an action resolved.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// TestCaseRow is a generated test case ready for the destination writer.
type TestCaseRow struct {
	ID            string   `json:"id"`
	RequirementID string   `json:"requirement_id"`
	Fields        TestCase `json:"fields"`
}

// ActionRecord is one line of the reconciliation result.
//
// Before and After are the requirement's test case id sets around the run.
// Superseded lists ids the destination writer must delete or replace.
type ActionRecord struct {
	Order         int           `json:"order"`
	RequirementID string        `json:"requirement_id"`
	Change        ChangeKind    `json:"change"`
	Materiality   Materiality   `json:"materiality,omitempty"`
	Action        ActionKind    `json:"action"`
	Outcome       Outcome       `json:"outcome"`
	ErrorKind     ErrorKind     `json:"error_kind,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Before        []string      `json:"before"`
	After         []string      `json:"after"`
	Superseded    []string      `json:"superseded"`
	TestCases     []TestCaseRow `json:"test_cases,omitempty"`
}

// Issue is an error or warning attached to a requirement (or to the run when
// RequirementID is empty).
type Issue struct {
	RequirementID string    `json:"requirement_id,omitempty"`
	Kind          ErrorKind `json:"kind"`
	Cause         string    `json:"cause,omitempty"`
	Message       string    `json:"message"`
}

// ReconciliationResult is the structured summary of a run.
// Produced once per run by the report builder and never mutated afterwards.
type ReconciliationResult struct {
	Mode            UpdateMode         `json:"mode"`
	Actions         []ActionRecord     `json:"actions"`
	CountsByAction  map[ActionKind]int `json:"counts_by_action"`
	CountsByOutcome map[Outcome]int    `json:"counts_by_outcome"`
	Errors          []Issue            `json:"errors"`
	Warnings        []Issue            `json:"warnings"`
}

// Failed reports whether any action failed.
func (r ReconciliationResult) Failed() bool {
	return r.CountsByOutcome[OutcomeFailed] > 0
}
