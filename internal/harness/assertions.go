package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/velora/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// checkExpect records a result error for every expect field run n violates.
func checkExpect(n int, want *Expect, got RunTrace, result *Result) {
	if want == nil {
		return
	}
	fail := func(format string, args ...any) {
		result.AddError(fmt.Sprintf("run %d: ", n) + fmt.Sprintf(format, args...))
	}

	for _, id := range sortedKeys(want.Actions) {
		a, ok := got.Action(id)
		switch {
		case !ok:
			fail("%s: expected action %s, requirement not in result", id, want.Actions[id])
		case a.Action != want.Actions[id]:
			fail("%s: expected action %s, got %s", id, want.Actions[id], a.Action)
		}
	}
	for _, id := range sortedKeys(want.Outcomes) {
		a, ok := got.Action(id)
		switch {
		case !ok:
			fail("%s: expected outcome %s, requirement not in result", id, want.Outcomes[id])
		case a.Outcome != want.Outcomes[id]:
			fail("%s: expected outcome %s, got %s", id, want.Outcomes[id], a.Outcome)
		}
	}
	if want.Generations != nil && *want.Generations != got.Generations {
		fail("expected %d generation(s), got %d", *want.Generations, got.Generations)
	}
	if want.Committed != nil && *want.Committed != got.Committed {
		fail("expected committed=%t, got %t", *want.Committed, got.Committed)
	}
}

// evaluate checks one scenario-level assertion against the finished runs.
func evaluate(a Assertion, result *Result) error {
	switch a.Type {
	case AssertCount:
		return assertCount(a, result)
	case AssertMapping:
		return assertMapping(a, result)
	case AssertIDsStable:
		return assertIDsStable(a, result)
	case AssertIDsReplaced:
		return assertIDsReplaced(a, result)
	case AssertWarning:
		return assertWarning(a, result)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertCount(a Assertion, result *Result) error {
	run, ok := result.run(a.Run)
	if !ok {
		return fmt.Errorf("run %d was not executed", a.Run)
	}
	if got := run.Result.CountsByAction[a.Action]; got != a.Count {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d %s action(s) in run %d", a.Count, a.Action, a.Run),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

func assertMapping(a Assertion, result *Result) error {
	run, ok := result.run(a.Run)
	if !ok {
		return fmt.Errorf("run %d was not executed", a.Run)
	}
	want := slices.Clone(a.Requirements)
	slices.Sort(want)
	if got := run.Mapped(); !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertMapping,
			Expected: fmt.Sprintf("mapping [%s] after run %d", strings.Join(want, ", "), a.Run),
			Actual:   fmt.Sprintf("[%s]", strings.Join(got, ", ")),
		}
	}
	return nil
}

// actionPair returns the records of a.Requirement in both runs of a.Runs.
func actionPair(a Assertion, result *Result) (ir.ActionRecord, ir.ActionRecord, error) {
	var recs [2]ir.ActionRecord
	for i, n := range a.Runs {
		run, ok := result.run(n)
		if !ok {
			return recs[0], recs[1], fmt.Errorf("run %d was not executed", n)
		}
		rec, ok := run.Action(a.Requirement)
		if !ok {
			return recs[0], recs[1], fmt.Errorf("%s is not in the result of run %d", a.Requirement, n)
		}
		recs[i] = rec
	}
	return recs[0], recs[1], nil
}

func assertIDsStable(a Assertion, result *Result) error {
	first, second, err := actionPair(a, result)
	if err != nil {
		return err
	}
	if len(first.After) == 0 || !slices.Equal(first.After, second.After) {
		return &AssertionError{
			Type:     AssertIDsStable,
			Expected: fmt.Sprintf("%s to keep ids %v", a.Requirement, first.After),
			Actual:   fmt.Sprintf("%v", second.After),
		}
	}
	return nil
}

func assertIDsReplaced(a Assertion, result *Result) error {
	first, second, err := actionPair(a, result)
	if err != nil {
		return err
	}
	for _, id := range second.After {
		if slices.Contains(first.After, id) {
			return &AssertionError{
				Type:     AssertIDsReplaced,
				Expected: fmt.Sprintf("%s to get fresh ids", a.Requirement),
				Actual:   fmt.Sprintf("%s kept across runs %d and %d", id, a.Runs[0], a.Runs[1]),
			}
		}
	}
	superseded := slices.Clone(second.Superseded)
	slices.Sort(superseded)
	if len(first.After) == 0 || !slices.Equal(superseded, first.After) {
		return &AssertionError{
			Type:     AssertIDsReplaced,
			Expected: fmt.Sprintf("%s to supersede %v", a.Requirement, first.After),
			Actual:   fmt.Sprintf("%v", second.Superseded),
		}
	}
	return nil
}

func assertWarning(a Assertion, result *Result) error {
	run, ok := result.run(a.Run)
	if !ok {
		return fmt.Errorf("run %d was not executed", a.Run)
	}
	for _, w := range run.Result.Warnings {
		if w.Kind == a.Kind && (a.Requirement == "" || w.RequirementID == a.Requirement) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertWarning,
		Expected: fmt.Sprintf("%s warning for %q in run %d", a.Kind, a.Requirement, a.Run),
		Actual:   fmt.Sprintf("%d warning(s), none matching", len(run.Result.Warnings)),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
