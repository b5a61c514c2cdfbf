package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/roach88/velora/internal/ir"
)

// WriteText writes a human-readable summary of result to w.
func WriteText(w io.Writer, result ir.ReconciliationResult) error {
	var b strings.Builder

	fmt.Fprintf(&b, "mode: %s\n", result.Mode)
	fmt.Fprintf(&b, "actions: CREATE=%d REGENERATE=%d SKIP=%d RETIRE=%d\n",
		result.CountsByAction[ir.ActionCreate],
		result.CountsByAction[ir.ActionRegenerate],
		result.CountsByAction[ir.ActionSkip],
		result.CountsByAction[ir.ActionRetire])
	fmt.Fprintf(&b, "outcomes: succeeded=%d failed=%d skipped=%d\n",
		result.CountsByOutcome[ir.OutcomeSucceeded],
		result.CountsByOutcome[ir.OutcomeFailed],
		result.CountsByOutcome[ir.OutcomeSkipped])

	for _, a := range result.Actions {
		if a.Action == ir.ActionSkip && a.Outcome == ir.OutcomeSkipped {
			continue
		}
		fmt.Fprintf(&b, "  %-10s %-9s %s", a.Action, a.Outcome, a.RequirementID)
		if len(a.After) > 0 {
			fmt.Fprintf(&b, " -> %s", strings.Join(a.After, ","))
		}
		if len(a.Superseded) > 0 {
			fmt.Fprintf(&b, " (superseded %s)", strings.Join(a.Superseded, ","))
		}
		if a.ErrorKind != "" {
			fmt.Fprintf(&b, " [%s]", a.ErrorKind)
		}
		b.WriteByte('\n')
	}

	writeIssues(&b, "errors", result.Errors)
	writeIssues(&b, "warnings", result.Warnings)

	_, err := io.WriteString(w, b.String())
	return err
}

func writeIssues(b *strings.Builder, label string, issues []ir.Issue) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", label)
	for _, is := range issues {
		subject := is.RequirementID
		if subject == "" {
			subject = "run"
		}
		if is.Cause != "" {
			fmt.Fprintf(b, "  %s %s (%s): %s\n", subject, is.Kind, is.Cause, is.Message)
			continue
		}
		fmt.Fprintf(b, "  %s %s: %s\n", subject, is.Kind, is.Message)
	}
}
