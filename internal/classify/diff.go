package classify

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/roach88/velora/internal/ir"
)

// Diff counts lines added and removed between two normalized texts.
func Diff(previous, current string) ir.DiffSummary {
	m := difflib.NewMatcher(splitLines(previous), splitLines(current))
	var s ir.DiffSummary
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'r':
			s.LinesRemoved += op.I2 - op.I1
			s.LinesAdded += op.J2 - op.J1
		case 'd':
			s.LinesRemoved += op.I2 - op.I1
		case 'i':
			s.LinesAdded += op.J2 - op.J1
		}
	}
	return s
}

// UnifiedDiff renders a unified diff for logs and judge prompts.
func UnifiedDiff(previous, current string) string {
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(previous),
		B:        difflib.SplitLines(current),
		FromFile: "previous",
		ToFile:   "current",
		Context:  1,
	})
	if err != nil {
		return ""
	}
	return out
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
