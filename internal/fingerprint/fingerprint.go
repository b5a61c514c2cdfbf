package fingerprint

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/roach88/velora/internal/ir"
)

func hashNormalized(normalized string) string {
	return ir.HashRequirement(normalized)
}

// Units turns reader output into requirement units.
//
// Identity comes from the explicit requirement id when the document has one,
// otherwise from the heading path. Units whose identity collides fall back to
// a positional id and are flagged Ambiguous; each collision yields a
// ClassificationAmbiguous warning. Units without text are dropped.
func Units(raw []ir.RawRequirement) ([]ir.RequirementUnit, []ir.Issue) {
	units := make([]ir.RequirementUnit, 0, len(raw))
	for _, r := range raw {
		normalized := Normalize(r.Text)
		if normalized == "" {
			continue
		}
		units = append(units, ir.RequirementUnit{
			ID:             identity(r),
			Title:          r.Title,
			Position:       r.Position,
			Text:           r.Text,
			NormalizedText: normalized,
			Fingerprint:    hashNormalized(normalized),
		})
	}

	seen := make(map[string]int, len(units))
	for _, u := range units {
		seen[u.ID]++
	}

	var warnings []ir.Issue
	for i := range units {
		u := &units[i]
		if u.ID != "" && seen[u.ID] == 1 {
			continue
		}
		original := u.ID
		u.ID = PositionalID(u.Position)
		u.Ambiguous = true
		warnings = append(warnings, ir.Issue{
			RequirementID: u.ID,
			Kind:          ir.KindClassificationAmbiguous,
			Message:       ambiguityMessage(original, u.Position),
		})
	}
	return units, warnings
}

// PositionalID is the fallback identity for a unit at a document position.
func PositionalID(position int) string {
	return fmt.Sprintf("pos-%04d", position)
}

func identity(r ir.RawRequirement) string {
	if id := strings.TrimSpace(r.ExplicitID); id != "" {
		return strings.ToUpper(id)
	}
	parts := make([]string, 0, len(r.Path))
	for _, p := range r.Path {
		if s := Slug(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// Slug lowercases s and joins its runs of letters, digits and combining
// marks with "-". Letters in any script are kept.
func Slug(s string) string {
	words := strings.FieldsFunc(strings.ToLower(Normalize(s)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r)
	})
	return strings.Join(words, "-")
}

func ambiguityMessage(original string, position int) string {
	if original == "" {
		return fmt.Sprintf("requirement at position %d has no heading or id; using positional identity", position)
	}
	return fmt.Sprintf("identity %q is not unique; requirement at position %d uses positional identity", original, position)
}
