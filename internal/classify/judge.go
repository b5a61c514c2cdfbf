package classify

import (
	"context"
	"strings"
	"unicode"

	"github.com/roach88/velora/internal/ir"
)

// LexicalJudge treats a change as cosmetic when the texts are equal after
// folding case, punctuation and whitespace. It never fails.
type LexicalJudge struct{}

// Judge implements Judge.
func (LexicalJudge) Judge(_ context.Context, previous, current string) (ir.Materiality, error) {
	if fold(previous) == fold(current) {
		return ir.MaterialityCosmetic, nil
	}
	return ir.MaterialityFunctional, nil
}

func fold(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, " ")
}
