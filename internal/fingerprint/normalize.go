package fingerprint

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// typography folds characters that editors and converters substitute freely.
var typography = strings.NewReplacer(
	"\u2018", "'", "\u2019", "'", "\u201A", "'", "\u201B", "'",
	"\u201C", `"`, "\u201D", `"`, "\u201E", `"`, "\u201F", `"`,
	"\u2013", "-", "\u2014", "-", "\u2212", "-",
	"\u2026", "...",
	"\u00A0", " ", "\u202F", " ", "\u2007", " ",
	"\u200B", "", "\u200C", "", "\u200D", "", "\uFEFF", "",
	"\r\n", "\n", "\r", "\n",
)

// bulletPrefix matches list markers that readers render differently
// between runs ("*", "-", "+", "•", "◦", "▪").
var bulletPrefix = regexp.MustCompile(`^[*+\-\x{2022}\x{25E6}\x{25AA}]\s+`)

// Normalize returns the canonical text form of a requirement. Two texts that
// differ only in whitespace, Unicode composition, typographic punctuation or
// bullet glyphs normalize to the same string. Case and wording are preserved.
func Normalize(text string) string {
	text = norm.NFC.String(typography.Replace(text))

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.FieldsFunc(line, unicode.IsSpace), " ")
		if line == "" {
			continue
		}
		out = append(out, bulletPrefix.ReplaceAllString(line, "- "))
	}
	return strings.Join(out, "\n")
}

// Fingerprint returns the content hash of requirement text after normalization.
func Fingerprint(text string) string {
	return hashNormalized(Normalize(text))
}
