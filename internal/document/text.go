package document

import (
	"context"
	"strings"

	"github.com/roach88/velora/internal/ir"
)

// TextReader reads plain text. Lines starting with '#' are headings and
// lines such as "REQ-001: Title" open a requirement.
type TextReader struct{}

// Read implements Reader.
func (TextReader) Read(ctx context.Context, path string) ([]ir.RawRequirement, error) {
	data, err := readFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return ParseText(string(data)), nil
}

// ParseText splits plain text into requirement sections.
func ParseText(src string) []ir.RawRequirement {
	var s sectionizer
	for _, line := range strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n") {
		if level, title, ok := atxHeading(line); ok {
			s.heading(level, title)
			continue
		}
		if _, _, ok := parseRequirementHeader(line); ok {
			s.heading(reqHeaderLevel, line)
			continue
		}
		s.line(line)
	}
	return s.finish()
}

func atxHeading(line string) (int, string, bool) {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 {
		return 0, "", false
	}
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0, "", false
	}
	rest := trimmed[level:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return 0, "", false
	}
	return level, strings.TrimSpace(strings.TrimRight(strings.TrimSpace(rest), "#")), true
}
