package document

import (
	"regexp"
	"strings"

	"github.com/roach88/velora/internal/ir"
)

// reqHeaderLevel nests "REQ-001: ..." style headers below any real heading.
const reqHeaderLevel = 10

// preambleTitle names text that appears before the first heading.
const preambleTitle = "Preamble"

// requirementHeader matches lines such as "REQ-001: Login", "FR_12 - Export"
// or "US-3 | Checkout".
var requirementHeader = regexp.MustCompile(`(?i)^\s*((?:req|fr|nfr|us)[-_ ]?\d+[a-z0-9.]*)\s*(?:[:|\-\x{2013}\x{2014}]\s*(.*))?$`)

// parseRequirementHeader returns the normalized id and the remaining title.
func parseRequirementHeader(line string) (id, title string, ok bool) {
	m := requirementHeader.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	id = strings.ToUpper(strings.NewReplacer("_", "-", " ", "-").Replace(m[1]))
	return id, strings.TrimSpace(m[2]), true
}

type heading struct {
	level int
	title string
}

// sectionizer folds a stream of headings and body text into sections.
type sectionizer struct {
	stack   []heading
	current *ir.RawRequirement
	body    strings.Builder
	out     []ir.RawRequirement
}

func (s *sectionizer) heading(level int, title string) {
	s.flush()
	for len(s.stack) > 0 && s.stack[len(s.stack)-1].level >= level {
		s.stack = s.stack[:len(s.stack)-1]
	}
	title = strings.TrimSpace(title)
	s.stack = append(s.stack, heading{level: level, title: title})

	path := make([]string, len(s.stack))
	for i, h := range s.stack {
		path[i] = h.title
	}
	s.current = &ir.RawRequirement{Path: path, Title: title}
	if id, rest, ok := parseRequirementHeader(title); ok {
		s.current.ExplicitID = id
		if rest != "" {
			s.current.Title = rest
		}
	}
}

func (s *sectionizer) text(text string) {
	if s.current == nil {
		if strings.TrimSpace(text) == "" {
			return
		}
		s.current = &ir.RawRequirement{Path: []string{preambleTitle}, Title: preambleTitle}
	}
	s.body.WriteString(text)
}

func (s *sectionizer) line(line string) {
	s.text(line + "\n")
}

func (s *sectionizer) flush() {
	if s.current == nil {
		return
	}
	s.current.Text = strings.TrimSpace(s.body.String())
	s.body.Reset()
	if s.current.Text != "" {
		s.current.Position = len(s.out) + 1
		s.out = append(s.out, *s.current)
	}
	s.current = nil
}

func (s *sectionizer) finish() []ir.RawRequirement {
	s.flush()
	if s.out == nil {
		return []ir.RawRequirement{}
	}
	return s.out
}
