package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/velora/internal/ir"
)

var codeFence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// ParseTestCases extracts test cases from model output.
//
// The expected shape is Separator-delimited blocks of "Field: value" lines;
// a JSON array of objects is accepted too. Field names match the template
// case-insensitively, optionally behind a "-" bullet, and a value runs until
// the next field. Blocks naming fewer than half the template's fields are
// dropped. Missing fields take the template default, and the test case id
// field is cleared so the caller can assign a content-addressed one.
//
// Output yielding no test case is an ir.ErrMalformedOutput.
func ParseTestCases(output string, tmpl ir.Template) ([]ir.TestCase, error) {
	text := strings.TrimSpace(strings.ReplaceAll(output, "**", ""))
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	var cases []ir.TestCase
	if strings.HasPrefix(text, "[") {
		parsed, err := parseJSONCases(text, tmpl)
		if err != nil {
			return nil, err
		}
		cases = parsed
	} else {
		patterns := fieldPatterns(tmpl)
		for _, block := range strings.Split(text, Separator) {
			block = strings.TrimSpace(block)
			if block == "" {
				continue
			}
			if tc, ok := parseBlock(block, tmpl, patterns); ok {
				cases = append(cases, tc)
			}
		}
	}

	if len(cases) == 0 {
		return nil, fmt.Errorf("%w: no test case could be parsed from %d bytes of output", ir.ErrMalformedOutput, len(output))
	}
	return cases, nil
}

type fieldMatch struct {
	field      string
	start      int
	valueStart int
}

func fieldPatterns(tmpl ir.Template) map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(tmpl))
	for _, f := range tmpl {
		patterns[f.Name] = regexp.MustCompile(`(?im)^[ \t]*-?[ \t]*` + regexp.QuoteMeta(f.Name) + `[ \t]*:`)
	}
	return patterns
}

func parseBlock(block string, tmpl ir.Template, patterns map[string]*regexp.Regexp) (ir.TestCase, bool) {
	var matches []fieldMatch
	for _, f := range tmpl {
		for _, loc := range patterns[f.Name].FindAllStringIndex(block, -1) {
			matches = append(matches, fieldMatch{field: f.Name, start: loc[0], valueStart: loc[1]})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].start < matches[j].start })

	tc := make(ir.TestCase, len(tmpl))
	for i, m := range matches {
		end := len(block)
		if i+1 < len(matches) {
			end = matches[i+1].start
		}
		if value := strings.TrimSpace(block[m.valueStart:end]); value != "" {
			tc[m.field] = value
		}
	}
	if len(tc) < len(tmpl)/2 {
		return nil, false
	}
	return complete(tc, tmpl), true
}

func parseJSONCases(text string, tmpl ir.Template) ([]ir.TestCase, error) {
	var raw []map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ir.ErrMalformedOutput, err)
	}

	byFold := make(map[string]string, len(tmpl))
	for _, f := range tmpl {
		byFold[strings.ToLower(f.Name)] = f.Name
	}

	var cases []ir.TestCase
	for _, obj := range raw {
		tc := make(ir.TestCase, len(tmpl))
		for k, v := range obj {
			name, ok := byFold[strings.ToLower(strings.TrimSpace(k))]
			if !ok {
				continue
			}
			if s := strings.TrimSpace(stringify(v)); s != "" {
				tc[name] = s
			}
		}
		if len(tc) < len(tmpl)/2 {
			continue
		}
		cases = append(cases, complete(tc, tmpl))
	}
	return cases, nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []any:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = stringify(p)
		}
		return strings.Join(parts, "\n")
	default:
		return fmt.Sprint(val)
	}
}

func complete(tc ir.TestCase, tmpl ir.Template) ir.TestCase {
	for _, f := range tmpl {
		if _, ok := tc[f.Name]; !ok {
			tc[f.Name] = f.Default
		}
	}
	if _, ok := tc[ir.FieldTestCaseID]; ok {
		tc[ir.FieldTestCaseID] = ""
	}
	return tc
}
