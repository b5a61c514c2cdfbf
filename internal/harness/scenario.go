package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/velora/internal/ir"
)

// Scenario defines a sequence of reconciliation runs sharing one mapping
// store and one remote cache tier.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Mode is the update mode of every run that does not set its own.
	Mode ir.UpdateMode `yaml:"mode"`

	// Judge decides materiality in intelligent mode: lexical (default),
	// or a fixed verdict of cosmetic, functional or unknown.
	Judge string `yaml:"judge,omitempty"`

	// PerCall is how many test cases each generation yields (default 2).
	PerCall int `yaml:"per_call,omitempty"`

	// Concurrency bounds concurrent generations (default 4).
	Concurrency int `yaml:"concurrency,omitempty"`

	// TTL is the cache record lifetime. Zero keeps the cache default.
	TTL time.Duration `yaml:"ttl,omitempty"`

	// Runs are executed in order.
	Runs []Step `yaml:"runs"`

	// Assertions are checked after the last run.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one reconciliation run.
type Step struct {
	// Document is the Markdown source for this run.
	Document string `yaml:"document,omitempty"`

	// DocumentFile is read into Document when the scenario is loaded.
	// Relative paths resolve against the scenario's base path.
	DocumentFile string `yaml:"document_file,omitempty"`

	Mode  ir.UpdateMode `yaml:"mode,omitempty"`
	Judge string        `yaml:"judge,omitempty"`

	// Advance moves the clock forward before the run.
	Advance time.Duration `yaml:"advance,omitempty"`

	// Fail maps requirement ids to a scripted generation failure cause.
	Fail map[string]string `yaml:"fail,omitempty"`

	// Expect is checked against this run's result. Nil checks nothing.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies what a single run must produce. Only the fields that are
// set are checked; actions and outcomes are subset matches.
type Expect struct {
	Actions     map[string]ir.ActionKind `yaml:"actions,omitempty"`
	Outcomes    map[string]ir.Outcome    `yaml:"outcomes,omitempty"`
	Generations *int64                   `yaml:"generations,omitempty"`
	Committed   *bool                    `yaml:"committed,omitempty"`
}

// Assertion compares run results after the scenario finishes.
type Assertion struct {
	// Type is one of count, mapping, ids_stable, ids_replaced, warning.
	Type string `yaml:"type"`

	// Run is the 1-based run index (count, mapping, warning).
	Run int `yaml:"run,omitempty"`

	// Runs is an ordered pair of 1-based run indexes (ids_stable, ids_replaced).
	Runs []int `yaml:"runs,omitempty"`

	Requirement  string        `yaml:"requirement,omitempty"`
	Requirements []string      `yaml:"requirements,omitempty"`
	Action       ir.ActionKind `yaml:"action,omitempty"`
	Kind         ir.ErrorKind  `yaml:"kind,omitempty"`

	// Count is the expected number of actions (count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertCount       = "count"
	AssertMapping     = "mapping"
	AssertIDsStable   = "ids_stable"
	AssertIDsReplaced = "ids_replaced"
	AssertWarning     = "warning"
)

// Judge names accepted by Scenario.Judge and Step.Judge.
const (
	JudgeLexical    = "lexical"
	JudgeCosmetic   = "cosmetic"
	JudgeFunctional = "functional"
	JudgeUnknown    = "unknown"
)

var judgeVerdicts = map[string]ir.Materiality{
	JudgeCosmetic:   ir.MaterialityCosmetic,
	JudgeFunctional: ir.MaterialityFunctional,
	JudgeUnknown:    ir.MaterialityUnknown,
}

// failureCauses maps Step.Fail values to the sentinel a provider would wrap.
var failureCauses = map[string]error{
	"rate_limited":     ir.ErrRateLimited,
	"auth":             ir.ErrAuth,
	"malformed_output": ir.ErrMalformedOutput,
	"unavailable":      ir.ErrUnavailable,
}

// LoadScenario reads and parses a scenario YAML file. Document files are
// resolved relative to the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file, resolving
// document_file paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, basePath)
}

// ParseScenario parses scenario YAML. Unknown fields are rejected so typos
// fail loudly.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i := range scenario.Runs {
		step := &scenario.Runs[i]
		if step.DocumentFile == "" {
			continue
		}
		if step.Document != "" {
			return nil, fmt.Errorf("invalid scenario: runs[%d]: document and document_file are mutually exclusive", i)
		}
		p := step.DocumentFile
		if !filepath.IsAbs(p) && basePath != "" {
			p = filepath.Join(basePath, p)
		}
		doc, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid scenario: runs[%d]: %w", i, err)
		}
		step.Document = string(doc)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if !ir.ValidModes[s.Mode] {
		return fmt.Errorf("mode must be one of new_only, full_sync, intelligent (got %q)", s.Mode)
	}
	if err := validateJudge(s.Judge); err != nil {
		return err
	}
	if s.PerCall < 0 || s.Concurrency < 0 || s.TTL < 0 {
		return fmt.Errorf("per_call, concurrency and ttl must be non-negative")
	}
	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}

	for i, step := range s.Runs {
		if step.Mode != "" && !ir.ValidModes[step.Mode] {
			return fmt.Errorf("runs[%d]: unknown mode %q", i, step.Mode)
		}
		if err := validateJudge(step.Judge); err != nil {
			return fmt.Errorf("runs[%d]: %w", i, err)
		}
		if step.Advance < 0 {
			return fmt.Errorf("runs[%d]: advance must be non-negative", i)
		}
		for id, cause := range step.Fail {
			if _, ok := failureCauses[cause]; !ok {
				return fmt.Errorf("runs[%d].fail[%s]: unknown cause %q", i, id, cause)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, len(s.Runs)); err != nil {
			return err
		}
	}
	return nil
}

func validateJudge(name string) error {
	if name == "" || name == JudgeLexical {
		return nil
	}
	if _, ok := judgeVerdicts[name]; !ok {
		return fmt.Errorf("unknown judge %q", name)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion, runs int) error {
	inRange := func(n int) bool { return n >= 1 && n <= runs }

	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertCount:
		if !inRange(a.Run) {
			return fmt.Errorf("assertions[%d]: run %d out of range for count", index, a.Run)
		}
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertMapping:
		if !inRange(a.Run) {
			return fmt.Errorf("assertions[%d]: run %d out of range for mapping", index, a.Run)
		}
	case AssertIDsStable, AssertIDsReplaced:
		if a.Requirement == "" {
			return fmt.Errorf("assertions[%d]: requirement is required for %s", index, a.Type)
		}
		if len(a.Runs) != 2 || !inRange(a.Runs[0]) || !inRange(a.Runs[1]) || a.Runs[0] >= a.Runs[1] {
			return fmt.Errorf("assertions[%d]: runs must be two increasing run numbers for %s", index, a.Type)
		}
	case AssertWarning:
		if !inRange(a.Run) {
			return fmt.Errorf("assertions[%d]: run %d out of range for warning", index, a.Run)
		}
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for warning", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
