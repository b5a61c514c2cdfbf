package ir

import (
	"slices"
	"time"
)

// UpdateMode is the configured reconciliation policy.
type UpdateMode string

const (
	ModeNewOnly     UpdateMode = "new_only"
	ModeFullSync    UpdateMode = "full_sync"
	ModeIntelligent UpdateMode = "intelligent"
)

// ValidModes defines allowed update modes.
var ValidModes = map[UpdateMode]bool{
	ModeNewOnly:     true,
	ModeFullSync:    true,
	ModeIntelligent: true,
}

// RawRequirement is what a document reader emits: requirement text with a
// stable positional identity (document order and heading path).
type RawRequirement struct {
	Position   int      `json:"position"` // 1-based document order
	Path       []string `json:"path"`     // heading titles from outermost to innermost
	Title      string   `json:"title"`
	ExplicitID string   `json:"explicit_id,omitempty"` // e.g. "REQ-001" from the header
	Text       string   `json:"text"`
}

// RequirementUnit is one requirement as seen by the current run.
// Recomputed every run, never persisted.
type RequirementUnit struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Position       int    `json:"position"`
	Text           string `json:"text"`
	NormalizedText string `json:"normalized_text"`
	Fingerprint    string `json:"fingerprint"`
	Ambiguous      bool   `json:"ambiguous,omitempty"` // positional fallback identity
}

// ChangeKind classifies a requirement delta against the committed baseline.
type ChangeKind string

const (
	ChangeAdded     ChangeKind = "added"
	ChangeRemoved   ChangeKind = "removed"
	ChangeModified  ChangeKind = "modified"
	ChangeUnchanged ChangeKind = "unchanged"
)

// Materiality says whether a modification needs regeneration.
// The zero value means "not assessed" and is treated as functional.
type Materiality string

const (
	MaterialityNone       Materiality = ""
	MaterialityCosmetic   Materiality = "cosmetic"
	MaterialityFunctional Materiality = "functional"
	MaterialityUnknown    Materiality = "unknown"
)

// DiffSummary counts changed lines between the previous and current text.
type DiffSummary struct {
	LinesAdded   int `json:"lines_added"`
	LinesRemoved int `json:"lines_removed"`
}

// ChangeRecord is the classifier's verdict for one requirement.
type ChangeRecord struct {
	RequirementID       string      `json:"requirement_id"`
	Kind                ChangeKind  `json:"kind"`
	PreviousFingerprint string      `json:"previous_fingerprint,omitempty"`
	CurrentFingerprint  string      `json:"current_fingerprint,omitempty"`
	Materiality         Materiality `json:"materiality,omitempty"`
	Order               int         `json:"order"` // deterministic position in the run
	PreviousText        string      `json:"-"`
	CurrentText         string      `json:"-"`
	Diff                DiffSummary `json:"diff"`
}

// MappingEntry links a requirement to the test cases derived from it.
type MappingEntry struct {
	RequirementID   string    `json:"requirement_id"`
	TestCaseIDs     []string  `json:"test_case_ids"`
	LastFingerprint string    `json:"last_fingerprint"`
	LastText        string    `json:"last_text,omitempty"` // normalized text at generation time
	LastGeneratedAt time.Time `json:"last_generated_at"`
	PolicyVersion   string    `json:"policy_version"`
}

// Clone returns a copy that shares no slices with e.
func (e MappingEntry) Clone() MappingEntry {
	e.TestCaseIDs = slices.Clone(e.TestCaseIDs)
	return e
}

// TestCase is one generated test case keyed by template field name.
type TestCase map[string]string

// TemplateField is one column of the test case template.
type TemplateField struct {
	Name    string `json:"name" yaml:"name"`
	Default string `json:"default" yaml:"default"`
}

// Template is the ordered set of test case fields.
type Template []TemplateField

// Names returns the field names in template order.
func (t Template) Names() []string {
	names := make([]string, len(t))
	for i, f := range t {
		names[i] = f.Name
	}
	return names
}

// FieldTestCaseID is the template field that carries the test case id.
const FieldTestCaseID = "Test Case ID"

// DefaultTemplate returns the standard test case template.
func DefaultTemplate() Template {
	return Template{
		{Name: FieldTestCaseID},
		{Name: "Test Case Title"},
		{Name: "Description"},
		{Name: "Preconditions"},
		{Name: "Test Steps"},
		{Name: "Expected Result"},
		{Name: "Priority", Default: "Medium"},
		{Name: "Test Type", Default: "Functional"},
		{Name: "Status", Default: "Not Executed"},
	}
}

// CacheRecord is a completed generation. Immutable once written.
type CacheRecord struct {
	Key           string        `json:"key"`
	Fingerprint   string        `json:"fingerprint"`
	PolicyVersion string        `json:"policy_version"`
	Payload       []TestCase    `json:"payload"`
	CreatedAt     time.Time     `json:"created_at"`
	TTL           time.Duration `json:"ttl"` // 0 = never expires
}

// ExpiresAt returns the expiry instant, or the zero time if the record never expires.
func (r CacheRecord) ExpiresAt() time.Time {
	if r.TTL <= 0 {
		return time.Time{}
	}
	return r.CreatedAt.Add(r.TTL)
}

// Expired reports whether the record is past its TTL at now.
func (r CacheRecord) Expired(now time.Time) bool {
	exp := r.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}
