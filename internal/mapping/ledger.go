// Package mapping holds the requirement to test-case ledger.
//
// The ledger is read from its backend once when a run starts, mutated in
// memory by the orchestrator, and committed once at run end. Backends must
// make Commit atomic: a failed commit leaves the previously committed state
// intact for the next run.
//
// Concurrent runs against the same backend are not supported; the invoking
// environment must serialize them.
package mapping

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/velora/internal/ir"
)

// Backend persists the mapping record set.
type Backend interface {
	Load(ctx context.Context) ([]ir.MappingEntry, error)
	Commit(ctx context.Context, entries []ir.MappingEntry) error
}

// Ledger is the in-memory working copy of the mapping store.
// Not safe for concurrent use; the orchestrator is its only writer.
type Ledger struct {
	backend Backend
	entries map[string]ir.MappingEntry
	dirty   bool
}

// Open loads the committed record set from backend.
func Open(ctx context.Context, backend Backend) (*Ledger, error) {
	entries, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load mapping store: %w", err)
	}
	l := &Ledger{backend: backend, entries: make(map[string]ir.MappingEntry, len(entries))}
	for _, e := range entries {
		if _, dup := l.entries[e.RequirementID]; dup {
			return nil, fmt.Errorf("load mapping store: duplicate requirement %q", e.RequirementID)
		}
		l.entries[e.RequirementID] = e.Clone()
	}
	return l, nil
}

// Get returns the entry for a requirement.
func (l *Ledger) Get(requirementID string) (ir.MappingEntry, bool) {
	e, ok := l.entries[requirementID]
	if !ok {
		return ir.MappingEntry{}, false
	}
	return e.Clone(), true
}

// Upsert inserts or replaces the entry for e.RequirementID.
func (l *Ledger) Upsert(e ir.MappingEntry) {
	l.entries[e.RequirementID] = e.Clone()
	l.dirty = true
}

// Remove deletes the entry for a requirement. Removing a missing entry is a no-op.
func (l *Ledger) Remove(requirementID string) {
	if _, ok := l.entries[requirementID]; ok {
		delete(l.entries, requirementID)
		l.dirty = true
	}
}

// All returns every entry sorted by requirement id.
func (l *Ledger) All() []ir.MappingEntry {
	out := make([]ir.MappingEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.Clone())
	}
	slices.SortFunc(out, func(a, b ir.MappingEntry) int {
		return strings.Compare(a.RequirementID, b.RequirementID)
	})
	return out
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Dirty reports whether the ledger changed since it was opened or last committed.
func (l *Ledger) Dirty() bool {
	return l.dirty
}

// Commit writes the ledger through the backend. A clean ledger is not rewritten.
func (l *Ledger) Commit(ctx context.Context) error {
	if !l.dirty {
		return nil
	}
	if err := l.backend.Commit(ctx, l.All()); err != nil {
		return fmt.Errorf("commit mapping store: %w", err)
	}
	l.dirty = false
	return nil
}
