// Package cache implements the generation cache.
//
// Records are content addressed by ir.CacheKey. Lookups go to the
// process-local tier first, then to an optional remote tier shared across
// runs. On a miss the generator runs once per key, however many workers ask
// for that key at the same time, and the result is written through to both
// tiers.
//
// The cache is an optimization, not a correctness dependency: a remote tier
// that fails is dropped for the rest of the run and the cache continues
// local-only.
package cache

import (
	"context"
	"maps"
	"sync"

	"github.com/roach88/velora/internal/ir"
)

// Tier is one cache backend.
//
// Get reports found=false for a missing key; expiry is judged by the caller.
// Put must not overwrite a live record for the same key.
type Tier interface {
	Name() string
	Get(ctx context.Context, key string) (ir.CacheRecord, bool, error)
	Put(ctx context.Context, rec ir.CacheRecord) error
}

// Source tells where a GetOrGenerate result came from.
type Source string

const (
	SourceLocal     Source = "local"
	SourceRemote    Source = "remote"
	SourceGenerated Source = "generated"
	// SourceCoalesced marks a caller that waited on another caller's generation.
	SourceCoalesced Source = "coalesced"
)

// MemoryTier is the process-local tier.
type MemoryTier struct {
	mu      sync.RWMutex
	records map[string]ir.CacheRecord
}

// NewMemoryTier creates an empty MemoryTier.
func NewMemoryTier() *MemoryTier {
	return &MemoryTier{records: make(map[string]ir.CacheRecord)}
}

// Name implements Tier.
func (m *MemoryTier) Name() string {
	return "memory"
}

// Get implements Tier.
func (m *MemoryTier) Get(_ context.Context, key string) (ir.CacheRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	return rec, ok, nil
}

// Put implements Tier. An existing record is replaced only when rec was
// created at or after its expiry.
func (m *MemoryTier) Put(_ context.Context, rec ir.CacheRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.records[rec.Key]; ok && !old.Expired(rec.CreatedAt) {
		return nil
	}
	m.records[rec.Key] = cloneRecord(rec)
	return nil
}

// Len returns the number of records held.
func (m *MemoryTier) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func cloneRecord(rec ir.CacheRecord) ir.CacheRecord {
	payload := make([]ir.TestCase, len(rec.Payload))
	for i, tc := range rec.Payload {
		payload[i] = maps.Clone(tc)
	}
	rec.Payload = payload
	return rec
}
