package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/velora/internal/ir"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEntry creates a mapping entry with minimal required fields.
func createTestEntry(id string, testCaseIDs ...string) ir.MappingEntry {
	if testCaseIDs == nil {
		testCaseIDs = []string{}
	}
	return ir.MappingEntry{
		RequirementID:   id,
		TestCaseIDs:     testCaseIDs,
		LastFingerprint: "fp-" + id,
		LastText:        "text of " + id,
		LastGeneratedAt: testTime,
		PolicyVersion:   "v1-00000000",
	}
}

// createTestRecord creates a cache record for key.
func createTestRecord(key string, created time.Time, ttl time.Duration, title string) ir.CacheRecord {
	return ir.CacheRecord{
		Key:           key,
		Fingerprint:   "fp-" + key,
		PolicyVersion: "v1-00000000",
		Payload:       []ir.TestCase{{"Test Case Title": title}},
		CreatedAt:     created,
		TTL:           ttl,
	}
}
