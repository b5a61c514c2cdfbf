// Package ir holds the data model shared by every velora component.
//
// ir imports nothing internal; all other internal packages import ir.
// It provides:
//   - requirement, change, mapping and cache record types
//   - RFC 8785 canonical JSON (MarshalCanonical) for content addressing
//   - domain-separated SHA-256 identities (fingerprints, cache keys, test case ids)
//   - the error taxonomy used across a reconciliation run
//
// Key design constraints:
//   - NO float types in hashed values; canonical JSON rejects them
//   - All JSON tags use snake_case
//   - Identities are content addressed, never derived from wall-clock time
package ir
