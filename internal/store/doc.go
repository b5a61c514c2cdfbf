// Package store provides SQLite-backed durable state for velora.
//
// One database file can hold:
//   - Mapping entries: the requirement to test-case ledger (MappingTable)
//   - Cache records: the durable generation cache tier (CacheTable)
//   - Runs: an audit log of reconciliation runs
//
// # Critical Patterns
//
// Atomic ledger commit
//   - MappingTable.Commit replaces every row inside one transaction
//   - A failed commit rolls back and leaves the previous ledger intact
//
// Immutable cache records
//   - INSERT ... ON CONFLICT(cache_key) DO UPDATE ... WHERE the stored record
//     has expired; a live record is never overwritten
//
// Deterministic query results
//   - All multi-row queries use ORDER BY <column> COLLATE BINARY ASC/DESC
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
