// Package harness runs reconciliation scenarios described in YAML.
//
// A scenario is a sequence of runs against one mapping store and one remote
// cache tier, the way successive invocations of the sync command would see
// them. Each run reads a Markdown document, reconciles it with a
// deterministic generator, and is checked against its expect clause.
// Scenario-level assertions then compare runs with each other.
//
// # Scenario Format
//
//	name: regenerate_modified
//	description: "A modified requirement gets fresh test case ids"
//	mode: full_sync
//	judge: lexical
//	runs:
//	  - document: |
//	      # REQ-001: Login
//	      Users log in with email.
//	    expect:
//	      actions: { REQ-001: CREATE }
//	      generations: 1
//	  - advance: 24h
//	    document_file: docs/login_v2.md
//	    fail: { REQ-002: rate_limited }
//	    expect:
//	      actions: { REQ-001: REGENERATE }
//	      outcomes: { REQ-002: failed }
//	assertions:
//	  - type: ids_replaced
//	    requirement: REQ-001
//	    runs: [1, 2]
//	  - type: mapping
//	    run: 2
//	    requirements: [REQ-001]
//
// Runs are numbered from 1. mode and judge may be overridden per run.
// advance moves the clock forward before the run starts, which ages cache
// records. fail scripts a generation failure for a requirement; the value
// names the cause: rate_limited, auth, malformed_output or unavailable.
//
// # Assertion Types
//
//   - count: run has exactly count actions of kind action
//   - mapping: the committed mapping after run holds exactly requirements
//   - ids_stable: requirement has the same test case ids after both runs
//   - ids_replaced: the later run superseded every id of the earlier one
//   - warning: run reported a warning of kind for requirement
//
// # Determinism
//
// Every scenario starts from an empty mapping store, a fixed clock and run
// ids run-1, run-2 and so on, so its results are reproducible.
package harness
