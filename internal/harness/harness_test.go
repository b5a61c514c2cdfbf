package harness

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/velora/internal/ir"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestScenarios(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario errors:\n%s", strings.Join(result.Errors, "\n"))
			assert.Len(t, result.Runs, len(s.Runs))
		})
	}
}

const twoRequirements = `
name: two
description: "two requirements"
mode: full_sync
runs:
  - document: |
      # REQ-001: Login

      Users log in with email and password.

      # REQ-002: Single sign-on

      Support single sign-on via SAML.
`

func parse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src), "")
	require.NoError(t, err)
	return s
}

func TestRun_DeterministicRunIDsAndDigests(t *testing.T) {
	src := twoRequirements + `    expect:
      generations: 2
  - document: |
      # REQ-001: Login

      Users log in with email and password.
`
	first, err := Run(context.Background(), parse(t, src))
	require.NoError(t, err)
	second, err := Run(context.Background(), parse(t, src))
	require.NoError(t, err)

	require.Len(t, first.Runs, 2)
	assert.Equal(t, "run-1", first.Runs[0].RunID)
	assert.Equal(t, "run-2", first.Runs[1].RunID)
	for i := range first.Runs {
		assert.Equal(t, first.Runs[i].Digest, second.Runs[i].Digest, "run %d", i+1)
	}
	assert.Equal(t, []string{"REQ-001"}, first.Runs[1].Mapped())
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	src := twoRequirements + `    expect:
      actions: { REQ-001: SKIP, REQ-009: CREATE }
      outcomes: { REQ-002: failed }
      generations: 5
      committed: false
assertions:
  - type: mapping
    run: 1
    requirements: [REQ-001]
  - type: count
    run: 1
    action: CREATE
    count: 1
`
	result, err := Run(context.Background(), parse(t, src))
	require.NoError(t, err)
	assert.False(t, result.Pass)

	joined := strings.Join(result.Errors, "\n")
	assert.Contains(t, joined, "run 1: REQ-001: expected action SKIP, got CREATE")
	assert.Contains(t, joined, "REQ-009: expected action CREATE, requirement not in result")
	assert.Contains(t, joined, "REQ-002: expected outcome failed, got succeeded")
	assert.Contains(t, joined, "expected 5 generation(s), got 2")
	assert.Contains(t, joined, "expected committed=false, got true")
	assert.Contains(t, joined, "assertions[0]: mapping")
	assert.Contains(t, joined, "assertions[1]: count")
	assert.Len(t, result.Errors, 7)
}

func TestRun_ScriptedFailureCause(t *testing.T) {
	src := twoRequirements + `    fail: { REQ-001: auth }
`
	result, err := Run(context.Background(), parse(t, src))
	require.NoError(t, err)

	rec, ok := result.Runs[0].Action("REQ-001")
	require.True(t, ok)
	assert.Equal(t, ir.OutcomeFailed, rec.Outcome)
	assert.Equal(t, ir.KindGenerationFailure, rec.ErrorKind)
	require.Len(t, result.Runs[0].Result.Errors, 1)
	assert.Equal(t, ir.CauseAuth, result.Runs[0].Result.Errors[0].Cause)
}

func TestRun_FailureForUnknownRequirement(t *testing.T) {
	src := twoRequirements + `    fail: { REQ-404: unavailable }
`
	_, err := Run(context.Background(), parse(t, src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REQ-404")
}

func TestRun_FixedJudgeOverridesPerRun(t *testing.T) {
	src := `
name: judge
description: "per-run judge"
mode: intelligent
judge: cosmetic
runs:
  - document: "# REQ-001: Login\n\nUsers log in with email.\n"
  - document: "# REQ-001: Login\n\nUsers log in with a passkey.\n"
    expect:
      actions: { REQ-001: SKIP }
  - document: "# REQ-001: Login\n\nUsers log in with a hardware key.\n"
    judge: functional
    expect:
      actions: { REQ-001: REGENERATE }
`
	result, err := Run(context.Background(), parse(t, src))
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}
