package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/velora/internal/ir"
)

func mixedRun(order []int) ir.ReconciliationResult {
	records := map[int]ir.ActionRecord{
		1: {
			Order: 1, RequirementID: "R1", Change: ir.ChangeUnchanged,
			Action: ir.ActionSkip, Outcome: ir.OutcomeSkipped, Reason: "fingerprint unchanged",
			Before: []string{"TC-A"}, After: []string{"TC-A"},
		},
		2: {
			Order: 2, RequirementID: "R2", Change: ir.ChangeModified, Materiality: ir.MaterialityFunctional,
			Action: ir.ActionRegenerate, Outcome: ir.OutcomeSucceeded, Reason: "functional change",
			Before: []string{"TC-B"}, After: []string{"TC-C"}, Superseded: []string{"TC-B"},
			TestCases: []ir.TestCaseRow{{
				ID: "TC-C", RequirementID: "R2",
				Fields: ir.TestCase{"Test Case ID": "TC-C", "Priority": "High"},
			}},
		},
		3: {
			Order: 3, RequirementID: "R3", Change: ir.ChangeAdded,
			Action: ir.ActionCreate, Outcome: ir.OutcomeFailed, ErrorKind: ir.KindGenerationFailure,
			Reason: "new requirement",
		},
	}

	b := NewBuilder(ir.ModeIntelligent)
	for _, i := range order {
		b.Record(records[i])
	}
	b.Error(ir.Issue{RequirementID: "R3", Kind: ir.KindGenerationFailure, Cause: ir.CauseRateLimited, Message: "generate: rate limited"})
	b.Warn(ir.Issue{RequirementID: "R2", Kind: ir.KindJudgeFailure, Message: "judge timeout"})
	return b.Build()
}

func TestBuild_Golden(t *testing.T) {
	AssertGolden(t, "mixed_run", mixedRun([]int{3, 1, 2}))
}

func TestBuild_EmptyRunGolden(t *testing.T) {
	AssertGolden(t, "empty_run", NewBuilder(ir.ModeFullSync).Build())
}

func TestBuild_OrderIndependent(t *testing.T) {
	a, err := Canonical(mixedRun([]int{1, 2, 3}))
	require.NoError(t, err)
	b, err := Canonical(mixedRun([]int{3, 2, 1}))
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	da, err := Digest(mixedRun([]int{1, 2, 3}))
	require.NoError(t, err)
	db, err := Digest(mixedRun([]int{2, 3, 1}))
	require.NoError(t, err)
	assert.Equal(t, da, db)
	assert.Len(t, da, 64)
}

func TestBuild_Counts(t *testing.T) {
	r := mixedRun([]int{1, 2, 3})

	assert.Equal(t, 1, r.CountsByAction[ir.ActionCreate])
	assert.Equal(t, 0, r.CountsByAction[ir.ActionRetire])
	assert.Equal(t, 1, r.CountsByOutcome[ir.OutcomeFailed])
	assert.True(t, r.Failed())
	assert.Equal(t, []string{}, r.Actions[2].Superseded)
}

func TestBuild_SortsIDSets(t *testing.T) {
	b := NewBuilder(ir.ModeFullSync)
	before := []string{"TC-Z", "TC-A"}
	b.Record(ir.ActionRecord{RequirementID: "R1", Action: ir.ActionRetire, Outcome: ir.OutcomeSucceeded,
		Before: before, Superseded: before})

	r := b.Build()
	assert.Equal(t, []string{"TC-A", "TC-Z"}, r.Actions[0].Superseded)
	assert.Equal(t, []string{"TC-Z", "TC-A"}, before, "input must not be mutated")
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, mixedRun([]int{1, 2, 3})))

	out := buf.String()
	assert.Contains(t, out, "mode: intelligent")
	assert.Contains(t, out, "CREATE=1 REGENERATE=1 SKIP=1 RETIRE=0")
	assert.Contains(t, out, "R2 -> TC-C (superseded TC-B)")
	assert.Contains(t, out, "R3 GenerationFailure (rate_limited): generate: rate limited")
	assert.NotContains(t, out, " R1")
}
