package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/velora/internal/ir"
)

func TestDecide_Matrix(t *testing.T) {
	entry := &ir.MappingEntry{RequirementID: "R1", TestCaseIDs: []string{"TC-1"}}

	tests := []struct {
		name        string
		kind        ir.ChangeKind
		materiality ir.Materiality
		mode        ir.UpdateMode
		want        ir.ActionKind
	}{
		{"added new_only", ir.ChangeAdded, "", ir.ModeNewOnly, ir.ActionCreate},
		{"added full_sync", ir.ChangeAdded, "", ir.ModeFullSync, ir.ActionCreate},
		{"added intelligent", ir.ChangeAdded, "", ir.ModeIntelligent, ir.ActionCreate},

		{"unchanged new_only", ir.ChangeUnchanged, "", ir.ModeNewOnly, ir.ActionSkip},
		{"unchanged full_sync", ir.ChangeUnchanged, "", ir.ModeFullSync, ir.ActionSkip},
		{"unchanged intelligent", ir.ChangeUnchanged, "", ir.ModeIntelligent, ir.ActionSkip},

		{"modified new_only", ir.ChangeModified, "", ir.ModeNewOnly, ir.ActionSkip},
		{"modified full_sync", ir.ChangeModified, "", ir.ModeFullSync, ir.ActionRegenerate},
		{"modified full_sync cosmetic", ir.ChangeModified, ir.MaterialityCosmetic, ir.ModeFullSync, ir.ActionRegenerate},
		{"modified intelligent functional", ir.ChangeModified, ir.MaterialityFunctional, ir.ModeIntelligent, ir.ActionRegenerate},
		{"modified intelligent cosmetic", ir.ChangeModified, ir.MaterialityCosmetic, ir.ModeIntelligent, ir.ActionSkip},
		{"modified intelligent unknown", ir.ChangeModified, ir.MaterialityUnknown, ir.ModeIntelligent, ir.ActionRegenerate},
		{"modified intelligent unassessed", ir.ChangeModified, ir.MaterialityNone, ir.ModeIntelligent, ir.ActionRegenerate},

		{"removed new_only", ir.ChangeRemoved, "", ir.ModeNewOnly, ir.ActionSkip},
		{"removed full_sync", ir.ChangeRemoved, "", ir.ModeFullSync, ir.ActionRetire},
		{"removed intelligent", ir.ChangeRemoved, "", ir.ModeIntelligent, ir.ActionRetire},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ir.ChangeRecord{RequirementID: "R1", Kind: tt.kind, Materiality: tt.materiality}
			got := Decide(rec, entry, tt.mode)
			assert.Equal(t, tt.want, got.Action)
			assert.NotEmpty(t, got.Reason)
		})
	}
}

func TestDecide_Deterministic(t *testing.T) {
	rec := ir.ChangeRecord{RequirementID: "R1", Kind: ir.ChangeModified, Materiality: ir.MaterialityCosmetic}
	entry := &ir.MappingEntry{RequirementID: "R1"}

	first := Decide(rec, entry, ir.ModeIntelligent)
	for range 10 {
		assert.Equal(t, first, Decide(rec, entry, ir.ModeIntelligent))
	}
}

func TestDecide_MissingEntry(t *testing.T) {
	assert.Equal(t, ir.ActionCreate,
		Decide(ir.ChangeRecord{Kind: ir.ChangeUnchanged}, nil, ir.ModeFullSync).Action)
	assert.Equal(t, ir.ActionSkip,
		Decide(ir.ChangeRecord{Kind: ir.ChangeRemoved}, nil, ir.ModeFullSync).Action)
}

func TestDecide_UnsupportedMode(t *testing.T) {
	got := Decide(ir.ChangeRecord{Kind: ir.ChangeAdded}, nil, ir.UpdateMode("sometimes"))
	assert.Equal(t, ir.ActionSkip, got.Action)
	assert.Equal(t, ReasonUnsupportedMode, got.Reason)
}
