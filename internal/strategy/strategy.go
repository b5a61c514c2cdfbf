// Package strategy maps a classified change to a reconciliation action.
//
// Decide is a pure function of the change record, the requirement's mapping
// entry and the update mode. It never looks at the cache or the generator.
package strategy

import (
	"github.com/roach88/velora/internal/ir"
)

// Decision is the action chosen for one requirement and why.
type Decision struct {
	Action ir.ActionKind `json:"action"`
	Reason string        `json:"reason"`
}

// Reasons, kept short for reports.
const (
	ReasonNew             = "new requirement"
	ReasonUnchanged       = "fingerprint unchanged"
	ReasonPreserveEdits   = "modified requirement kept (new_only preserves existing test cases)"
	ReasonModified        = "requirement text changed"
	ReasonFunctional      = "functional change"
	ReasonUnassessed      = "materiality unknown, regenerating"
	ReasonCosmetic        = "cosmetic change only"
	ReasonRemoved         = "requirement removed"
	ReasonNoDeletion      = "removed requirement kept (new_only never deletes)"
	ReasonRemovedUnmapped = "requirement removed, nothing mapped"
	ReasonMissingMapping  = "no mapping entry, creating"
	ReasonUnknownChange   = "unrecognized change kind"
	ReasonUnsupportedMode = "unsupported update mode"
)

// Decide returns the action for rec under mode. entry is the committed
// mapping entry for the requirement, or nil when there is none.
func Decide(rec ir.ChangeRecord, entry *ir.MappingEntry, mode ir.UpdateMode) Decision {
	if !ir.ValidModes[mode] {
		return Decision{Action: ir.ActionSkip, Reason: ReasonUnsupportedMode}
	}

	switch rec.Kind {
	case ir.ChangeAdded:
		return Decision{Action: ir.ActionCreate, Reason: ReasonNew}

	case ir.ChangeUnchanged:
		// A baseline that lost its entry (hand-edited ledger) heals itself.
		if entry == nil {
			return Decision{Action: ir.ActionCreate, Reason: ReasonMissingMapping}
		}
		return Decision{Action: ir.ActionSkip, Reason: ReasonUnchanged}

	case ir.ChangeModified:
		if entry == nil {
			return Decision{Action: ir.ActionCreate, Reason: ReasonMissingMapping}
		}
		return decideModified(rec, mode)

	case ir.ChangeRemoved:
		if mode == ir.ModeNewOnly {
			return Decision{Action: ir.ActionSkip, Reason: ReasonNoDeletion}
		}
		if entry == nil {
			return Decision{Action: ir.ActionSkip, Reason: ReasonRemovedUnmapped}
		}
		return Decision{Action: ir.ActionRetire, Reason: ReasonRemoved}
	}
	return Decision{Action: ir.ActionSkip, Reason: ReasonUnknownChange}
}

func decideModified(rec ir.ChangeRecord, mode ir.UpdateMode) Decision {
	switch mode {
	case ir.ModeNewOnly:
		return Decision{Action: ir.ActionSkip, Reason: ReasonPreserveEdits}
	case ir.ModeFullSync:
		return Decision{Action: ir.ActionRegenerate, Reason: ReasonModified}
	}

	switch rec.Materiality {
	case ir.MaterialityCosmetic:
		return Decision{Action: ir.ActionSkip, Reason: ReasonCosmetic}
	case ir.MaterialityFunctional:
		return Decision{Action: ir.ActionRegenerate, Reason: ReasonFunctional}
	default:
		return Decision{Action: ir.ActionRegenerate, Reason: ReasonUnassessed}
	}
}
