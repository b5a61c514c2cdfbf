package report

import (
	"fmt"

	"github.com/roach88/velora/internal/ir"
)

// Canonical renders result as RFC 8785 canonical JSON. Optional fields that
// are empty are omitted, matching the encoding/json tags on the ir types.
func Canonical(result ir.ReconciliationResult) ([]byte, error) {
	actions := make(ir.IRArray, len(result.Actions))
	for i, a := range result.Actions {
		actions[i] = actionValue(a)
	}

	byAction := make(ir.IRObject, len(result.CountsByAction))
	for k, n := range result.CountsByAction {
		byAction[string(k)] = ir.IRInt(n)
	}
	byOutcome := make(ir.IRObject, len(result.CountsByOutcome))
	for k, n := range result.CountsByOutcome {
		byOutcome[string(k)] = ir.IRInt(n)
	}

	data, err := ir.MarshalCanonical(ir.IRObject{
		"mode":              ir.IRString(result.Mode),
		"actions":           actions,
		"counts_by_action":  byAction,
		"counts_by_outcome": byOutcome,
		"errors":            issuesValue(result.Errors),
		"warnings":          issuesValue(result.Warnings),
	})
	if err != nil {
		return nil, fmt.Errorf("canonical result: %w", err)
	}
	return data, nil
}

// Digest returns the content hash of the canonical result.
func Digest(result ir.ReconciliationResult) (string, error) {
	data, err := Canonical(result)
	if err != nil {
		return "", err
	}
	return ir.HashResult(data), nil
}

func actionValue(a ir.ActionRecord) ir.IRObject {
	obj := ir.IRObject{
		"order":          ir.IRInt(a.Order),
		"requirement_id": ir.IRString(a.RequirementID),
		"change":         ir.IRString(a.Change),
		"action":         ir.IRString(a.Action),
		"outcome":        ir.IRString(a.Outcome),
		"before":         ir.Strings(a.Before),
		"after":          ir.Strings(a.After),
		"superseded":     ir.Strings(a.Superseded),
	}
	putString(obj, "materiality", string(a.Materiality))
	putString(obj, "error_kind", string(a.ErrorKind))
	putString(obj, "reason", a.Reason)
	if len(a.TestCases) > 0 {
		rows := make(ir.IRArray, len(a.TestCases))
		for i, row := range a.TestCases {
			fields := make(ir.IRObject, len(row.Fields))
			for k, v := range row.Fields {
				fields[k] = ir.IRString(v)
			}
			rows[i] = ir.IRObject{
				"id":             ir.IRString(row.ID),
				"requirement_id": ir.IRString(row.RequirementID),
				"fields":         fields,
			}
		}
		obj["test_cases"] = rows
	}
	return obj
}

func issuesValue(issues []ir.Issue) ir.IRArray {
	arr := make(ir.IRArray, len(issues))
	for i, is := range issues {
		obj := ir.IRObject{
			"kind":    ir.IRString(is.Kind),
			"message": ir.IRString(is.Message),
		}
		putString(obj, "requirement_id", is.RequirementID)
		putString(obj, "cause", is.Cause)
		arr[i] = obj
	}
	return arr
}

func putString(obj ir.IRObject, key, value string) {
	if value != "" {
		obj[key] = ir.IRString(value)
	}
}
