package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/velora/internal/ir"
)

const twoBlocks = `Test Case ID: TC-001
Test Case Title: Export succeeds
Description: **Happy path** export
Preconditions: Logged in
Test Steps: 1. Open reports
2. Click Export
Expected Result: CSV downloaded
---TEST_CASE---
- test case id: TC-002
- Test Case Title: Export with no data
- Description: Empty report
- Preconditions: None
- Test Steps: 1. Click Export
- Expected Result: Warning shown
- Priority: Low
`

func TestParseTestCases_Blocks(t *testing.T) {
	cases, err := ParseTestCases(twoBlocks, ir.DefaultTemplate())
	require.NoError(t, err)
	require.Len(t, cases, 2)

	first := cases[0]
	assert.Equal(t, "Export succeeds", first["Test Case Title"])
	assert.Equal(t, "Happy path export", first["Description"])
	assert.Equal(t, "1. Open reports\n2. Click Export", first["Test Steps"])
	assert.Equal(t, "Medium", first["Priority"], "default filled")
	assert.Equal(t, "Not Executed", first["Status"])
	assert.Empty(t, first[ir.FieldTestCaseID], "model-provided id is discarded")

	second := cases[1]
	assert.Equal(t, "Export with no data", second["Test Case Title"])
	assert.Equal(t, "Low", second["Priority"])
	assert.Len(t, second, len(ir.DefaultTemplate()))
}

func TestParseTestCases_DropsThinBlocks(t *testing.T) {
	out := "Test Case Title: Only a title\n---TEST_CASE---\n" + twoBlocks
	cases, err := ParseTestCases(out, ir.DefaultTemplate())
	require.NoError(t, err)
	assert.Len(t, cases, 2)
}

func TestParseTestCases_JSON(t *testing.T) {
	out := "```json\n" + `[
  {"Test Case Title": "A", "Description": "d", "Preconditions": "p",
   "Test Steps": ["1. x", "2. y"], "Expected Result": "r", "Ignored": "z"}
]` + "\n```"
	cases, err := ParseTestCases(out, ir.DefaultTemplate())
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "1. x\n2. y", cases[0]["Test Steps"])
	assert.NotContains(t, cases[0], "Ignored")
	assert.Equal(t, "Functional", cases[0]["Test Type"])
}

func TestParseTestCases_Malformed(t *testing.T) {
	for _, out := range []string{"", "I cannot help with that.", "[not json"} {
		_, err := ParseTestCases(out, ir.DefaultTemplate())
		assert.ErrorIs(t, err, ir.ErrMalformedOutput, "output %q", out)
	}
}

func TestGenerationPrompt_ListsFields(t *testing.T) {
	p := GenerationPrompt("Users can export.", ir.DefaultTemplate(), DefaultSettings())
	assert.Contains(t, p.User, "Users can export.")
	assert.Contains(t, p.User, "Expected Result: <value>")
	assert.Contains(t, p.User, Separator)
	assert.Equal(t, 2000, p.MaxTokens)
	assert.False(t, p.JSON)
}

func TestParseJudgeAnswer(t *testing.T) {
	tests := []struct {
		out     string
		want    ir.Materiality
		wantErr bool
	}{
		{`{"materiality": "cosmetic", "summary": "typo"}`, ir.MaterialityCosmetic, false},
		{"```json\n{\"materiality\": \"FUNCTIONAL\"}\n```", ir.MaterialityFunctional, false},
		{"cosmetic", ir.MaterialityCosmetic, false},
		{`{"materiality": "maybe"}`, ir.MaterialityNone, true},
	}
	for _, tt := range tests {
		got, err := parseJudgeAnswer(tt.out)
		if tt.wantErr {
			assert.ErrorIs(t, err, ir.ErrMalformedOutput)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
