package llm

import (
	"fmt"
	"strings"

	"github.com/roach88/velora/internal/ir"
)

// Separator divides test case blocks in model output.
const Separator = "---TEST_CASE---"

const generationSystem = "You are a senior QA engineer writing detailed, executable manual test cases."

// GenerationPrompt builds the prompt asking for test cases covering text.
func GenerationPrompt(text string, tmpl ir.Template, s Settings) Prompt {
	var b strings.Builder
	b.WriteString("REQUIREMENT TO TEST:\n")
	b.WriteString(text)
	b.WriteString("\n\nYOUR TASK:\n")
	b.WriteString("Generate 3-5 unique test cases. Each must cover a different scenario: ")
	b.WriteString("one positive path, one or two negative cases, one or two edge or boundary cases.\n\n")
	b.WriteString("STRICT OUTPUT FORMAT:\n")
	fmt.Fprintf(&b, "- Separate test cases with a line containing exactly %s\n", Separator)
	b.WriteString("- Put each field on its own line as \"Field: value\"\n")
	b.WriteString("- No markdown formatting\n\n")
	b.WriteString("FIELDS FOR EACH TEST CASE:\n")
	for _, f := range tmpl {
		fmt.Fprintf(&b, "%s: <value>\n", f.Name)
	}
	b.WriteString("\nTEST STEPS:\n")
	b.WriteString("Write 5-8 numbered steps, each on a new line, naming concrete fields, buttons and test data, ")
	b.WriteString("and include verification steps a manual tester can execute.\n")

	return Prompt{
		System:      generationSystem,
		User:        b.String(),
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
	}
}

const judgeSystem = "You are an expert requirements analyst comparing two versions of one requirement."

// JudgePrompt builds the prompt asking whether an edit changes behavior.
func JudgePrompt(previous, current string, s Settings) Prompt {
	var b strings.Builder
	b.WriteString("PREVIOUS VERSION:\n")
	b.WriteString(previous)
	b.WriteString("\n\nCURRENT VERSION:\n")
	b.WriteString(current)
	b.WriteString("\n\nDecide whether the change alters what must be tested.\n")
	b.WriteString("A change is COSMETIC when it only fixes wording, spelling, formatting or ordering ")
	b.WriteString("without changing behavior, limits, inputs or outcomes. Anything else is FUNCTIONAL.\n\n")
	b.WriteString("Respond with JSON only:\n")
	b.WriteString(`{"materiality": "cosmetic" | "functional", "summary": "<one sentence>"}`)
	b.WriteString("\n")

	return Prompt{
		System:      judgeSystem,
		User:        b.String(),
		MaxTokens:   256,
		Temperature: 0,
		JSON:        true,
	}
}
