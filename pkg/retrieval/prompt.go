package retrieval

import (
	"fmt"
	"strings"

	"github.com/theapemachine/recall/pkg/memory"
)

var strategyPrompts = map[memory.TaskType]string{
	memory.TaskTechnicalCoding: "Technical mode: give accurate, executable solutions. " +
		"Prefer concrete code examples and steps.",
	memory.TaskEmotionalCounseling: "Empathy mode: lead with understanding and support, " +
		"then offer one to three concrete suggestions.",
	memory.TaskCreativeWriting: "Creative mode: be imaginative and expressive.",
	memory.TaskEducational: "Teaching mode: explain concepts clearly with concrete examples, " +
		"step by step.",
	memory.TaskGeneralQA: "Balanced mode: accurate, concise and useful.",
}

// StrategyPrompt returns the system instruction used for task.
func StrategyPrompt(task memory.TaskType) string {
	if prompt, ok := strategyPrompts[task]; ok {
		return prompt
	}

	return strategyPrompts[memory.TaskGeneralQA]
}

const conversationalInstruction = "Answer the user's current question helpfully and accurately. " +
	"Work in relevant historical memories naturally so the answer stays coherent and personal."

// MemoryContext renders recalled items as numbered context lines.
func MemoryContext(items []Recollection) string {
	if len(items) == 0 {
		return "(No relevant historical memories)"
	}

	lines := make([]string, 0, len(items))

	for i, item := range items {
		when := "recently"

		if !item.Timestamp.IsZero() {
			when = item.Timestamp.Format("01-02 15:04")
		}

		lines = append(lines, fmt.Sprintf(
			"%s%d (%s, significance %.2f): %s", item.Source, i+1, when, item.Significance, item.Content,
		))
	}

	return strings.Join(lines, "\n")
}

func conversationalPrompt(query, context string) string {
	return fmt.Sprintf(`%s

=== Relevant historical memories ===
%s

=== Current question ===
%s

=== Answer ===
`, conversationalInstruction, context, query)
}

func codePrompt(query, context string) string {
	return fmt.Sprintf(`Using the technical memories below, write Python code that solves the request.

=== Technical memories ===
%s

=== Request ===
%s

Return complete, executable Python with type hints and error handling.
`, context, query)
}

// cleanCode strips a markdown fence around generated code.
func cleanCode(answer string) string {
	for _, fence := range []string{"```python", "```"} {
		start := strings.Index(answer, fence)

		if start == -1 {
			continue
		}

		body := answer[start+len(fence):]

		if end := strings.Index(body, "```"); end != -1 {
			return strings.TrimSpace(body[:end])
		}

		return strings.TrimSpace(body)
	}

	return strings.TrimSpace(answer)
}

func truncate(content string, limit int) string {
	runes := []rune(content)

	if limit <= 0 || len(runes) <= limit {
		return content
	}

	return string(runes[:limit]) + "..."
}
