package agent

import (
	"fmt"
	"strings"
	"text/template"

	"go-autoagent/internal/memory"
)

// NoMemories replaces the memory block when nothing relevant was found.
const NoMemories = "No relevant memories found."

var promptTemplate = template.Must(template.New("agent").Parse(`
You are an autonomous agent with access to a memory system. Use the relevant memories to inform your decisions.

Current Goal: {{.Goal}}

Relevant Memories from Past Experiences:
{{.Memories}}

Current Context: {{.Context}}

Based on your goal and the relevant memories, provide a thoughtful response or action plan.
Consider what you've learned from past experiences and how it applies to the current situation.
`))

// FormatMemories renders one line per record:
//
//	- [type] content (Importance: 0.80)
func FormatMemories(recs []memory.Record) string {
	if len(recs) == 0 {
		return NoMemories
	}
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		lines = append(lines, fmt.Sprintf("- [%s] %s (Importance: %.2f)", r.Type, r.Content, r.ImportanceScore))
	}
	return strings.Join(lines, "\n")
}

func renderPrompt(goal, memories, context string) (string, error) {
	var sb strings.Builder
	err := promptTemplate.Execute(&sb, struct {
		Goal, Memories, Context string
	}{goal, memories, context})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}
