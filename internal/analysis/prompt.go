package analysis

import (
	"fmt"
	"strings"

	"github.com/meliorhq/melior/internal/types"
)

const analystInstruction = `You are a careful wellness analyst.
You assess one psychological domain at a time from a user's recent conversation,
journal, and mood history.

Output requirements:
- Score the domain and every listed trait dimension from 0 to 10
- Ground key findings in the history; never invent events
- Keep the narrative supportive and under 120 words
- Return a valid JSON object that matches the output schema
- Do not include any extra keys or text outside the JSON object`

// buildPrompt assembles the per-domain user prompt from the snapshot context.
func buildPrompt(domain types.Domain, snapshot types.MemorySnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Assess the %s domain: %s.\n", domain, domainFocus[domain])
	fmt.Fprintf(&sb, "Trait dimensions to score: %s.\n", strings.Join(Dimensions(domain), ", "))
	fmt.Fprintf(&sb, "Memory strength: %s (%d signals, %d journal entries).\n\n",
		snapshot.Strength, snapshot.SignalCount, snapshot.JournalCount)
	if snapshot.AssembledContext == "" {
		sb.WriteString("The user has no recorded history yet; score conservatively around the midpoint and say so in the narrative.")
	} else {
		sb.WriteString("Recent history:\n")
		sb.WriteString(snapshot.AssembledContext)
	}
	return sb.String()
}
