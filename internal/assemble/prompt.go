package assemble

import (
	"fmt"
	"strings"
)

// BuildPrompt renders a bundle and the user question into the prompt
// handed to the generator. Section order mirrors truncation priority so
// the most durable context sits closest to the top.
func BuildPrompt(b *Bundle, question string) string {
	var sb strings.Builder

	if len(b.ConversationExcerpt) > 0 {
		sb.WriteString("## Conversation so far\n")
		for _, t := range b.ConversationExcerpt {
			fmt.Fprintf(&sb, "%s: %s\n", t.Speaker, t.Text)
		}
		sb.WriteString("\n")
	}

	if b.SQLSummary != "" {
		sb.WriteString("## Database result\n")
		sb.WriteString(b.SQLSummary)
		sb.WriteString("\n\n")
	}

	if len(b.RerankedPassages) > 0 {
		sb.WriteString("## Retrieved context\n")
		for i, p := range b.RerankedPassages {
			fmt.Fprintf(&sb, "[%d] %s\n", i+1, p.Text)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Question\n")
	sb.WriteString(question)
	return sb.String()
}
