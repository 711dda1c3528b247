// Package answer builds the grounded chat prompt and the generators that
// turn it into an answer.
package answer

import (
	"fmt"
	"strings"

	"ragsearch/internal/domain"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const baseSystemPrompt = `You are a helpful AI assistant with access to a knowledge base.
Answer questions based on the provided context when available.
If the context doesn't contain relevant information, use your general knowledge but mention that you're not finding specific information in the knowledge base.
Be concise, accurate, and helpful.`

const (
	// QuotaNotice is shown when the completion service is out of quota and
	// nothing else could answer.
	QuotaNotice = "⚠️ API quota exceeded. The completion service has reached its limit. Please wait for the quota to reset or upgrade your API plan."
	// ErrorNotice is shown for any other completion failure.
	ErrorNotice = "Sorry, I encountered an error. Please try again later."
)

// BuildPrompt renders sources into the system prompt. The conversation is
// passed through unchanged.
func BuildPrompt(messages []domain.Message, sources []domain.Source) domain.Prompt {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	if len(sources) > 0 {
		b.WriteString("\n\nRelevant context from knowledge base:\n\n")
		for i, s := range sources {
			name := s.Metadata.Filename
			if name == "" {
				name = "unknown"
			}
			fmt.Fprintf(&b, "[Source %d] (from %s):\n%s\n\n", i+1, name, s.Content)
		}
	}
	return domain.Prompt{
		System:   b.String(),
		Messages: messages,
		Sources:  sources,
	}
}

// Question returns the content of the final message, which must come from
// the user.
func Question(messages []domain.Message) (string, bool) {
	if len(messages) == 0 {
		return "", false
	}
	last := messages[len(messages)-1]
	if last.Role != RoleUser || strings.TrimSpace(last.Content) == "" {
		return "", false
	}
	return last.Content, true
}
