// Package prompt flattens a multi-turn chat into the single prompt string
// the upstream accepts.
package prompt

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Flatten renders each message with non-empty text as "{role}:\n{text}\n\n"
// and joins the rendered blocks with a blank line. Multipart content keeps
// only its text parts, concatenated in order with no separator. A result
// that is empty or whitespace-only must be rejected by the caller before
// any upstream call.
func Flatten(messages []openai.ChatCompletionMessage) string {
	var blocks []string
	for _, msg := range messages {
		text := messageText(msg)
		if text == "" {
			continue
		}
		role := msg.Role
		if role == "" {
			role = "unknown"
		}
		blocks = append(blocks, role+":\n"+text+"\n\n")
	}
	return strings.Join(blocks, "\n\n")
}

// IsEmpty reports whether a flattened prompt has no usable content.
func IsEmpty(flattened string) bool {
	return strings.TrimSpace(flattened) == ""
}

func messageText(msg openai.ChatCompletionMessage) string {
	if len(msg.MultiContent) == 0 {
		return msg.Content
	}
	var b strings.Builder
	for _, part := range msg.MultiContent {
		if part.Type == openai.ChatMessagePartTypeText {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
