package prompt

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		name     string
		messages []openai.ChatCompletionMessage
		want     string
	}{
		{
			name:     "empty conversation",
			messages: nil,
			want:     "",
		},
		{
			name: "single message",
			messages: []openai.ChatCompletionMessage{
				{Role: "user", Content: "hi"},
			},
			want: "user:\nhi\n\n",
		},
		{
			name: "multi turn joined with blank line",
			messages: []openai.ChatCompletionMessage{
				{Role: "user", Content: "hi"},
				{Role: "assistant", Content: "yo"},
			},
			want: "user:\nhi\n\n\n\nassistant:\nyo\n\n",
		},
		{
			name: "empty content skipped",
			messages: []openai.ChatCompletionMessage{
				{Role: "system", Content: ""},
				{Role: "user", Content: "hello"},
			},
			want: "user:\nhello\n\n",
		},
		{
			name: "missing role becomes unknown",
			messages: []openai.ChatCompletionMessage{
				{Role: "", Content: "who said this"},
			},
			want: "unknown:\nwho said this\n\n",
		},
		{
			name: "multipart keeps text parts only",
			messages: []openai.ChatCompletionMessage{
				{
					Role: "user",
					MultiContent: []openai.ChatMessagePart{
						{Type: openai.ChatMessagePartTypeText, Text: "look at "},
						{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: "https://example.com/x.png"}},
						{Type: openai.ChatMessagePartTypeText, Text: "this"},
					},
				},
			},
			want: "user:\nlook at this\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Flatten(tt.messages); got != tt.want {
				t.Fatalf("Flatten() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsEmpty(t *testing.T) {
	if !IsEmpty("") {
		t.Fatal("empty string should be empty")
	}
	if !IsEmpty("  \n\t ") {
		t.Fatal("whitespace-only string should be empty")
	}
	if IsEmpty("user:\nhi\n\n") {
		t.Fatal("rendered prompt should not be empty")
	}
}
