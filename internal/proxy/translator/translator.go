// Package translator converts the upstream's incremental event stream into
// the caller-facing OpenAI wire format. A producer goroutine reads the
// upstream body into a bounded channel; the consumer side either relays
// each increment as an SSE chunk or accumulates the full text for a
// non-streaming completion.
package translator

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pysugar/enginelabs-gateway/internal/upstream"
)

// deltaBuffer bounds how far the producer can run ahead of the consumer.
const deltaBuffer = 32

// Delta is one relayed increment. A non-nil Err terminates the stream.
type Delta struct {
	Content string
	Err     error
}

// Consume starts the producer goroutine over an upstream SSE body. The
// returned channel is closed when the upstream signals completion, errors,
// or ctx is cancelled. The body is closed on every exit path; increments
// are delivered in arrival order, one channel send per upstream event.
func Consume(ctx context.Context, body io.ReadCloser) <-chan Delta {
	out := make(chan Delta, deltaBuffer)

	go func() {
		defer close(out)
		defer body.Close()

		// Large buffer: upstream frames can carry whole paragraphs.
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")

			var event upstream.Event
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				// Skip malformed frames rather than killing the stream.
				continue
			}

			switch event.Type {
			case upstream.EventDone:
				return
			case upstream.EventError:
				send(ctx, out, Delta{Err: fmt.Errorf("upstream stream error: %s", event.Message)})
				return
			case upstream.EventChunk:
				if event.Content == "" {
					continue
				}
				if !send(ctx, out, Delta{Content: event.Content}) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
			send(ctx, out, Delta{Err: fmt.Errorf("read upstream stream: %w", err)})
		}
	}()

	return out
}

func send(ctx context.Context, out chan<- Delta, d Delta) bool {
	select {
	case out <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

// WriteSSE relays deltas to the caller as OpenAI stream chunks, flushing
// each one as it arrives, then emits a terminal finish chunk and the
// [DONE] sentinel. Returns the upstream error, if any; by then the 200
// header is already out, so the caller can only log and account for it.
func WriteSSE(w http.ResponseWriter, requestID, model string, deltas <-chan Delta) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support streaming")
	}

	for delta := range deltas {
		if delta.Err != nil {
			return delta.Err
		}
		chunk := NewStreamChunk(requestID, model, delta.Content)
		if err := writeChunk(w, chunk); err != nil {
			return err
		}
		flusher.Flush()
	}

	if err := writeChunk(w, NewFinishChunk(requestID, model)); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeChunk(w io.Writer, chunk openai.ChatCompletionStreamResponse) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// Accumulate drains the delta channel into one string for the
// non-streaming response mode.
func Accumulate(deltas <-chan Delta) (string, error) {
	var b strings.Builder
	for delta := range deltas {
		if delta.Err != nil {
			return b.String(), delta.Err
		}
		b.WriteString(delta.Content)
	}
	return b.String(), nil
}

// NewStreamChunk builds one content-delta chunk.
func NewStreamChunk(requestID, model, content string) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		ID:      requestID,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []openai.ChatCompletionStreamChoice{
			{
				Index: 0,
				Delta: openai.ChatCompletionStreamChoiceDelta{Content: content},
			},
		},
	}
}

// NewFinishChunk builds the terminal chunk carrying the finish reason.
func NewFinishChunk(requestID, model string) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		ID:      requestID,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []openai.ChatCompletionStreamChoice{
			{
				Index:        0,
				Delta:        openai.ChatCompletionStreamChoiceDelta{},
				FinishReason: openai.FinishReasonStop,
			},
		},
	}
}

// NewCompletionResponse wraps the accumulated text into a single
// completion. Usage counts are derived from character length, not upstream
// tokenization; treat them as approximations.
func NewCompletionResponse(requestID, model, promptText, content string) openai.ChatCompletionResponse {
	promptTokens := approxTokens(promptText)
	completionTokens := approxTokens(content)
	return openai.ChatCompletionResponse{
		ID:      requestID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []openai.ChatCompletionChoice{
			{
				Index: 0,
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: content,
				},
				FinishReason: openai.FinishReasonStop,
			},
		},
		Usage: openai.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}
}

func approxTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
