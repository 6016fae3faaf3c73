package translator

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

func sseBody(frames ...string) io.ReadCloser {
	var b strings.Builder
	for _, f := range frames {
		b.WriteString("data: ")
		b.WriteString(f)
		b.WriteString("\n\n")
	}
	return io.NopCloser(strings.NewReader(b.String()))
}

func collect(t *testing.T, deltas <-chan Delta) ([]string, error) {
	t.Helper()
	var contents []string
	for d := range deltas {
		if d.Err != nil {
			return contents, d.Err
		}
		contents = append(contents, d.Content)
	}
	return contents, nil
}

func TestConsumeRelaysChunksInOrder(t *testing.T) {
	body := sseBody(
		`{"type":"chunk","content":"Hello"}`,
		`{"type":"chunk","content":", "}`,
		`{"type":"chunk","content":"world"}`,
		`{"type":"done"}`,
	)

	contents, err := collect(t, Consume(context.Background(), body))
	if err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if got := strings.Join(contents, ""); got != "Hello, world" {
		t.Fatalf("expected ordered relay, got %q", got)
	}
}

func TestConsumeStopsAtDone(t *testing.T) {
	body := sseBody(
		`{"type":"chunk","content":"before"}`,
		`{"type":"done"}`,
		`{"type":"chunk","content":"after"}`,
	)

	contents, err := collect(t, Consume(context.Background(), body))
	if err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if len(contents) != 1 || contents[0] != "before" {
		t.Fatalf("events after done must be ignored, got %v", contents)
	}
}

func TestConsumeSurfacesUpstreamError(t *testing.T) {
	body := sseBody(
		`{"type":"chunk","content":"partial"}`,
		`{"type":"error","message":"model overloaded"}`,
	)

	contents, err := collect(t, Consume(context.Background(), body))
	if err == nil {
		t.Fatal("expected stream error")
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("expected upstream message in error, got %v", err)
	}
	if len(contents) != 1 || contents[0] != "partial" {
		t.Fatalf("content before the error should still be delivered, got %v", contents)
	}
}

func TestConsumeSkipsMalformedAndEmptyFrames(t *testing.T) {
	raw := "data: not json\n\n" +
		": comment line\n\n" +
		"data: {\"type\":\"chunk\",\"content\":\"\"}\n\n" +
		"data: {\"type\":\"chunk\",\"content\":\"ok\"}\n\n" +
		"data: {\"type\":\"done\"}\n\n"
	body := io.NopCloser(strings.NewReader(raw))

	contents, err := collect(t, Consume(context.Background(), body))
	if err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if len(contents) != 1 || contents[0] != "ok" {
		t.Fatalf("malformed and empty frames must be skipped, got %v", contents)
	}
}

func TestConsumeStopsOnCancel(t *testing.T) {
	// An endless body that never emits done.
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	deltas := Consume(ctx, pr)

	go pw.Write([]byte(`data: {"type":"chunk","content":"x"}` + "\n\n"))
	select {
	case d := <-deltas:
		if d.Content != "x" {
			t.Fatalf("expected first chunk, got %+v", d)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first chunk")
	}

	cancel()
	pw.CloseWithError(context.Canceled)

	select {
	case _, open := <-deltas:
		if open {
			// Drain any buffered delta; channel must close shortly after.
			for range deltas {
			}
		}
	case <-time.After(time.Second):
		t.Fatal("channel should close after cancellation")
	}
}

func TestAccumulate(t *testing.T) {
	body := sseBody(
		`{"type":"chunk","content":"a"}`,
		`{"type":"chunk","content":"b"}`,
		`{"type":"done"}`,
	)

	content, err := Accumulate(Consume(context.Background(), body))
	if err != nil {
		t.Fatalf("accumulate: %v", err)
	}
	if content != "ab" {
		t.Fatalf("expected ab, got %q", content)
	}
}

func TestWriteSSE(t *testing.T) {
	body := sseBody(
		`{"type":"chunk","content":"Hello"}`,
		`{"type":"chunk","content":" there"}`,
		`{"type":"done"}`,
	)
	deltas := Consume(context.Background(), body)

	rec := httptest.NewRecorder()
	if err := WriteSSE(rec, "chatcmpl-1", "claude-sonnet-4.5", deltas); err != nil {
		t.Fatalf("write sse: %v", err)
	}

	frames := parseSSE(t, rec.Body.String())
	if last := frames[len(frames)-1]; last != "[DONE]" {
		t.Fatalf("stream must end with [DONE], got %q", last)
	}

	var text strings.Builder
	var sawFinish bool
	for _, frame := range frames[:len(frames)-1] {
		var chunk openai.ChatCompletionStreamResponse
		if err := json.Unmarshal([]byte(frame), &chunk); err != nil {
			t.Fatalf("chunk is not valid JSON: %v", err)
		}
		if chunk.ID != "chatcmpl-1" || chunk.Object != "chat.completion.chunk" {
			t.Fatalf("unexpected chunk envelope: %+v", chunk)
		}
		if len(chunk.Choices) != 1 {
			t.Fatalf("expected one choice per chunk, got %d", len(chunk.Choices))
		}
		text.WriteString(chunk.Choices[0].Delta.Content)
		if chunk.Choices[0].FinishReason == openai.FinishReasonStop {
			sawFinish = true
		}
	}
	if text.String() != "Hello there" {
		t.Fatalf("expected relayed text, got %q", text.String())
	}
	if !sawFinish {
		t.Fatal("expected a terminal chunk with finish_reason stop")
	}
}

func TestWriteSSEReturnsStreamError(t *testing.T) {
	body := sseBody(
		`{"type":"chunk","content":"partial"}`,
		`{"type":"error","message":"boom"}`,
	)
	deltas := Consume(context.Background(), body)

	rec := httptest.NewRecorder()
	err := WriteSSE(rec, "chatcmpl-1", "claude-sonnet-4.5", deltas)
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if strings.Contains(rec.Body.String(), "[DONE]") {
		t.Fatal("a failed stream must not emit [DONE]")
	}
}

func parseSSE(t *testing.T, raw string) []string {
	t.Helper()
	var frames []string
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(line, "data: ") {
			frames = append(frames, strings.TrimPrefix(line, "data: "))
		}
	}
	if len(frames) == 0 {
		t.Fatalf("no SSE frames in output: %q", raw)
	}
	return frames
}

func TestNewCompletionResponseUsage(t *testing.T) {
	resp := NewCompletionResponse("chatcmpl-1", "claude-sonnet-4.5", "12345678", "1234")
	if resp.Usage.PromptTokens != 2 || resp.Usage.CompletionTokens != 1 || resp.Usage.TotalTokens != 3 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
	if resp.Choices[0].Message.Content != "1234" {
		t.Fatalf("unexpected content: %+v", resp.Choices[0])
	}
	if resp.Choices[0].FinishReason != openai.FinishReasonStop {
		t.Fatalf("expected finish_reason stop, got %v", resp.Choices[0].FinishReason)
	}
}
