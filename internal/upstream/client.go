// Package upstream implements the HTTP client for the fronted
// conversational service: the session-token exchange and the chat call.
// The service has no official API, so both endpoints speak the wire shapes
// its own web client uses.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// UserAgent matches the service's own web client.
	UserAgent = "enginelabs-gateway/1.0"

	// maxErrorBody bounds how much of an upstream error body is retained.
	maxErrorBody = 4 * 1024
)

// ChatRequest is the single-turn payload the chat endpoint accepts.
type ChatRequest struct {
	RequestID     string `json:"requestId"`
	Model         string `json:"model"` // internal model name
	ChatHistoryID string `json:"chatHistoryId"`
	UserID        string `json:"userId"`
	Prompt        string `json:"prompt"`
}

// Event is one unit of the chat endpoint's SSE stream.
type Event struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`
}

// Event types emitted by the chat stream.
const (
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)

// Client handles communication with the upstream service.
type Client struct {
	httpClient *http.Client
}

// NewClient creates an upstream client. The timeout covers the whole
// response body, so it is long enough for slow streams.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// sessionEnvelope is the session endpoint's response shape. Only the active
// session's token matters here.
type sessionEnvelope struct {
	Response struct {
		Sessions []struct {
			LastActiveToken struct {
				JWT string `json:"jwt"`
			} `json:"last_active_token"`
		} `json:"sessions"`
	} `json:"response"`
}

// ExchangeSession trades a raw session credential for a short-lived bearer
// token. The credential goes out as the client cookie the upstream's own
// frontend would send.
func (c *Client) ExchangeSession(ctx context.Context, authBase, secret string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authBase+"/v1/client?_is_native=1", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", secret)
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("session exchange request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("session exchange returned status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var envelope sessionEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("decode session response: %w", err)
	}

	for _, session := range envelope.Response.Sessions {
		if jwt := session.LastActiveToken.JWT; jwt != "" {
			return jwt, nil
		}
	}
	return "", fmt.Errorf("session exchange returned no active session token")
}

// StreamChat issues the chat call and returns the live SSE response. The
// caller owns resp.Body and must close it on every exit path; cancelling
// ctx aborts the connection.
func (c *Client) StreamChat(ctx context.Context, apiBase, accessToken string, chatReq ChatRequest) (*http.Response, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBase+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("User-Agent", UserAgent)

	return c.httpClient.Do(req)
}

func readErrorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return string(bytes.TrimSpace(data))
}
