package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/pysugar/enginelabs-gateway/internal/db"
	"github.com/pysugar/enginelabs-gateway/internal/db/models"
	"github.com/pysugar/enginelabs-gateway/internal/metrics"
	"github.com/pysugar/enginelabs-gateway/internal/pool"
	"github.com/pysugar/enginelabs-gateway/internal/prompt"
	"github.com/pysugar/enginelabs-gateway/internal/proxy/middleware"
	"github.com/pysugar/enginelabs-gateway/internal/proxy/translator"
	"github.com/pysugar/enginelabs-gateway/internal/session"
	"github.com/pysugar/enginelabs-gateway/internal/upstream"
	"github.com/pysugar/enginelabs-gateway/internal/util"
)

// ChatService bundles the collaborators one chat request flows through.
type ChatService struct {
	Pool         *pool.Pool
	Resolver     *session.Resolver
	Upstream     *upstream.Client
	Settings     *db.SettingsStore
	Mappings     *db.ModelMappingStore
	Metrics      *metrics.Metrics
	DefaultModel string
}

// reportCredentialFailure records one failure against the credential and
// drops its cached session so the next request re-exchanges. A failed
// request is never retried with a different credential; the caller retries.
func (svc *ChatService) reportCredentialFailure(cred *models.Credential) {
	svc.Pool.ReportFailure(cred.ID)
	svc.Resolver.Invalidate(cred.ID)
	svc.Metrics.ObserveCredentialFailure()
}

// ChatCompletionsHandler handles POST /v1/chat/completions.
func ChatCompletionsHandler(svc *ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}

		model := req.Model
		if model == "" {
			model = svc.DefaultModel
		}
		middleware.SetLogModel(r, model)

		if len(req.Messages) == 0 {
			writeError(w, http.StatusBadRequest, "messages cannot be empty")
			return
		}

		internalModel, ok := svc.Mappings.ResolveInternal(model)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported model: %s", model))
			return
		}

		flattened := prompt.Flatten(req.Messages)
		if prompt.IsEmpty(flattened) {
			writeError(w, http.StatusBadRequest, "flattened message content is empty")
			return
		}

		cfg := svc.Settings.Get()

		cred, err := svc.Pool.Select(pool.ParseStrategy(cfg.RotationStrategy))
		if err != nil {
			log.Printf("⚠️ Credential selection failed: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		if cred == nil {
			svc.Metrics.ObserveCapacityExhausted()
			writeError(w, http.StatusServiceUnavailable, "No valid credential available")
			return
		}

		sess, err := svc.Resolver.Resolve(ctx, cfg.AuthBaseURL, cred)
		if err != nil {
			log.Printf("❌ Session resolution failed for credential %s: %v", cred.ID, err)
			svc.reportCredentialFailure(cred)
			writeError(w, http.StatusInternalServerError, "Upstream authentication failed")
			return
		}

		// Fresh per request; a chat history is never reused.
		chatHistoryID := uuid.New().String()
		requestID := "chatcmpl-" + uuid.New().String()

		resp, err := svc.Upstream.StreamChat(ctx, cfg.APIBaseURL, sess.AccessToken(), upstream.ChatRequest{
			RequestID:     requestID,
			Model:         internalModel,
			ChatHistoryID: chatHistoryID,
			UserID:        sess.Subject,
			Prompt:        flattened,
		})
		if err != nil {
			log.Printf("❌ Upstream chat call failed: %v", err)
			svc.reportCredentialFailure(cred)
			writeError(w, http.StatusInternalServerError, "Upstream request failed")
			return
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
			resp.Body.Close()
			log.Printf("❌ Upstream chat returned status %d: %s", resp.StatusCode, util.TruncateBytes(body))
			svc.reportCredentialFailure(cred)
			writeError(w, http.StatusInternalServerError, "Upstream request failed")
			return
		}

		// The producer owns resp.Body from here and closes it on every
		// exit path, including caller cancellation.
		deltas := translator.Consume(ctx, resp.Body)

		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.Header().Set("X-Accel-Buffering", "no")

			if err := translator.WriteSSE(w, requestID, model, deltas); err != nil {
				// Headers are already out; record the failure and stop.
				log.Printf("❌ Streaming relay failed for %s: %v", requestID, err)
				svc.reportCredentialFailure(cred)
			}
			return
		}

		content, err := translator.Accumulate(deltas)
		if err != nil {
			log.Printf("❌ Upstream stream failed for %s: %v", requestID, err)
			svc.reportCredentialFailure(cred)
			writeError(w, http.StatusInternalServerError, "Upstream request failed")
			return
		}

		writeJSON(w, http.StatusOK, translator.NewCompletionResponse(requestID, model, flattened, content))
	}
}
