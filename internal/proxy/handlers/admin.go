package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pysugar/enginelabs-gateway/internal/adminauth"
	"github.com/pysugar/enginelabs-gateway/internal/db"
	"github.com/pysugar/enginelabs-gateway/internal/db/models"
	"github.com/pysugar/enginelabs-gateway/internal/pool"
	"github.com/pysugar/enginelabs-gateway/internal/session"
)

const verifyTimeout = 30 * time.Second

// AdminLoginHandler exchanges the operator username/password for a signed
// session token.
func AdminLoginHandler(username, password string, tokens *adminauth.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if body.Username != username || body.Password != password {
			writeError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}

		token, err := tokens.Issue(body.Username)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to issue token")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"token":   token,
			"message": "Login successful",
		})
	}
}

// AdminStatsHandler returns the aggregate counters for the dashboard.
func AdminStatsHandler(creds *db.CredentialStore, keys *db.CallerKeyStore, logs *db.RequestLogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		total, valid, invalid, err := creds.Counts()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load stats")
			return
		}
		keyCount, err := keys.Count()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load stats")
			return
		}
		totalReqs, err := logs.CountAll()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load stats")
			return
		}
		modelReqs, err := logs.CountByPath("/v1/models")
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load stats")
			return
		}

		writeJSON(w, http.StatusOK, models.SystemStats{
			TotalCredentials:   total,
			ValidCredentials:   valid,
			InvalidCredentials: invalid,
			TotalCallerKeys:    keyCount,
			TotalRequests:      totalReqs,
			ModelsRequests:     modelReqs,
		})
	}
}

// AdminLogsHandler returns the most recent request log entries, newest first.
func AdminLogsHandler(logs *db.RequestLogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}

		entries, err := logs.Recent(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load logs")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"logs":  entries,
			"count": len(entries),
		})
	}
}

// ListCredentialsHandler returns all pool credentials, valid or not.
func ListCredentialsHandler(creds *db.CredentialStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := creds.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load credentials")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"credentials": all,
			"count":       len(all),
		})
	}
}

// AddCredentialHandler verifies a new credential against the upstream before
// persisting it. A credential that cannot be exchanged for a session is
// rejected outright rather than stored invalid.
func AddCredentialHandler(creds *db.CredentialStore, resolver *session.Resolver, settings *db.SettingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Value == "" {
			writeError(w, http.StatusBadRequest, "value is required")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), verifyTimeout)
		defer cancel()
		if err := resolver.Verify(ctx, settings.Get().AuthBaseURL, body.Value); err != nil {
			log.Printf("⚠️ Rejected credential: %v", err)
			writeError(w, http.StatusBadRequest, "Credential verification failed")
			return
		}

		cred, err := creds.Add(body.Value, false)
		if err != nil {
			if errors.Is(err, db.ErrDuplicate) {
				writeError(w, http.StatusConflict, "Credential already exists")
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to add credential")
			return
		}
		writeJSON(w, http.StatusCreated, cred)
	}
}

// TestCredentialHandler re-verifies a stored credential on demand. Success
// resets its failure state; failure disables it immediately.
func TestCredentialHandler(creds *db.CredentialStore, p *pool.Pool, resolver *session.Resolver, settings *db.SettingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		cred, err := creds.Get(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "Credential not found")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), verifyTimeout)
		defer cancel()
		verifyErr := resolver.Verify(ctx, settings.Get().AuthBaseURL, cred.SecretValue)
		if verifyErr != nil {
			log.Printf("🚫 Credential %s failed manual test: %v", id, verifyErr)
			resolver.Invalidate(id)
			if err := creds.MarkInvalid(id); err != nil {
				writeError(w, http.StatusInternalServerError, "Failed to update credential")
				return
			}
		} else if err := p.ReportSuccess(id); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to update credential")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":    id,
			"valid": verifyErr == nil,
		})
	}
}

// DeleteCredentialHandler removes a credential. Default credentials seeded
// from the environment cannot be deleted.
func DeleteCredentialHandler(creds *db.CredentialStore, resolver *session.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := creds.Remove(id); err != nil {
			switch {
			case errors.Is(err, db.ErrDefaultRecord):
				writeError(w, http.StatusBadRequest, "Cannot delete a default credential")
			case errors.Is(err, db.ErrNotFound):
				writeError(w, http.StatusNotFound, "Credential not found")
			default:
				writeError(w, http.StatusInternalServerError, "Failed to delete credential")
			}
			return
		}
		resolver.Invalidate(id)
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

// ListCallerKeysHandler returns all issued caller keys.
func ListCallerKeysHandler(keys *db.CallerKeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := keys.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load keys")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"keys":  all,
			"count": len(all),
		})
	}
}

// AddCallerKeyHandler issues a new caller key.
func AddCallerKeyHandler(keys *db.CallerKeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Key string `json:"key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Key == "" {
			writeError(w, http.StatusBadRequest, "key is required")
			return
		}

		key, err := keys.Add(body.Key, false)
		if err != nil {
			if errors.Is(err, db.ErrDuplicate) {
				writeError(w, http.StatusConflict, "Key already exists")
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to add key")
			return
		}
		writeJSON(w, http.StatusCreated, key)
	}
}

// UpdateCallerKeyHandler toggles a caller key on or off. Only the enabled
// flag is mutable; the secret itself never changes after issuance.
func UpdateCallerKeyHandler(keys *db.CallerKeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var body struct {
			IsEnabled *bool `json:"isEnabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IsEnabled == nil {
			writeError(w, http.StatusBadRequest, "isEnabled is required")
			return
		}

		if err := keys.SetEnabled(id, *body.IsEnabled); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Key not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to update key")
			return
		}

		key, err := keys.Get(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load key")
			return
		}
		writeJSON(w, http.StatusOK, key)
	}
}

// DeleteCallerKeyHandler removes a caller key. Default keys seeded from the
// environment cannot be deleted.
func DeleteCallerKeyHandler(keys *db.CallerKeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := keys.Remove(id); err != nil {
			switch {
			case errors.Is(err, db.ErrDefaultRecord):
				writeError(w, http.StatusBadRequest, "Cannot delete a default key")
			case errors.Is(err, db.ErrNotFound):
				writeError(w, http.StatusNotFound, "Key not found")
			default:
				writeError(w, http.StatusInternalServerError, "Failed to delete key")
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

// GetSettingsHandler returns the current system settings.
func GetSettingsHandler(settings *db.SettingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, settings.Get())
	}
}

// UpdateSettingsHandler applies a partial settings update. Invalid field
// values reject the whole patch.
func UpdateSettingsHandler(settings *db.SettingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch db.SettingsPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		updated, err := settings.Update(patch)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"settings": updated,
		})
	}
}

// GetModelMappingsHandler returns the display-to-internal model name table.
func GetModelMappingsHandler(mappings *db.ModelMappingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := mappings.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load model mappings")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"mappings": all,
			"count":    len(all),
		})
	}
}

// UpdateModelMappingsHandler replaces the whole model mapping table.
func UpdateModelMappingsHandler(mappings *db.ModelMappingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body []models.ModelMapping
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		if err := mappings.Replace(body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		all, err := mappings.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load model mappings")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"mappings": all,
			"count":    len(all),
		})
	}
}
