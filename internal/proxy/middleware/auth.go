// Package middleware carries the gateway's request-path middleware:
// caller-key authentication, two-scope rate limiting, request logging,
// admin token auth and CORS.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pysugar/enginelabs-gateway/internal/adminauth"
	"github.com/pysugar/enginelabs-gateway/internal/db"
	"github.com/pysugar/enginelabs-gateway/internal/db/models"
	"github.com/pysugar/enginelabs-gateway/internal/metrics"
	"github.com/pysugar/enginelabs-gateway/internal/ratelimit"
)

type ctxKey int

const (
	callerKeyCtx ctxKey = iota
	logInfoCtx
	adminUserCtx
)

// CallerKeyAuth validates the Bearer caller key, counts the request
// against the key, then enforces the system-wide limit followed by the
// per-key limit. The shared system budget is checked first on purpose:
// it protects overall capacity before any individual caller's quota.
//
// The request counter increments before the limiter runs, so rate-limited
// attempts are counted too.
func CallerKeyAuth(keys *db.CallerKeyStore, settings *db.SettingsStore, limiter *ratelimit.Limiter, m *metrics.Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "Bearer token (API key) required")
				return
			}

			key, err := keys.GetByKey(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid API key")
				return
			}
			if !key.IsEnabled {
				writeError(w, http.StatusForbidden, "API key is disabled")
				return
			}

			SetLogCallerKey(r, key.ID)
			if err := keys.IncrementRequestCount(key.ID); err != nil {
				writeError(w, http.StatusInternalServerError, "Internal Server Error")
				return
			}

			cfg := settings.Get()
			if res := limiter.Check(ratelimit.SystemScope, cfg.SystemRPM); !res.Allowed {
				m.ObserveRateLimited("system")
				writeRateLimitError(w, res)
				return
			}
			if res := limiter.Check(key.Key, cfg.PerKeyRPM); !res.Allowed {
				m.ObserveRateLimited("caller")
				writeRateLimitError(w, res)
				return
			}

			ctx := context.WithValue(r.Context(), callerKeyCtx, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerKeyFrom returns the authenticated caller key, if any.
func CallerKeyFrom(ctx context.Context) *models.CallerKey {
	key, _ := ctx.Value(callerKeyCtx).(*models.CallerKey)
	return key
}

// AdminAuth validates the Bearer admin token issued by the login endpoint.
func AdminAuth(tokens *adminauth.Manager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			subject, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Token invalid or expired")
				return
			}
			ctx := context.WithValue(r.Context(), adminUserCtx, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminUserFrom returns the authenticated admin subject, if any.
func AdminUserFrom(ctx context.Context) string {
	subject, _ := ctx.Value(adminUserCtx).(string)
	return subject
}

// CORS answers preflight requests and opens the API to browser callers.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`, message)
}

func writeRateLimitError(w http.ResponseWriter, res ratelimit.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", fmt.Sprintf("%d", res.RetryAfter))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", res.ResetAt.Unix()))
	w.WriteHeader(http.StatusTooManyRequests)
	fmt.Fprint(w, `{"error":{"message":"Rate limit exceeded. Please try again later.","type":"rate_limit_exceeded","param":null,"code":"rate_limit_exceeded"}}`)
}
