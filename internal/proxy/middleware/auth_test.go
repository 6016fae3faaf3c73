package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pysugar/enginelabs-gateway/internal/adminauth"
	"github.com/pysugar/enginelabs-gateway/internal/config"
	"github.com/pysugar/enginelabs-gateway/internal/db"
	"github.com/pysugar/enginelabs-gateway/internal/metrics"
	"github.com/pysugar/enginelabs-gateway/internal/ratelimit"
)

type authFixture struct {
	keys     *db.CallerKeyStore
	settings *db.SettingsStore
	limiter  *ratelimit.Limiter
	handler  http.Handler
}

func newAuthFixture(t *testing.T, systemRPM, perKeyRPM int) *authFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}

	f := &authFixture{
		keys: db.NewCallerKeyStore(gdb),
		settings: db.NewSettingsStore(gdb, &config.Config{
			MaxFailCount:         3,
			MaxRequestRecords:    30,
			PerKeyRPM:            perKeyRPM,
			SystemRPM:            systemRPM,
			AdminTokenExpiryDays: 30,
		}),
		limiter: ratelimit.New(),
	}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CallerKeyFrom(r.Context()) == nil {
			t.Error("authenticated handler should see the caller key in context")
		}
		w.WriteHeader(http.StatusOK)
	})
	f.handler = CallerKeyAuth(f.keys, f.settings, f.limiter, metrics.New())(inner)
	return f
}

func (f *authFixture) do(key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestCallerKeyAuthRejectsMissingAndInvalidKeys(t *testing.T) {
	f := newAuthFixture(t, 100, 100)
	f.keys.Add("sk-good", false)

	if rec := f.do(""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: expected 401, got %d", rec.Code)
	}
	if rec := f.do("sk-wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown key: expected 401, got %d", rec.Code)
	}
	if rec := f.do("sk-good"); rec.Code != http.StatusOK {
		t.Fatalf("valid key: expected 200, got %d", rec.Code)
	}
}

func TestCallerKeyAuthRejectsDisabledKey(t *testing.T) {
	f := newAuthFixture(t, 100, 100)
	key, _ := f.keys.Add("sk-disabled", false)
	f.keys.SetEnabled(key.ID, false)

	if rec := f.do("sk-disabled"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestCallerKeyAuthEnforcesPerKeyLimit(t *testing.T) {
	f := newAuthFixture(t, 100, 2)
	key, _ := f.keys.Add("sk-limited", false)

	for i := 0; i < 2; i++ {
		if rec := f.do("sk-limited"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := f.do("sk-limited")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Fatal("expected X-RateLimit-Reset header")
	}

	var body struct {
		Error struct {
			Type string `json:"type"`
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("429 body is not valid JSON: %v", err)
	}
	if body.Error.Type != "rate_limit_exceeded" || body.Error.Code != "rate_limit_exceeded" {
		t.Fatalf("unexpected 429 body: %s", rec.Body.String())
	}

	// Rejected attempts still count against the key.
	got, _ := f.keys.Get(key.ID)
	if got.RequestCount != 3 {
		t.Fatalf("expected request count 3 including the rejected attempt, got %d", got.RequestCount)
	}
}

func TestCallerKeyAuthSystemLimitCoversAllKeys(t *testing.T) {
	f := newAuthFixture(t, 2, 100)
	f.keys.Add("sk-a", false)
	f.keys.Add("sk-b", false)

	f.do("sk-a")
	f.do("sk-b")

	// The shared budget is spent even though neither key hit its own limit.
	if rec := f.do("sk-a"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected system-wide 429, got %d", rec.Code)
	}
}

func TestAdminAuth(t *testing.T) {
	tokens := adminauth.NewManager("test-secret", 30)
	handler := AdminAuth(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if AdminUserFrom(r.Context()) != "admin" {
			t.Error("expected admin subject in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/api/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/api/stats", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", rec.Code)
	}

	token, _ := tokens.Issue("admin")
	req = httptest.NewRequest(http.MethodGet, "/admin/api/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: expected 200, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/chat/completions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected permissive CORS origin")
	}
}
