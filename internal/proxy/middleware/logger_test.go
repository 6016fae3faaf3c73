package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pysugar/enginelabs-gateway/internal/db"
	"github.com/pysugar/enginelabs-gateway/internal/metrics"
)

func newLogStore(t *testing.T) *db.RequestLogStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	return db.NewRequestLogStore(gdb, func() int { return 30 })
}

func TestRequestLoggerRecordsCompletedRequests(t *testing.T) {
	logs := newLogStore(t)
	handler := RequestLogger(logs, metrics.New())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetLogCallerKey(r, "key-1")
		SetLogModel(r, "claude-sonnet-4.5")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	req.RemoteAddr = "10.1.2.3:54321"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries, err := logs.Recent(1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Path != "/v1/chat/completions" || entry.Method != "POST" || entry.StatusCode != 200 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.CallerKeyID != "key-1" || entry.Model != "claude-sonnet-4.5" {
		t.Fatalf("handler attribution missing: %+v", entry)
	}
	if entry.CallerIP != "10.1.2.3" {
		t.Fatalf("expected client ip without port, got %q", entry.CallerIP)
	}
}

func TestRequestLoggerRecordsRejections(t *testing.T) {
	logs := newLogStore(t)
	handler := RequestLogger(logs, metrics.New())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/models", nil))

	entries, _ := logs.Recent(1)
	if len(entries) != 1 || entries[0].StatusCode != 401 {
		t.Fatalf("rejected requests must be logged, got %+v", entries)
	}
}

func TestStatusRecorderDefaultsTo200OnImplicitWrite(t *testing.T) {
	logs := newLogStore(t)
	handler := RequestLogger(logs, metrics.New())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/models", nil))

	entries, _ := logs.Recent(1)
	if len(entries) != 1 || entries[0].StatusCode != 200 {
		t.Fatalf("implicit writes should record 200, got %+v", entries)
	}
}
