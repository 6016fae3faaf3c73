package middleware

import (
	"context"
	"log"
	"net"
	"net/http"

	"github.com/pysugar/enginelabs-gateway/internal/db"
	"github.com/pysugar/enginelabs-gateway/internal/db/models"
	"github.com/pysugar/enginelabs-gateway/internal/metrics"
)

// logInfo is filled in by inner middleware and handlers while the request
// runs; the logger reads it after the response completes. Requests are
// handled by a single goroutine, so no locking is needed.
type logInfo struct {
	callerKeyID string
	model       string
}

// RequestLogger records every completed gateway request, success or
// failure, into the bounded request log. It must wrap the auth middleware
// so rejected requests are recorded too.
func RequestLogger(logs *db.RequestLogStore, m *metrics.Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := &logInfo{}
			ctx := context.WithValue(r.Context(), logInfoCtx, info)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(ctx))

			m.ObserveRequest(r.URL.Path, rec.status)
			entry := models.RequestLog{
				CallerIP:    clientIP(r),
				Path:        r.URL.Path,
				Method:      r.Method,
				StatusCode:  rec.status,
				CallerKeyID: info.callerKeyID,
				Model:       info.model,
			}
			if err := logs.Record(entry); err != nil {
				log.Printf("⚠️ Failed to record request log: %v", err)
			}
		})
	}
}

// SetLogCallerKey attributes the request log entry to a caller key.
func SetLogCallerKey(r *http.Request, id string) {
	if info, ok := r.Context().Value(logInfoCtx).(*logInfo); ok {
		info.callerKeyID = id
	}
}

// SetLogModel attributes the request log entry to the requested model.
func SetLogModel(r *http.Request, model string) {
	if info, ok := r.Context().Value(logInfoCtx).(*logInfo); ok {
		info.model = model
	}
}

// statusRecorder captures the response status for the log entry. Flush is
// forwarded so SSE streaming keeps working through the wrapper.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func clientIP(r *http.Request) string {
	// chi's RealIP middleware has already folded X-Forwarded-For into
	// RemoteAddr when present.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
