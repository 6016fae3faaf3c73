package handlers

import (
	"net/http"
	"time"

	"github.com/pysugar/enginelabs-gateway/internal/version"
)

// HealthHandler handles GET /health.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "ok",
			"service":   "enginelabs-gateway",
			"version":   version.Version,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
