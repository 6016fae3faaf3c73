// Package handlers implements the gateway's HTTP endpoints: the
// OpenAI-compatible caller surface and the admin JSON API.
package handlers

import (
	"encoding/json"
	"log"
	"net/http"
)

// writeError emits the gateway's plain error body: {"error": "..."}.
// Rate-limit rejections use the nested OpenAI-style object instead, but
// those are produced by the middleware before a handler runs.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("⚠️ Failed to encode response: %v", err)
	}
}
