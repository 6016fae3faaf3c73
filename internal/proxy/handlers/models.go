package handlers

import (
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pysugar/enginelabs-gateway/internal/db"
)

// modelsList is the OpenAI-compatible /v1/models payload.
type modelsList struct {
	Object string         `json:"object"`
	Data   []openai.Model `json:"data"`
}

// ModelsHandler handles GET /v1/models, one entry per configured
// display-name mapping.
func ModelsHandler(mappings *db.ModelMappingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maps, err := mappings.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list models")
			return
		}

		now := time.Now().Unix()
		data := make([]openai.Model, 0, len(maps))
		for _, m := range maps {
			data = append(data, openai.Model{
				ID:        m.DisplayName,
				Object:    "model",
				CreatedAt: now,
				OwnedBy:   "enginelabs",
			})
		}

		writeJSON(w, http.StatusOK, modelsList{Object: "list", Data: data})
	}
}
