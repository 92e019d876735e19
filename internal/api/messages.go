package api

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/cams-router/internal/domain"
	"github.com/xela07ax/cams-router/internal/router"
)

// handleIngest — POST /v1/messages. Тонкий хендлер: вся логика в пайплайне,
// здесь только декодирование и маппинг исхода на HTTP.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req router.IngestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(domain.OutcomeInvalidRequest),
			"request body must be a valid JSON object")
		return
	}

	out := s.pipeline.Ingest(r.Context(), req)
	if out.Code == domain.OutcomeAccepted {
		writeJSON(w, http.StatusAccepted, map[string]string{"messageId": out.MessageID})
		return
	}

	writeError(w, out.Code.HTTPStatus(), string(out.Code), out.Detail)
}
