package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/cams-router/internal/domain"
	"github.com/xela07ax/cams-router/internal/health"
)

// handleHealthReport — POST /v1/agent-health-check.
func (s *Server) handleHealthReport(w http.ResponseWriter, r *http.Request) {
	var rep health.Report
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON payload")
		return
	}

	if err := s.health.Record(r.Context(), rep); err != nil {
		var ve *domain.ValidationError
		switch {
		case errors.As(err, &ve):
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", ve.Reason)
		case errors.Is(err, domain.ErrAgentNotFound):
			writeError(w, http.StatusNotFound, "AGENT_NOT_FOUND",
				"agent mapping not found for "+rep.AIAgentAddress)
		default:
			s.logger.Error("health report failed",
				zap.String("address", rep.AIAgentAddress), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "success",
		"message":   "health status recorded",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
