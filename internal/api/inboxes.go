package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/cams-router/internal/domain"
	"github.com/xela07ax/cams-router/internal/infra"
)

const updatedByManagement = "router_service"

type registerRequest struct {
	AIAgentAddress       string  `json:"aiAgentAddress"`
	InboxDestinationType string  `json:"inboxDestinationType"`
	InboxName            string  `json:"inboxName"`
	Description          *string `json:"description,omitempty"`
	OwnerTeam            *string `json:"ownerTeam,omitempty"`
}

type updateRequest struct {
	InboxDestinationType *string `json:"inboxDestinationType,omitempty"`
	InboxName            *string `json:"inboxName,omitempty"`
	Status               *string `json:"status,omitempty"`
	Description          *string `json:"description,omitempty"`
	OwnerTeam            *string `json:"ownerTeam,omitempty"`
}

// handleRegister — POST /v1/agent-inboxes.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON payload")
		return
	}

	if req.AIAgentAddress == "" || req.InboxDestinationType == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST",
			"missing required fields: aiAgentAddress, inboxDestinationType")
		return
	}

	destType := domain.DestinationType(req.InboxDestinationType)
	if !destType.Valid() {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid inboxDestinationType value")
		return
	}

	// Если inbox не задан явно, имя топика выводится из адреса
	inboxName := req.InboxName
	if inboxName == "" {
		if destType != domain.DestKafkaTopic {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST",
				"inboxName is required for non-topic destinations")
			return
		}
		inboxName = infra.TopicForAddress(req.AIAgentAddress)
	}

	mapping := &domain.AgentMapping{
		Address:         req.AIAgentAddress,
		DestinationType: destType,
		InboxName:       inboxName,
		Status:          domain.StatusActive,
		Description:     req.Description,
		OwnerTeam:       req.OwnerTeam,
		UpdatedBy:       updatedByManagement,
	}

	created, err := s.directory.Register(r.Context(), mapping)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateAgent) {
			writeError(w, http.StatusConflict, "DUPLICATE_AGENT",
				"agent with address '"+req.AIAgentAddress+"' already exists")
			return
		}
		s.logger.Error("registration failed", zap.String("address", req.AIAgentAddress), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// handleGet — GET /v1/agent-inboxes/{address}.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	mapping, err := s.directory.Resolve(r.Context(), address)
	if err != nil {
		s.logger.Error("lookup failed", zap.String("address", address), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred")
		return
	}
	if mapping == nil {
		writeError(w, http.StatusNotFound, "AGENT_NOT_FOUND",
			"agent mapping not found for "+address)
		return
	}

	writeJSON(w, http.StatusOK, mapping)
}

// handleUpdate — PUT /v1/agent-inboxes/{address}. Только поля из allow-list;
// неизвестные поля в теле игнорируются декодером, пустой патч — 400.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON payload")
		return
	}

	patch := domain.MappingPatch{
		InboxName:   req.InboxName,
		Description: req.Description,
		OwnerTeam:   req.OwnerTeam,
	}
	if req.InboxDestinationType != nil {
		dt := domain.DestinationType(*req.InboxDestinationType)
		patch.DestinationType = &dt
	}
	if req.Status != nil {
		st := domain.MappingStatus(*req.Status)
		patch.Status = &st
	}

	if patch.IsZero() {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "no update fields provided in payload")
		return
	}

	updated, err := s.directory.Mutate(r.Context(), address, patch, updatedByManagement)
	if err != nil {
		var ve *domain.ValidationError
		switch {
		case errors.As(err, &ve):
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", ve.Reason)
		case errors.Is(err, domain.ErrAgentNotFound):
			writeError(w, http.StatusNotFound, "AGENT_NOT_FOUND",
				"agent mapping not found for "+address)
		default:
			s.logger.Error("update failed", zap.String("address", address), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred")
		}
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// handleDelete — DELETE /v1/agent-inboxes/{address}.
// Удаление отсутствующей записи — наблюдаемый 404, не тихий успех.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	if err := s.directory.Remove(r.Context(), address); err != nil {
		if errors.Is(err, domain.ErrAgentNotFound) {
			writeError(w, http.StatusNotFound, "AGENT_NOT_FOUND",
				"agent mapping not found for "+address)
			return
		}
		s.logger.Error("delete failed", zap.String("address", address), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleList — GET /v1/agent-inboxes?status=&ownerTeam=&limit=&offset=.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var f domain.MappingFilter

	if v := r.URL.Query().Get("status"); v != "" {
		st := domain.MappingStatus(v)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid status filter")
			return
		}
		f.Status = &st
	}
	if v := r.URL.Query().Get("ownerTeam"); v != "" {
		f.OwnerTeam = &v
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		f.Offset, _ = strconv.Atoi(v)
	}

	items, err := s.directory.List(r.Context(), f)
	if err != nil {
		s.logger.Error("list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": len(items),
	})
}
