package jobstatus

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rpattn/eligibility/internal/domain"
	"github.com/rpattn/eligibility/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler serves job status and per-batch user details.
type Handler struct {
	projector *Projector
	users     repository.UserRepository
	logger    *zap.Logger
	mux       *http.ServeMux
}

func NewHTTPHandler(projector *Projector, users repository.UserRepository, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{projector: projector, users: users, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /api/jobs/{jobId}/status", h.handleStatus)
	h.mux.HandleFunc("GET /api/jobs/{jobId}/details", h.handleDetails)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type detailsResponse struct {
	Job   View                      `json:"job"`
	Users []domain.BatchUserSummary `json:"users"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}
	view, err := h.projector.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}
	view, err := h.projector.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	users, err := h.users.ListBatchSummaries(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detailsResponse{Job: view, Users: users})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.logger.Error("job status request failed", zap.Error(err))
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(r.PathValue("jobId")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid job id: %v", err), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
