package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/eligibility/internal/domain"
	"github.com/rpattn/eligibility/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler exposes upload registration, payload delivery, cancellation and row errors over HTTP.
type Handler struct {
	service        *Service
	maxUploadBytes int64
	logger         *zap.Logger
	mux            *http.ServeMux
}

// NewHTTPHandler wires the ingestion routes.
func NewHTTPHandler(service *Service, maxUploadBytes int64, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 << 20
	}
	h := &Handler{service: service, maxUploadBytes: maxUploadBytes, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /api/uploads", h.handleRegister)
	h.mux.HandleFunc("PUT /api/uploads/{jobId}", h.handleUpload)
	h.mux.HandleFunc("POST /api/jobs/{jobId}/cancel", h.handleCancel)
	h.mux.HandleFunc("GET /api/jobs/{jobId}/errors", h.handleErrors)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type registerPayload struct {
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}

type registerResponse struct {
	JobID     uuid.UUID        `json:"job_id"`
	Status    domain.JobStatus `json:"status"`
	UploadURL string           `json:"upload_url"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload registerPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if payload.FileSize > h.maxUploadBytes {
		http.Error(w, fmt.Sprintf("file exceeds maximum size of %d bytes", h.maxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	job, err := h.service.RegisterUpload(r.Context(), payload.FileName)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		JobID:     job.ID,
		Status:    job.Status,
		UploadURL: "/api/uploads/" + job.ID.String(),
	})
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("file exceeds maximum size of %d bytes", h.maxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, fmt.Sprintf("failed to read file: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.service.StartIngestion(r.Context(), jobID, data); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info("ingestion accepted", zap.String("job_id", jobID.String()), zap.Int("bytes", len(data)))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": jobID,
		"status": domain.JobStatusParsing,
	})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}
	job, err := h.service.CancelJob(r.Context(), jobID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) handleErrors(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 200)
	offset := queryInt(r, "offset", 0)

	if _, err := h.service.GetJob(r.Context(), jobID); err != nil {
		h.writeError(w, err)
		return
	}
	rows, err := h.service.ListInvalidRows(r.Context(), jobID, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id": jobID,
		"rows":   rows,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrJobTerminal), errors.Is(err, ErrJobNotRunnable):
		status = http.StatusConflict
	case errors.Is(err, ErrUnsupportedFormat), errors.Is(err, ErrMalformedInput):
		status = http.StatusBadRequest
	case errors.Is(err, ErrPersistence):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("ingestion request failed", zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

func parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(r.PathValue("jobId"))
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid job id: %v", err), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
