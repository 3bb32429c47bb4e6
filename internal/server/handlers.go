package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/veo-relay/internal/operation"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service       *operation.Service
	validator     *validator.Validate
	logger        *slog.Logger
	publicBaseURL string
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithPublicBaseURL sets the externally reachable base URL used to build
// absolute video links. Without it, relative proxy paths are returned.
func WithPublicBaseURL(url string) HandlerOption {
	return func(h *Handlers) {
		h.publicBaseURL = strings.TrimSuffix(url, "/")
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *operation.Service, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:   service,
		validator: validator.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Configured: h.service.Configured(),
	})
}

// CreateOperation handles POST /v1/operations requests.
func (h *Handlers) CreateOperation(w http.ResponseWriter, r *http.Request) {
	var req CreateOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	op, err := h.service.Create(r.Context(), operation.Params{
		Prompt:          req.Prompt,
		AudioPrompt:     req.AudioPrompt,
		DurationSeconds: req.DurationSeconds,
		AspectRatio:     req.AspectRatio,
	})
	if err != nil {
		if errors.Is(err, operation.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, err.Error(), "NOT_CONFIGURED")
			return
		}
		h.logger.Error("failed to create operation",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("upstream submit failed: %v", err), "UPSTREAM_ERROR")
		return
	}

	h.logger.Info("operation accepted",
		slog.String("operation_id", op.ID),
	)

	writeJSON(w, http.StatusAccepted, CreateOperationResponse{
		ID:     op.ID,
		Status: string(op.Status),
	})
}

// GetOperation handles GET /v1/operations/{id} requests.
func (h *Handlers) GetOperation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "operation ID is required", "MISSING_OPERATION_ID")
		return
	}

	op, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, operation.ErrNotFound) {
			writeError(w, http.StatusNotFound, "operation not found", "OPERATION_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get operation",
			slog.String("operation_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get operation", "OPERATION_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, h.toResponse(op))
}

// ListOperations handles GET /v1/operations requests.
func (h *Handlers) ListOperations(w http.ResponseWriter, r *http.Request) {
	ops, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list operations",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list operations", "OPERATION_LIST_FAILED")
		return
	}

	resp := OperationListResponse{
		Operations: make([]OperationResponse, 0, len(ops)),
	}
	for _, op := range ops {
		resp.Operations = append(resp.Operations, h.toResponse(op))
	}

	writeJSON(w, http.StatusOK, resp)
}

// DeleteOperation handles DELETE /v1/operations/{id} requests.
func (h *Handlers) DeleteOperation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "operation ID is required", "MISSING_OPERATION_ID")
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		if errors.Is(err, operation.ErrNotFound) {
			writeError(w, http.StatusNotFound, "operation not found", "OPERATION_NOT_FOUND")
			return
		}
		h.logger.Error("failed to delete operation",
			slog.String("operation_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete operation", "OPERATION_DELETE_FAILED")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// StreamVideo handles GET /v1/operations/{id}/video requests. It relays the
// upstream video bytes without buffering the full payload.
func (h *Handlers) StreamVideo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "operation ID is required", "MISSING_OPERATION_ID")
		return
	}

	artifact, err := h.service.Stream(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, operation.ErrNotFound):
			writeError(w, http.StatusNotFound, "operation not found", "OPERATION_NOT_FOUND")
		case errors.Is(err, operation.ErrNotReady):
			writeError(w, http.StatusConflict, "video is not ready yet", "OPERATION_NOT_READY")
		case errors.Is(err, operation.ErrNoArtifact):
			writeError(w, http.StatusConflict, "operation finished without a video", "OPERATION_NO_VIDEO")
		case errors.Is(err, operation.ErrNotConfigured):
			writeError(w, http.StatusServiceUnavailable, err.Error(), "NOT_CONFIGURED")
		default:
			h.logger.Error("failed to stream video",
				slog.String("operation_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadGateway, "upstream download failed", "UPSTREAM_ERROR")
		}
		return
	}
	defer func() { _ = artifact.Body.Close() }()

	w.Header().Set("Content-Type", artifact.ContentType)
	if artifact.ContentLength >= 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", artifact.ContentLength))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, artifact.Body); err != nil {
		// Headers are already sent; all we can do is log.
		h.logger.Warn("video relay interrupted",
			slog.String("operation_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// toResponse converts an operation to its HTTP representation.
func (h *Handlers) toResponse(op *operation.Operation) OperationResponse {
	resp := OperationResponse{
		ID:        op.ID,
		Status:    string(op.Status),
		Error:     op.Error,
		CreatedAt: op.CreatedAt,
	}
	if !op.CompletedAt.IsZero() {
		completedAt := op.CompletedAt
		resp.CompletedAt = &completedAt
	}
	if op.Status == operation.StatusCompleted {
		resp.VideoURL = h.videoURL(op)
	}
	return resp
}

// videoURL builds the client-facing video link: the archived copy's URL
// when one exists, otherwise the relay's own proxy endpoint.
func (h *Handlers) videoURL(op *operation.Operation) string {
	if op.ArchiveURL != "" {
		return op.ArchiveURL
	}
	path := fmt.Sprintf("/v1/operations/%s/video", op.ID)
	if h.publicBaseURL != "" {
		return h.publicBaseURL + path
	}
	return path
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
