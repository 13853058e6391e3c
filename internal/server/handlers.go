package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/trackslicer/internal/batch"
	"github.com/maauso/trackslicer/internal/session"
	"github.com/maauso/trackslicer/internal/strategy"
)

// BatchService is the use case the handlers drive.
type BatchService interface {
	CreateBatch(ctx context.Context, in batch.CutInput) (*batch.Batch, error)
	Start(ctx context.Context, in batch.CutInput) (*batch.Batch, error)
	GetBatch(ctx context.Context, id string) (*batch.Batch, error)
	ListBatches(ctx context.Context) ([]*batch.Batch, error)
	ListSessions() ([]session.Path, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            BatchService
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateCut only creates the batch and returns immediately
// without cutting anything.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service BatchService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true, // Default to enabled
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// ListSessions handles GET /sessions requests.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	paths, err := h.service.ListSessions()
	if err != nil {
		h.logger.Error("failed to list sessions",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list sessions", "SESSION_LIST_FAILED")
		return
	}

	resp := SessionsResponse{Sessions: make([]SessionResponse, len(paths))}
	for i, p := range paths {
		resp.Sessions[i] = SessionResponse{Name: p.Name(), Path: string(p)}
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateCut handles POST /sessions/{name}/cuts requests.
func (h *Handlers) CreateCut(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "session name is required", "MISSING_SESSION")
		return
	}

	var req CreateCutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
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

	input := batch.CutInput{
		Session:  name,
		Strategy: strategy.Kind(req.Strategy),
		Offset:   req.Offset,
	}

	create := h.service.Start
	if !h.enableAsyncProcess {
		create = h.service.CreateBatch
	}

	created, err := create(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
		case errors.Is(err, batch.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		case errors.Is(err, batch.ErrSessionBusy):
			writeError(w, http.StatusConflict, err.Error(), "SESSION_BUSY")
		default:
			h.logger.Error("failed to create batch",
				slog.String("session", name),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to create batch", "BATCH_CREATION_FAILED")
		}
		return
	}

	h.logger.Info("cut batch created",
		slog.String("batch_id", created.ID),
		slog.String("session", name),
		slog.String("strategy", string(created.Strategy)),
	)

	writeJSON(w, http.StatusAccepted, CreateCutResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

// GetBatch handles GET /batches/{id} requests.
func (h *Handlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("id")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "batch ID is required", "MISSING_BATCH_ID")
		return
	}

	found, err := h.service.GetBatch(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, batch.ErrBatchNotFound) {
			writeError(w, http.StatusNotFound, "batch not found", "BATCH_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get batch",
			slog.String("batch_id", batchID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get batch", "BATCH_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, toBatchResponse(found))
}

// ListBatches handles GET /batches requests.
func (h *Handlers) ListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.service.ListBatches(r.Context())
	if err != nil {
		h.logger.Error("failed to list batches",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list batches", "BATCH_LIST_FAILED")
		return
	}

	resp := BatchesResponse{Batches: make([]BatchResponse, len(batches))}
	for i, b := range batches {
		resp.Batches[i] = toBatchResponse(b)
	}
	writeJSON(w, http.StatusOK, resp)
}

func toBatchResponse(b *batch.Batch) BatchResponse {
	resp := BatchResponse{
		ID:        b.ID,
		Session:   b.Session,
		Strategy:  string(b.Strategy),
		Status:    string(b.Status),
		Progress:  b.Progress,
		Discarded: b.Discarded,
		Error:     b.Error,
		Tracks:    make([]TrackResponse, len(b.Tracks)),
		CreatedAt: b.CreatedAt,
	}
	if !b.CompletedAt.IsZero() {
		completed := b.CompletedAt
		resp.CompletedAt = &completed
	}
	for i, t := range b.Tracks {
		resp.Tracks[i] = TrackResponse{
			Index:       t.Index,
			Title:       t.Song.Title,
			Artist:      t.Song.Artist,
			Album:       t.Song.Album,
			TrackNumber: t.Song.TrackNumber,
			Start:       t.Start,
			End:         t.End,
			Status:      string(t.Status),
			OutputPath:  t.OutputPath,
			Location:    t.Location,
			Error:       t.Error,
		}
	}
	return resp
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
