// Package handlers implements the HTTP API surface.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/eeselapp/chatgpt-batch-query/internal/batch"
	"github.com/eeselapp/chatgpt-batch-query/internal/export"
	"github.com/eeselapp/chatgpt-batch-query/internal/ingest"
	"github.com/eeselapp/chatgpt-batch-query/internal/logging"
	"github.com/eeselapp/chatgpt-batch-query/internal/models"
	"github.com/eeselapp/chatgpt-batch-query/internal/store"
)

// BatchHandler starts batches and serves their progress and exports.
type BatchHandler struct {
	coordinator *batch.Coordinator
	tracker     *batch.Tracker
	store       *store.SQLiteStore
	loggedIn    func(ctx context.Context) bool
	logger      *slog.Logger
}

// NewBatchHandler creates the batch endpoints handler.
func NewBatchHandler(coordinator *batch.Coordinator, tracker *batch.Tracker, st *store.SQLiteStore, loggedIn func(ctx context.Context) bool, logger *slog.Logger) *BatchHandler {
	return &BatchHandler{
		coordinator: coordinator,
		tracker:     tracker,
		store:       st,
		loggedIn:    loggedIn,
		logger:      logger,
	}
}

// Start validates the request, checks authentication up front, and kicks the
// batch off in the background. The response returns immediately; progress is
// polled separately.
func (h *BatchHandler) Start(ctx context.Context, req *models.StartBatchRequest) (*models.StartBatchResponse, error) {
	questions := req.Questions
	if len(questions) == 0 && req.Text != "" {
		questions = ingest.FromText(req.Text)
	}
	if len(questions) == 0 {
		return nil, huma.Error422UnprocessableEntity("no questions provided")
	}

	// Fail fast here rather than recording a doomed session.
	if !h.loggedIn(ctx) {
		return nil, huma.Error409Conflict("not logged in; run the login flow first")
	}

	sessionID := ulid.Make().String()

	// The batch deliberately outlives this request.
	runCtx := logging.WithBatchID(context.Background(), sessionID)
	go func() {
		if _, err := h.coordinator.Run(runCtx, sessionID, questions); err != nil {
			h.logger.Error("batch run failed", "session", sessionID, "error", err)
		}
	}()

	return &models.StartBatchResponse{SessionID: sessionID, Total: len(questions)}, nil
}

// Progress returns the live snapshot for a session, falling back to the
// persisted record once the in-memory state has aged out.
func (h *BatchHandler) Progress(ctx context.Context, sessionID string) (*models.ProgressResponse, error) {
	if snap, ok := h.tracker.Snapshot(sessionID); ok {
		return &snap, nil
	}

	rec, err := h.store.GetBatch(ctx, sessionID)
	if err != nil {
		return nil, huma.Error500InternalServerError("load batch", err)
	}
	if rec == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("unknown session %q", sessionID))
	}

	results, err := h.store.Results(ctx, sessionID)
	if err != nil {
		return nil, huma.Error500InternalServerError("load results", err)
	}
	resp := &models.ProgressResponse{
		SessionID: rec.ID,
		Current:   len(results),
		Total:     rec.Total,
		Status:    rec.Status,
		Done:      !rec.FinishedAt.IsZero(),
		Results:   results,
	}
	if rec.Total > 0 {
		resp.ProgressPercent = float64(len(results)) / float64(rec.Total) * 100
	}
	if !rec.FinishedAt.IsZero() {
		resp.ElapsedMs = rec.FinishedAt.Sub(rec.CreatedAt).Milliseconds()
	}
	return resp, nil
}

// ExportCSV streams a session's results as a CSV download. Plain chi handler;
// file downloads do not go through the JSON API layer.
func (h *BatchHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	results, err := h.store.Results(r.Context(), sessionID)
	if err != nil {
		http.Error(w, `{"error":"failed to load results"}`, http.StatusInternalServerError)
		return
	}
	if len(results) == 0 {
		// Not yet flushed to disk, or unknown. Try the live tracker.
		snap, ok := h.tracker.Snapshot(sessionID)
		if !ok {
			http.Error(w, `{"error":"unknown session"}`, http.StatusNotFound)
			return
		}
		results = snap.Results
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="results-%s.csv"`, sessionID))
	if err := export.WriteCSV(w, results); err != nil {
		h.logger.Error("csv export failed", "session", sessionID, "error", err)
	}
}
