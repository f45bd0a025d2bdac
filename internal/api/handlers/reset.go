package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/eeselapp/chatgpt-batch-query/internal/browser"
	"github.com/eeselapp/chatgpt-batch-query/internal/models"
)

// ResetHandler wipes the browser session: closes the browser and deletes the
// on-disk profile, forcing a fresh login.
type ResetHandler struct {
	manager *browser.Manager
	busy    func() bool
	logger  *slog.Logger
}

// NewResetHandler creates the reset endpoint handler.
func NewResetHandler(manager *browser.Manager, busy func() bool, logger *slog.Logger) *ResetHandler {
	return &ResetHandler{manager: manager, busy: busy, logger: logger}
}

// Handle performs the reset. Refused while a batch is running; killing the
// browser under an active batch would corrupt every remaining question.
func (h *ResetHandler) Handle(ctx context.Context) (*models.ResetResponse, error) {
	if h.busy != nil && h.busy() {
		return nil, huma.Error409Conflict("a batch is running; wait for it to finish")
	}
	if err := h.manager.Reset(ctx); err != nil {
		return nil, huma.Error500InternalServerError("reset session", err)
	}
	h.logger.Info("session reset: browser closed and profile removed")
	return &models.ResetResponse{Message: "session cleared; a new login is required"}, nil
}
