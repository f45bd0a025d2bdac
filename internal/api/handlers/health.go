package handlers

import (
	"context"

	"github.com/eeselapp/chatgpt-batch-query/internal/browser"
	"github.com/eeselapp/chatgpt-batch-query/internal/version"
)

// HealthResponse reports service liveness and browser state.
type HealthResponse struct {
	Status           string `json:"status"`
	Version          string `json:"version"`
	BrowserConnected bool   `json:"browserConnected"`
	LoggedIn         bool   `json:"loggedIn"` // profile heuristic, not a live check
	LoginFlowState   string `json:"loginFlowState"`
}

// HealthHandler serves the health endpoint.
type HealthHandler struct {
	manager   *browser.Manager
	flowState func() string
}

// NewHealthHandler creates the health endpoint handler.
func NewHealthHandler(manager *browser.Manager, flowState func() string) *HealthHandler {
	return &HealthHandler{manager: manager, flowState: flowState}
}

// Handle returns the current health snapshot.
func (h *HealthHandler) Handle(ctx context.Context) *HealthResponse {
	return &HealthResponse{
		Status:           "ok",
		Version:          version.Get().Version,
		BrowserConnected: h.manager.Connected(),
		LoggedIn:         h.manager.Profile().IsLoggedIn(),
		LoginFlowState:   h.flowState(),
	}
}
