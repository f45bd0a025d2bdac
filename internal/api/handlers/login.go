package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/eeselapp/chatgpt-batch-query/internal/browser"
	"github.com/eeselapp/chatgpt-batch-query/internal/config"
	"github.com/eeselapp/chatgpt-batch-query/internal/login"
	"github.com/eeselapp/chatgpt-batch-query/internal/models"
	"github.com/eeselapp/chatgpt-batch-query/internal/readiness"
)

// LoginHandler exposes the interactive login flow and the login state query.
type LoginHandler struct {
	cfg        *config.Config
	manager    *browser.Manager
	detector   *readiness.Detector
	controller *login.Controller
	logger     *slog.Logger
}

// NewLoginHandler creates the login endpoints handler.
func NewLoginHandler(cfg *config.Config, manager *browser.Manager, detector *readiness.Detector, controller *login.Controller, logger *slog.Logger) *LoginHandler {
	return &LoginHandler{
		cfg:        cfg,
		manager:    manager,
		detector:   detector,
		controller: controller,
		logger:     logger,
	}
}

// Start begins the interactive login flow.
func (h *LoginHandler) Start(ctx context.Context) (*models.LoginStartResponse, error) {
	// The flow outlives this request; the user logs in at their own pace.
	already, err := h.controller.Start(context.Background())
	if err != nil {
		if errors.Is(err, login.ErrFlowActive) {
			return nil, huma.Error409Conflict("a login flow is already in progress")
		}
		if errors.Is(err, login.ErrBusy) {
			return nil, huma.Error409Conflict("a batch is running; retry when it finishes")
		}
		return nil, huma.Error500InternalServerError("start login flow", err)
	}
	if already {
		return &models.LoginStartResponse{
			AlreadyLoggedIn: true,
			Message:         "session already authenticated",
		}, nil
	}
	return &models.LoginStartResponse{
		Message: "login window opened; complete the login there",
	}, nil
}

// FlowState reports the current login flow state.
func (h *LoginHandler) FlowState() string {
	return h.controller.State()
}

// State reports the inferred login state. The default answer comes from the
// on-disk profile heuristic; live=true verifies against the real page, which
// costs a navigation on the shared browser.
func (h *LoginHandler) State(ctx context.Context, live bool) (*models.LoginStateResponse, error) {
	if !live {
		return &models.LoginStateResponse{
			LoggedIn: h.manager.Profile().IsLoggedIn(),
			Method:   "heuristic",
		}, nil
	}

	loggedIn, err := h.liveCheck(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("live login check", err)
	}
	return &models.LoginStateResponse{LoggedIn: loggedIn, Method: "live"}, nil
}

// liveCheck navigates the shared browser to the target and classifies the
// page.
func (h *LoginHandler) liveCheck(ctx context.Context) (bool, error) {
	page, _, err := h.manager.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer h.manager.Release()

	p := page.Timeout(h.cfg.NavTimeout)
	if err := p.Navigate(h.cfg.TargetURL); err != nil {
		return false, err
	}
	_ = p.WaitLoad()

	return h.detector.Check(page) == readiness.StateUsable, nil
}
