// Package main provides the entry point for the batch query server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/eeselapp/chatgpt-batch-query/internal/api/handlers"
	"github.com/eeselapp/chatgpt-batch-query/internal/batch"
	"github.com/eeselapp/chatgpt-batch-query/internal/browser"
	"github.com/eeselapp/chatgpt-batch-query/internal/config"
	"github.com/eeselapp/chatgpt-batch-query/internal/extract"
	"github.com/eeselapp/chatgpt-batch-query/internal/http/mw"
	"github.com/eeselapp/chatgpt-batch-query/internal/logging"
	"github.com/eeselapp/chatgpt-batch-query/internal/login"
	"github.com/eeselapp/chatgpt-batch-query/internal/models"
	"github.com/eeselapp/chatgpt-batch-query/internal/readiness"
	"github.com/eeselapp/chatgpt-batch-query/internal/scrape"
	"github.com/eeselapp/chatgpt-batch-query/internal/shutdown"
	"github.com/eeselapp/chatgpt-batch-query/internal/store"
	"github.com/eeselapp/chatgpt-batch-query/internal/version"
)

func main() {
	// Load configuration first (logging config comes from env)
	cfg := config.Load()

	// Initialize logger using slog-logfilter (respects LOG_LEVEL, LOG_FORMAT env vars)
	logger := logging.SetDefault()

	logger.Info("starting batch query server",
		"version", version.Get().Version,
		"port", cfg.Port,
		"target", cfg.TargetURL,
	)

	// Persistent result store
	resultStore, err := store.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to open result store", "error", err)
		os.Exit(1)
	}
	defer resultStore.Close()

	// Browser stack: lifecycle manager, readiness detection, extraction
	manager := browser.NewManager(cfg, logger)
	defer manager.CloseBrowser()

	detector := readiness.NewDetector(logger)
	dismisser := readiness.NewDismisser(logger)
	engine := extract.NewEngine(cfg, detector, logger)
	orchestrator := scrape.NewOrchestrator(cfg, manager, detector, dismisser, engine, logger)

	loggedIn := func(context.Context) bool { return manager.Profile().IsLoggedIn() }

	tracker := batch.NewTracker(cfg.ProgressGrace)
	coordinator := batch.NewCoordinator(cfg, tracker, orchestrator, resultStore, loggedIn, manager.CloseBrowser, logger)

	loginController := login.NewController(cfg, manager, detector, dismisser, tracker.Busy, logger)

	// Handlers
	batchHandler := handlers.NewBatchHandler(coordinator, tracker, resultStore, loggedIn, logger)
	loginHandler := handlers.NewLoginHandler(cfg, manager, detector, loginController, logger)
	resetHandler := handlers.NewResetHandler(manager, tracker.Busy, logger)
	uploadHandler := handlers.NewUploadHandler(logger)
	streamHandler := handlers.NewStreamHandler(tracker, logger)
	healthHandler := handlers.NewHealthHandler(manager, loginController.State)

	// Idle monitor: a running batch counts as activity
	idle := shutdown.NewIdleMonitor(cfg.IdleTimeout, tracker.Busy, logger)
	idle.Start()
	defer idle.Stop()

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(idle.Middleware)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mw.SignatureHeader, mw.TimestampHeader},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Rate limiting on batch starts; a batch ties the browser up for minutes
	r.Use(httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))

	authEnabled := cfg.APISecret != "" && !cfg.AllowUnauthenticated
	if authEnabled {
		logger.Info("authentication middleware enabled")
	} else if cfg.AllowUnauthenticated {
		logger.Warn("authentication disabled - ALLOW_UNAUTHENTICATED is set")
	} else {
		logger.Warn("no API_SECRET configured - service is unprotected")
	}

	// Create Huma API
	humaConfig := huma.DefaultConfig("Batch Query Server", version.Get().Version)
	humaConfig.Info.Description = "Batch question scraping service driving a real browser"
	api := humachi.New(r, humaConfig)

	// Health endpoint (no auth required)
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service, browser, and login state",
		Tags:        []string{"Health"},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		return &HealthOutput{Body: *healthHandler.Handle(ctx)}, nil
	})

	// Protected routes
	protectedRouter := chi.NewRouter()
	if authEnabled {
		protectedRouter.Use(mw.Auth(mw.AuthConfig{Secret: cfg.APISecret, Logger: logger}))
	}
	protectedAPI := humachi.New(protectedRouter, humaConfig)

	huma.Register(protectedAPI, huma.Operation{
		OperationID: "startBatch",
		Method:      http.MethodPost,
		Path:        "/batch",
		Summary:     "Start a batch",
		Description: "Starts scraping the given questions; returns immediately with a session ID",
		Tags:        []string{"Batch"},
	}, func(ctx context.Context, input *StartBatchInput) (*StartBatchOutput, error) {
		resp, err := batchHandler.Start(ctx, &input.Body)
		if err != nil {
			return nil, err
		}
		return &StartBatchOutput{Body: *resp}, nil
	})

	huma.Register(protectedAPI, huma.Operation{
		OperationID: "batchProgress",
		Method:      http.MethodGet,
		Path:        "/batch/{sessionID}",
		Summary:     "Batch progress",
		Description: "Returns the progress snapshot for a batch session",
		Tags:        []string{"Batch"},
	}, func(ctx context.Context, input *ProgressInput) (*ProgressOutput, error) {
		resp, err := batchHandler.Progress(ctx, input.SessionID)
		if err != nil {
			return nil, err
		}
		return &ProgressOutput{Body: *resp}, nil
	})

	huma.Register(protectedAPI, huma.Operation{
		OperationID: "startLogin",
		Method:      http.MethodPost,
		Path:        "/login",
		Summary:     "Start login flow",
		Description: "Opens a visible browser for manual login",
		Tags:        []string{"Login"},
	}, func(ctx context.Context, input *struct{}) (*LoginStartOutput, error) {
		resp, err := loginHandler.Start(ctx)
		if err != nil {
			return nil, err
		}
		return &LoginStartOutput{Body: *resp}, nil
	})

	huma.Register(protectedAPI, huma.Operation{
		OperationID: "loginState",
		Method:      http.MethodGet,
		Path:        "/login",
		Summary:     "Login state",
		Description: "Reports the inferred login state; live=true verifies against the page",
		Tags:        []string{"Login"},
	}, func(ctx context.Context, input *LoginStateInput) (*LoginStateOutput, error) {
		resp, err := loginHandler.State(ctx, input.Live)
		if err != nil {
			return nil, err
		}
		return &LoginStateOutput{Body: *resp}, nil
	})

	huma.Register(protectedAPI, huma.Operation{
		OperationID: "resetSession",
		Method:      http.MethodPost,
		Path:        "/session/reset",
		Summary:     "Reset session",
		Description: "Closes the browser and deletes the profile, forcing a fresh login",
		Tags:        []string{"Login"},
	}, func(ctx context.Context, input *struct{}) (*ResetOutput, error) {
		resp, err := resetHandler.Handle(ctx)
		if err != nil {
			return nil, err
		}
		return &ResetOutput{Body: *resp}, nil
	})

	// Non-JSON endpoints: file upload, CSV download, websocket stream
	protectedRouter.Post("/upload", uploadHandler.Handle)
	protectedRouter.Get("/batch/{sessionID}/export.csv", batchHandler.ExportCSV)
	protectedRouter.Get("/batch/{sessionID}/stream", streamHandler.Handle)

	// Mount protected routes on main router
	r.Mount("/", protectedRouter)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal or idle shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Info("shutting down on signal")
	case <-idle.ShutdownChan():
		logger.Info("shutting down after idle timeout")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}

// StartBatchInput is the input for batch start requests.
type StartBatchInput struct {
	Body models.StartBatchRequest
}

// StartBatchOutput is the output for batch start requests.
type StartBatchOutput struct {
	Body models.StartBatchResponse
}

// ProgressInput is the input for progress queries.
type ProgressInput struct {
	SessionID string `path:"sessionID" doc:"Batch session ID"`
}

// ProgressOutput is the output for progress queries.
type ProgressOutput struct {
	Body models.ProgressResponse
}

// LoginStartOutput is the output for login start requests.
type LoginStartOutput struct {
	Body models.LoginStartResponse
}

// LoginStateInput is the input for login state queries.
type LoginStateInput struct {
	Live bool `query:"live" doc:"Verify against the live page instead of the profile heuristic"`
}

// LoginStateOutput is the output for login state queries.
type LoginStateOutput struct {
	Body models.LoginStateResponse
}

// ResetOutput is the output for session reset requests.
type ResetOutput struct {
	Body models.ResetResponse
}

// HealthOutput is the output for health checks.
type HealthOutput struct {
	Body handlers.HealthResponse
}
