package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/eeselapp/chatgpt-batch-query/internal/batch"
)

// streamInterval is how often progress frames are pushed to a client.
const streamInterval = time.Second

// StreamHandler pushes batch progress over a websocket so clients do not
// have to poll.
type StreamHandler struct {
	tracker  *batch.Tracker
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewStreamHandler creates the websocket progress handler.
func NewStreamHandler(tracker *batch.Tracker, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		tracker: tracker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Auth happens on the upgrade request; origins are not
			// restricted beyond that.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Handle upgrades the connection and streams progress snapshots until the
// session reaches a terminal state or the client goes away.
func (h *StreamHandler) Handle(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, ok := h.tracker.Snapshot(sessionID); !ok {
		http.Error(w, `{"error":"unknown session"}`, http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Drain client frames so pings and close messages get processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for range ticker.C {
		snap, ok := h.tracker.Snapshot(sessionID)
		if !ok {
			// Session aged out; tell the client and stop.
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session expired"),
				time.Now().Add(time.Second))
			return
		}
		if err := conn.WriteJSON(snap); err != nil {
			h.logger.Debug("websocket write failed", "session", sessionID, "error", err)
			return
		}
		// Done comes from the session ending, not from the status string:
		// a failed question reports "error" while the batch keeps going.
		if snap.Done {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, snap.Status),
				time.Now().Add(time.Second))
			return
		}
	}
}
