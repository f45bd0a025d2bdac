// Package shutdown provides graceful shutdown utilities including idle
// monitoring.
package shutdown

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// idleCheckInterval is how often the monitor re-evaluates idleness.
const idleCheckInterval = 10 * time.Second

// IdleMonitor signals shutdown after a period without API activity. A batch
// in flight counts as activity even between requests, so a long-running batch
// never gets its browser shut down under it.
type IdleMonitor struct {
	timeout        time.Duration
	lastRequest    atomic.Value // time.Time
	activeRequests atomic.Int64
	busy           func() bool // extra activity source (running batches)
	logger         *slog.Logger
	stopCh         chan struct{}
	shutdownCh     chan struct{}
	wg             sync.WaitGroup
}

// NewIdleMonitor creates an idle monitor. timeout <= 0 disables it. busy, if
// non-nil, reports out-of-band activity that must block idle shutdown.
func NewIdleMonitor(timeout time.Duration, busy func() bool, logger *slog.Logger) *IdleMonitor {
	m := &IdleMonitor{
		timeout:    timeout,
		busy:       busy,
		logger:     logger,
		stopCh:     make(chan struct{}),
		shutdownCh: make(chan struct{}),
	}
	m.lastRequest.Store(time.Now())
	return m
}

// Start begins monitoring. No-op when disabled.
func (m *IdleMonitor) Start() {
	if m.timeout <= 0 {
		m.logger.Info("idle monitoring disabled (set IDLE_TIMEOUT to enable)")
		return
	}
	m.logger.Info("idle monitoring started", "timeout", m.timeout)
	m.wg.Add(1)
	go m.run()
}

// Stop stops the monitor.
func (m *IdleMonitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *IdleMonitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if m.isIdle() {
				m.logger.Info("idle timeout reached, signaling graceful shutdown",
					"idle_time", m.IdleTime().Round(time.Second),
					"timeout", m.timeout,
				)
				close(m.shutdownCh)
				return
			}
		}
	}
}

// isIdle reports whether nothing has happened for the timeout: no recent
// requests, none in flight, and no batch running.
func (m *IdleMonitor) isIdle() bool {
	if m.activeRequests.Load() > 0 {
		return false
	}
	if m.busy != nil && m.busy() {
		return false
	}
	return m.IdleTime() > m.timeout
}

// Middleware tracks request activity. Health probes do not reset the timer.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isHealthCheck(r) {
			next.ServeHTTP(w, r)
			return
		}
		m.activeRequests.Add(1)
		m.lastRequest.Store(time.Now())
		defer func() {
			m.activeRequests.Add(-1)
			m.lastRequest.Store(time.Now())
		}()
		next.ServeHTTP(w, r)
	})
}

// ShutdownChan is closed when idle shutdown triggers. Select on it alongside
// SIGTERM.
func (m *IdleMonitor) ShutdownChan() <-chan struct{} {
	return m.shutdownCh
}

// IdleTime returns how long the server has gone without a tracked request.
func (m *IdleMonitor) IdleTime() time.Duration {
	return time.Since(m.lastRequest.Load().(time.Time))
}

func isHealthCheck(r *http.Request) bool {
	switch r.URL.Path {
	case "/health", "/healthz", "/livez", "/readyz":
		return true
	}
	return false
}
