package shutdown

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestIsIdle(t *testing.T) {
	t.Run("not idle before timeout", func(t *testing.T) {
		m := NewIdleMonitor(time.Hour, nil, testLogger())
		if m.isIdle() {
			t.Error("fresh monitor should not be idle")
		}
	})

	t.Run("idle after timeout", func(t *testing.T) {
		m := NewIdleMonitor(time.Nanosecond, nil, testLogger())
		m.lastRequest.Store(time.Now().Add(-time.Minute))
		if !m.isIdle() {
			t.Error("monitor past timeout should be idle")
		}
	})

	t.Run("active requests block idleness", func(t *testing.T) {
		m := NewIdleMonitor(time.Nanosecond, nil, testLogger())
		m.lastRequest.Store(time.Now().Add(-time.Minute))
		m.activeRequests.Add(1)
		if m.isIdle() {
			t.Error("in-flight request should block idle shutdown")
		}
	})

	t.Run("running batch blocks idleness", func(t *testing.T) {
		m := NewIdleMonitor(time.Nanosecond, func() bool { return true }, testLogger())
		m.lastRequest.Store(time.Now().Add(-time.Minute))
		if m.isIdle() {
			t.Error("running batch should block idle shutdown")
		}
	})
}

func TestMiddlewareTracksRequests(t *testing.T) {
	m := NewIdleMonitor(time.Hour, nil, testLogger())
	m.lastRequest.Store(time.Now().Add(-time.Minute))

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.activeRequests.Load() != 1 {
			t.Errorf("active during request = %d, want 1", m.activeRequests.Load())
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/batch", nil))

	if m.activeRequests.Load() != 0 {
		t.Errorf("active after request = %d, want 0", m.activeRequests.Load())
	}
	if m.IdleTime() > time.Second {
		t.Error("request should have reset the idle timer")
	}
}

func TestMiddlewareIgnoresHealthChecks(t *testing.T) {
	m := NewIdleMonitor(time.Hour, nil, testLogger())
	before := time.Now().Add(-time.Minute)
	m.lastRequest.Store(before)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := m.lastRequest.Load().(time.Time); !got.Equal(before) {
		t.Error("health check should not reset the idle timer")
	}
}

func TestShutdownChanSignals(t *testing.T) {
	m := NewIdleMonitor(time.Nanosecond, nil, testLogger())
	m.lastRequest.Store(time.Now().Add(-time.Minute))

	// Drive one tick by hand instead of waiting out the ticker.
	if !m.isIdle() {
		t.Fatal("precondition: monitor should be idle")
	}
	close(m.shutdownCh)

	select {
	case <-m.ShutdownChan():
	default:
		t.Error("shutdown channel should be closed")
	}
}
