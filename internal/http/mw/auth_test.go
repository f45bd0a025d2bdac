package mw

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"
)

const testSecret = "topsecret"

func authedServer(t *testing.T, now time.Time) http.Handler {
	t.Helper()
	cfg := AuthConfig{
		Secret: testSecret,
		Logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})),
		now:    func() time.Time { return now },
	}
	return Auth(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func signedRequest(method, path string, at time.Time) *http.Request {
	r := httptest.NewRequest(method, path, nil)
	ts := strconv.FormatInt(at.Unix(), 10)
	r.Header.Set(TimestampHeader, ts)
	r.Header.Set(SignatureHeader, Sign(testSecret, ts, method, path))
	return r
}

func TestAuthAcceptsValidSignature(t *testing.T) {
	now := time.Now()
	h := authedServer(t, now)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(http.MethodPost, "/batch", now))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAuthRejectsMissingHeaders(t *testing.T) {
	h := authedServer(t, time.Now())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/batch", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthRejectsWrongSecret(t *testing.T) {
	now := time.Now()
	h := authedServer(t, now)
	r := httptest.NewRequest(http.MethodPost, "/batch", nil)
	ts := strconv.FormatInt(now.Unix(), 10)
	r.Header.Set(TimestampHeader, ts)
	r.Header.Set(SignatureHeader, Sign("wrong", ts, http.MethodPost, "/batch"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthRejectsStaleTimestamp(t *testing.T) {
	now := time.Now()
	h := authedServer(t, now)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(http.MethodPost, "/batch", now.Add(-10*time.Minute)))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthRejectsSignatureForDifferentPath(t *testing.T) {
	now := time.Now()
	h := authedServer(t, now)
	r := httptest.NewRequest(http.MethodPost, "/batch", nil)
	ts := strconv.FormatInt(now.Unix(), 10)
	r.Header.Set(TimestampHeader, ts)
	r.Header.Set(SignatureHeader, Sign(testSecret, ts, http.MethodPost, "/other"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
