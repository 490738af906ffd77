package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWrapAssignsRequestID(t *testing.T) {
	var seen string
	handler := Wrap(discardLogger(), "tracker", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))

	if seen == "" {
		t.Fatalf("expected request id in context")
	}
	if rec.Header().Get("X-Request-Id") != seen {
		t.Fatalf("expected response header to echo request id")
	}
}

func TestWrapKeepsInboundRequestID(t *testing.T) {
	handler := Wrap(discardLogger(), "tracker", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("X-Request-Id", "req-abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "req-abc" {
		t.Fatalf("expected req-abc, got %q", got)
	}
}

func TestRecoverMiddlewareTurnsPanicInto500(t *testing.T) {
	handler := Wrap(discardLogger(), "tracker", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "internal_server_error") {
		t.Fatalf("expected error body, got %q", rec.Body.String())
	}
}

func TestReadyzWithChecks(t *testing.T) {
	ok := ReadinessCheck{Name: "db", Check: func(context.Context) error { return nil }}
	rec := httptest.NewRecorder()
	ReadyzWithChecks("tracker", ok)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	failing := ReadinessCheck{Name: "db", Check: func(context.Context) error { return errors.New("down") }}
	rec = httptest.NewRecorder()
	ReadyzWithChecks("tracker", failing)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not_ready") {
		t.Fatalf("expected not_ready body, got %q", rec.Body.String())
	}
}
