package device

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.Handler) (*CounterClient, string) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	address := strings.TrimPrefix(server.URL, "http://")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry, err := NewRegistry(map[string]string{"unused": "10.0.0.1:1"})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return NewCounterClient(registry, time.Second, logger), address
}

func TestReadParsesCountShapes(t *testing.T) {
	cases := map[string]struct {
		body  string
		value int64
	}{
		"json numeric":        {body: `{"count_value": 250, "uptime": 91}`, value: 250},
		"json numeric string": {body: `{"count_value": "400"}`, value: 400},
		"bare integer":        {body: "100\n", value: 100},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			client, address := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/picodata" {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				_, _ = w.Write([]byte(tc.body))
			}))
			count, err := client.Read(context.Background(), address)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !count.Known || count.Value != tc.value {
				t.Fatalf("expected known %d, got %+v", tc.value, count)
			}
		})
	}
}

func TestReadDegradesToUnknown(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"non-2xx": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"garbage body": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>counter</html>"))
		},
		"json without count": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"uptime": 91}`))
		},
		"non-numeric string": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"count_value": "lots"}`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			client, address := testClient(t, handler)
			count, err := client.Read(context.Background(), address)
			if err != nil {
				t.Fatalf("read must not error, got %v", err)
			}
			if count.Known {
				t.Fatalf("expected unknown count, got %+v", count)
			}
		})
	}
}

func TestReadTimeoutIsUnknownNotZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("100"))
	}))
	defer server.Close()
	address := strings.TrimPrefix(server.URL, "http://")
	registry, err := NewRegistry(map[string]string{"unused": "10.0.0.1:1"})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := NewCounterClient(registry, 20*time.Millisecond, logger)

	count, err := client.Read(context.Background(), address)
	if err != nil {
		t.Fatalf("read must not error on timeout, got %v", err)
	}
	if count.Known {
		t.Fatalf("a timed-out device must read as unknown, got %+v", count)
	}
}

func TestReadUnknownMachineIsFatal(t *testing.T) {
	client, _ := testClient(t, http.NotFoundHandler())
	if _, err := client.Read(context.Background(), "P-999"); !errors.Is(err, ErrUnknownMachine) {
		t.Fatalf("expected ErrUnknownMachine, got %v", err)
	}
}

func TestResetPostsZeroForm(t *testing.T) {
	var gotPath, gotBody, gotContentType string
	client, address := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))

	if err := client.Reset(context.Background(), address); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if gotPath != "/update" {
		t.Fatalf("expected POST /update, got %q", gotPath)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Fatalf("expected form content type, got %q", gotContentType)
	}
	if gotBody != "count_value=0" {
		t.Fatalf("expected count_value=0 body, got %q", gotBody)
	}
}

func TestResetFailuresAreReported(t *testing.T) {
	client, address := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	if err := client.Reset(context.Background(), address); err == nil {
		t.Fatalf("expected error on non-2xx reset")
	}
	if err := client.Reset(context.Background(), "P-999"); !errors.Is(err, ErrUnknownMachine) {
		t.Fatalf("expected ErrUnknownMachine, got %v", err)
	}
}
