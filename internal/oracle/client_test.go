package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"aninamer/internal/services"
)

func TestCompleteReturnsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("auth header: %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Model: "m"},
		WithHTTPClient(srv.Client()))
	content, err := client.Complete(context.Background(), "sys", "user", 64)
	if err != nil {
		t.Fatal(err)
	}
	if content != `{"ok":true}` {
		t.Fatalf("content: %q", content)
	}
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"done"}}]}`))
	}))
	defer srv.Close()

	var slept int
	client := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Model: "m"},
		WithHTTPClient(srv.Client()),
		WithRetryMaxAttempts(5),
		WithRetryBackoff(time.Millisecond, 10*time.Millisecond),
		WithSleeper(func(time.Duration) { slept++ }))

	content, err := client.Complete(context.Background(), "sys", "user", 0)
	if err != nil {
		t.Fatal(err)
	}
	if content != "done" {
		t.Fatalf("content: %q", content)
	}
	if calls.Load() != 3 || slept != 2 {
		t.Fatalf("calls %d slept %d", calls.Load(), slept)
	}
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Model: "m"},
		WithHTTPClient(srv.Client()),
		WithRetryMaxAttempts(5),
		WithSleeper(func(time.Duration) {}))

	_, err := client.Complete(context.Background(), "sys", "user", 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external-tool marker, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("401 must not be retried: %d calls", calls.Load())
	}
}

func TestCompleteRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{})
	_, err := client.Complete(context.Background(), "sys", "user", 0)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
