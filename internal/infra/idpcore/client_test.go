package idpcore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"fedhub/internal/domain"
)

func testRecord() domain.ClientRecord {
	return domain.ClientRecord{
		ClientID:     "https://rp.example",
		Metadata:     domain.Metadata{"redirect_uris": []any{"https://rp.example/cb"}},
		TrustAnchor:  "https://ta.example",
		RegisteredAt: time.Now().UTC(),
	}
}

func TestPersistClientRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := New(srv.URL, WithMaxAttempts(5), WithBaseInterval(time.Millisecond))
	if err := client.PersistClient(context.Background(), testRecord()); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d", got)
	}
}

func TestPersistClientRetriesTooManyRequests(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(srv.URL, WithMaxAttempts(3), WithBaseInterval(time.Millisecond))
	if err := client.PersistClient(context.Background(), testRecord()); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("attempts = %d", got)
	}
}

func TestPersistClientDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := New(srv.URL, WithMaxAttempts(5), WithBaseInterval(time.Millisecond))
	err := client.PersistClient(context.Background(), testRecord())
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("attempts = %d", got)
	}
}

func TestPersistClientSurfacesLastErrorAfterExhaustion(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := New(srv.URL, WithMaxAttempts(3), WithBaseInterval(time.Millisecond))
	err := client.PersistClient(context.Background(), testRecord())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Fatalf("err = %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d", got)
	}
}

func TestPersistClientRetriesConnectionFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := New(srv.URL, WithMaxAttempts(2), WithBaseInterval(time.Millisecond))
	if err := client.PersistClient(context.Background(), testRecord()); err == nil {
		t.Fatalf("expected error")
	}
}
