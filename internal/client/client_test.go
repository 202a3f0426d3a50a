package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iliyamo/senhas/internal/model"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newClient(url string) *Client {
	return New(url, WithRetry(3, time.Millisecond), WithLogger(quiet()), WithToken("tok"))
}

func TestGenerateRetriesWithSameKey(t *testing.T) {
	var (
		mu   sync.Mutex
		keys []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get(IdempotencyKeyHeader))
		n := len(keys)
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(model.Ticket{ID: "t1", Type: model.TicketType(body["type"]), DisplayNumber: "R001"})
	}))
	defer srv.Close()

	tk, err := newClient(srv.URL).GenerateTicket(context.Background(), model.TypeQuick)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if tk.DisplayNumber != "R001" || tk.Type != model.TypeQuick {
		t.Fatalf("ticket=%+v", tk)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(keys) != 2 || keys[0] == "" || keys[0] != keys[1] {
		t.Fatalf("idempotency keys=%v", keys)
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"invalid status transition"}`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).UpdateTicket(context.Background(), "t1", model.StatusCalled, "2")
	if StatusOf(err) != http.StatusConflict {
		t.Fatalf("err=%v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls=%d, want 1", n)
	}
}

func TestServerErrorsExhaustRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Purge(context.Background())
	if StatusOf(err) != http.StatusInternalServerError {
		t.Fatalf("err=%v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("calls=%d, want 3", n)
	}
}

func TestCallNextEmptyQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tickets/call-next" {
			t.Errorf("path=%s", r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	_, ok, err := newClient(srv.URL).CallNext(context.Background(), "", "1")
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestLoginStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/login":
			_ = json.NewEncoder(w).Encode(AuthResult{Token: "fresh"})
		case "/v1/tickets":
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if got := r.URL.Query().Get("status"); got != "WAITING,CALLED" {
				t.Errorf("status filter=%q", got)
			}
			_ = json.NewEncoder(w).Encode([]model.Ticket{{ID: "a"}})
		}
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(1, time.Millisecond), WithLogger(quiet()))
	if _, err := c.Login(context.Background(), "a@example.com", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	list, err := c.ListTickets(context.Background(), model.StatusWaiting, model.StatusCalled)
	if err != nil || len(list) != 1 {
		t.Fatalf("list=%v err=%v", list, err)
	}
}
