package tasks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestTasksForRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Task/GetTasksForRun" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("page") != "2" || r.URL.Query().Get("pageSize") != "50" {
			t.Fatalf("paging params wrong: %s", r.URL.RawQuery)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "svc" || pass != "secret" {
			t.Fatal("basic auth missing")
		}
		_ = json.NewEncoder(w).Encode([]Task{
			{ID: "7", Email: "a@example.com", Category: "crypto", Symbols: []string{"BTC-EUR"}, PrimarySymbols: []string{"BTC-EUR"}},
		})
	}))
	defer srv.Close()

	client := NewClient(ClientOptions{Endpoint: srv.URL, Username: "svc", Password: "secret", Timeout: time.Second}, noopLogger())

	due, err := client.TasksForRun(context.Background(), 2, 50)
	if err != nil {
		t.Fatalf("TasksForRun failed: %v", err)
	}
	if len(due) != 1 || due[0].ID != "7" || due[0].Email != "a@example.com" {
		t.Fatalf("unexpected tasks: %+v", due)
	}
	if !due[0].HasSymbol("BTC-EUR") || !due[0].IsPrimary("BTC-EUR") {
		t.Fatal("symbol membership not decoded")
	}
}

func TestTasksForRunHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(ClientOptions{Endpoint: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := client.TasksForRun(context.Background(), 0, 10); err == nil {
		t.Fatal("HTTP 502 should error")
	}
}

func TestSetLastRun(t *testing.T) {
	var gotID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/Task/SetLastRun" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotID = r.URL.Query().Get("id")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(ClientOptions{Endpoint: srv.URL, Timeout: time.Second}, noopLogger())
	if err := client.SetLastRun(context.Background(), "42"); err != nil {
		t.Fatalf("SetLastRun failed: %v", err)
	}
	if gotID != "42" {
		t.Fatalf("id not sent, got %q", gotID)
	}
}
