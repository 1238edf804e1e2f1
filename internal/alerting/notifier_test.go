package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testSummary() CycleSummary {
	return CycleSummary{
		RanAt:          time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		SymbolsTracked: 120,
		SymbolsFired:   3,
		EventsTotal:    5,
		TopSymbol:      "BTC-EUR",
		TopScore:       decimal.NewFromInt(12),
		ReportsSent:    2,
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testSummary()); err != nil {
		t.Fatalf("Notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id wrong: %#v", received)
	}
	if !strings.Contains(received["text"], "BTC-EUR") {
		t.Fatalf("summary text should name the top symbol: %q", received["text"])
	}
	if !strings.Contains(received["text"], "Events: 5") {
		t.Fatalf("summary text should carry the event count: %q", received["text"])
	}
}

func TestTelegramNotifierRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testSummary()); err == nil {
		t.Fatal("ok=false should error")
	}
}

func TestRenderMailHeaders(t *testing.T) {
	msg := renderMail("noreply@example.com", "user@example.com", "Crypto Spike Alerts & Metrics", "line one\nline two")

	if !strings.HasPrefix(msg, "From: noreply@example.com\r\n") {
		t.Fatalf("From header missing:\n%s", msg)
	}
	if !strings.Contains(msg, "Subject: Crypto Spike Alerts & Metrics\r\n") {
		t.Fatal("Subject header missing")
	}
	if !strings.Contains(msg, "\r\n\r\nline one\r\nline two") {
		t.Fatal("body should be CRLF-normalised after the blank line")
	}
}
