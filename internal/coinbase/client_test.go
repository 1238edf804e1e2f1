package coinbase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestListProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"id": "BTC-EUR", "status": "online", "quote_currency": "EUR"},
			{"id": "XYZ-USD", "status": "delisted", "quote_currency": "USD"},
		})
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	products, err := client.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(products))
	}
	if products[0].ID != "BTC-EUR" || products[0].QuoteCurrency != "EUR" {
		t.Fatalf("unexpected first product: %+v", products[0])
	}
	if products[1].Status != "delisted" {
		t.Fatalf("status not decoded: %+v", products[1])
	}
}

func TestTickerParsesStrings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products/BTC-EUR/ticker" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"price": "43250.12", "volume": "88.5"})
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	ticker, err := client.Ticker(context.Background(), "BTC-EUR")
	if err != nil {
		t.Fatalf("Ticker failed: %v", err)
	}
	if !ticker.Price.Equal(decimal.RequireFromString("43250.12")) {
		t.Fatalf("price not parsed: %s", ticker.Price)
	}
	if !ticker.Volume.Equal(decimal.RequireFromString("88.5")) {
		t.Fatalf("volume not parsed: %s", ticker.Volume)
	}
}

func TestTickerMalformedPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"price": "not-a-number", "volume": "1"})
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := client.Ticker(context.Background(), "BTC-EUR"); err == nil {
		t.Fatal("malformed price should error")
	}
}

func TestHTTPErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "NotFound"})
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := client.Ticker(context.Background(), "NOPE-EUR")
	if err == nil {
		t.Fatal("404 should error")
	}
	if !strings.Contains(err.Error(), "NotFound") {
		t.Fatalf("api message should be surfaced, got %v", err)
	}
}

func TestCandleRangeChunksRequests(t *testing.T) {
	var starts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		starts = append(starts, r.URL.Query().Get("start"))
		if r.URL.Query().Get("granularity") != "3600" {
			t.Fatalf("granularity should be hourly, got %s", r.URL.Query().Get("granularity"))
		}
		start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
		if err != nil {
			t.Fatalf("bad start param: %v", err)
		}
		// Two candles per window, emitted newest first to exercise the
		// final sort.
		_ = json.NewEncoder(w).Encode([][]json.Number{
			{json.Number(itoa(start.Add(time.Hour).Unix())), "9", "11", "10", "10.5", "3"},
			{json.Number(itoa(start.Unix())), "10", "12", "11", "11.5", "2"},
		})
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second, MaxCandles: 6}, noopLogger())

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(18 * time.Hour)
	candles, err := client.CandleRange(context.Background(), "BTC-EUR", start, end)
	if err != nil {
		t.Fatalf("CandleRange failed: %v", err)
	}

	// 18 hours at a 6-candle cap means three windows.
	if len(starts) != 3 {
		t.Fatalf("expected 3 windowed requests, got %d (%v)", len(starts), starts)
	}
	if len(candles) != 6 {
		t.Fatalf("expected 6 candles, got %d", len(candles))
	}
	for i := 1; i < len(candles); i++ {
		if candles[i].Time.Before(candles[i-1].Time) {
			t.Fatalf("candles not sorted ascending at %d", i)
		}
	}
	if !candles[0].Close.Equal(decimal.RequireFromString("11.5")) {
		t.Fatalf("close not parsed: %s", candles[0].Close)
	}
}

func TestCandleRangeSkipsFailedWindows(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		start, _ := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
		_ = json.NewEncoder(w).Encode([][]json.Number{
			{json.Number(itoa(start.Unix())), "1", "2", "1.5", "1.8", "10"},
		})
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second, MaxCandles: 2}, noopLogger())

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	candles, err := client.CandleRange(context.Background(), "ETH-EUR", start, start.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("partial failure should not be fatal: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("expected candles from the surviving window, got %d", len(candles))
	}
}

func TestCandleRangeAllWindowsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second, MaxCandles: 300}, noopLogger())

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if _, err := client.CandleRange(context.Background(), "ETH-EUR", start, start.Add(time.Hour)); err == nil {
		t.Fatal("all windows failing should error")
	}
}

func TestParseCandleRejectsShortRows(t *testing.T) {
	if _, err := parseCandle([]json.Number{"1", "2", "3"}); err == nil {
		t.Fatal("short row should error")
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
