package coinbase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const candleGranularity = time.Hour

// Options parameterise the exchange client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	UserAgent  string
	MaxCandles int
}

// Client talks to the Coinbase Exchange REST API.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs an exchange client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.exchange.coinbase.com"
	}

	if opts.MaxCandles <= 0 {
		opts.MaxCandles = 300
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "coinbase_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// ListProducts returns every product the exchange lists.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := c.getJSON(ctx, "/products", &products); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

type tickerResponse struct {
	Price  string `json:"price"`
	Volume string `json:"volume"`
}

// Ticker returns the current price and volume for one symbol. The API
// serialises both as strings; either failing to parse is an error so
// the caller can skip the symbol.
func (c *Client) Ticker(ctx context.Context, symbol string) (Ticker, error) {
	var res tickerResponse
	if err := c.getJSON(ctx, "/products/"+symbol+"/ticker", &res); err != nil {
		return Ticker{}, fmt.Errorf("ticker %s: %w", symbol, err)
	}

	price, err := decimal.NewFromString(res.Price)
	if err != nil {
		return Ticker{}, fmt.Errorf("ticker %s: parse price %q: %w", symbol, res.Price, err)
	}
	volume, err := decimal.NewFromString(res.Volume)
	if err != nil {
		return Ticker{}, fmt.Errorf("ticker %s: parse volume %q: %w", symbol, res.Volume, err)
	}

	return Ticker{Price: price, Volume: volume}, nil
}

// CandleRange fetches hourly candles for [start, end) in windows of at
// most MaxCandles each. Windows that fail are logged and skipped; the
// result holds whatever was collected, sorted ascending by time.
func (c *Client) CandleRange(ctx context.Context, symbol string, start, end time.Time) ([]Candle, error) {
	if !start.Before(end) {
		return nil, errors.New("candle range: start must be before end")
	}

	window := time.Duration(c.opts.MaxCandles) * candleGranularity
	var collected []Candle
	failures := 0

	for cursor := start; cursor.Before(end); cursor = cursor.Add(window) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		windowEnd := cursor.Add(window)
		if windowEnd.After(end) {
			windowEnd = end
		}

		candles, err := c.candles(ctx, symbol, cursor, windowEnd)
		if err != nil {
			failures++
			c.logger.Warn().Err(err).
				Str("symbol", symbol).
				Time("window_start", cursor).
				Time("window_end", windowEnd).
				Msg("candle window fetch failed, skipping")
			continue
		}
		collected = append(collected, candles...)
	}

	if len(collected) == 0 && failures > 0 {
		return nil, fmt.Errorf("candle range %s: all %d windows failed", symbol, failures)
	}

	sort.Slice(collected, func(i, j int) bool {
		return collected[i].Time.Before(collected[j].Time)
	})
	return collected, nil
}

func (c *Client) candles(ctx context.Context, symbol string, start, end time.Time) ([]Candle, error) {
	path := fmt.Sprintf("/products/%s/candles?start=%s&end=%s&granularity=%d",
		symbol,
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
		int(candleGranularity.Seconds()),
	)

	var raw [][]json.Number
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(raw))
	for _, row := range raw {
		candle, err := parseCandle(row)
		if err != nil {
			c.logger.Debug().Err(err).Str("symbol", symbol).Msg("malformed candle skipped")
			continue
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// parseCandle decodes the [time, low, high, open, close, volume] array
// the API returns per bucket.
func parseCandle(row []json.Number) (Candle, error) {
	if len(row) < 6 {
		return Candle{}, fmt.Errorf("candle has %d fields, want 6", len(row))
	}

	epoch, err := row[0].Int64()
	if err != nil {
		return Candle{}, fmt.Errorf("parse candle time: %w", err)
	}

	values := make([]decimal.Decimal, 5)
	for i := 1; i < 6; i++ {
		value, err := decimal.NewFromString(row[i].String())
		if err != nil {
			return Candle{}, fmt.Errorf("parse candle field %d: %w", i, err)
		}
		values[i-1] = value
	}

	return Candle{
		Time:   time.Unix(epoch, 0).UTC(),
		Low:    values[0],
		High:   values[1],
		Open:   values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "spikewatcher/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(resp.StatusCode, payload)
	}

	return json.Unmarshal(payload, out)
}

type errorResponse struct {
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("coinbase api error (%d): %s", status, apiErr.Message)
	}
	if len(payload) > 0 {
		return fmt.Errorf("coinbase api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("coinbase api error (%d)", status)
}

var _ PriceSource = (*Client)(nil)
