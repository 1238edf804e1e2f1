package coinbase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Product is one tradable pair as listed by the exchange.
type Product struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	QuoteCurrency string `json:"quote_currency"`
}

// Ticker carries the latest trade price and 24h volume for a pair.
type Ticker struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// Candle is one fixed-granularity OHLCV bucket.
type Candle struct {
	Time   time.Time
	Low    decimal.Decimal
	High   decimal.Decimal
	Open   decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// PriceSource abstracts the market-data API consumed by the metrics
// store and the detector.
type PriceSource interface {
	ListProducts(ctx context.Context) ([]Product, error)
	Ticker(ctx context.Context, symbol string) (Ticker, error)
	// CandleRange fetches hourly candles covering [start, end), chunked
	// to respect the per-request candle cap. Partial results are valid:
	// a failed window is skipped, not fatal.
	CandleRange(ctx context.Context, symbol string, start, end time.Time) ([]Candle, error)
}
