package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"crypto-spike-alerts/internal/coinbase"
	"crypto-spike-alerts/internal/detector"
)

// SimulateTick loads the persisted metrics table, injects one ticker
// price for the given symbol, and prints the events a detection pass
// would emit. The state file is not modified.
func (a *App) SimulateTick(ctx context.Context, symbol string, price decimal.Decimal) error {
	store := a.newMetricsStore(&staticPriceSource{symbol: symbol, price: price})
	if err := store.LoadState(); err != nil {
		return fmt.Errorf("load state (run bootstrap first): %w", err)
	}
	if _, ok := store.Get(symbol); !ok {
		return fmt.Errorf("symbol %s not tracked", symbol)
	}

	source := &staticPriceSource{symbol: symbol, price: price}
	det := detector.New(store, source, detector.Options{
		MinVolume:       decimal.Zero,
		AverageStaleAge: 365 * 24 * time.Hour,
		DisableSave:     true,
	}, a.Logger)

	events, _, err := det.Recalculate(ctx)
	if err != nil {
		return err
	}

	symbolEvents, ok := events[symbol]
	if !ok {
		fmt.Fprintf(os.Stdout, "no events for %s at price %s\n", symbol, price.String())
		return nil
	}

	fmt.Fprintf(os.Stdout, "events for %s (score %s):\n", symbol, symbolEvents.Score.StringFixed(2))
	for _, event := range symbolEvents.Events {
		fmt.Fprintf(os.Stdout, "  - %s\n", event.Message)
	}
	return nil
}

// staticPriceSource serves one injected ticker and refuses everything
// else, so untouched symbols are skipped during the pass.
type staticPriceSource struct {
	symbol string
	price  decimal.Decimal
}

func (s *staticPriceSource) ListProducts(ctx context.Context) ([]coinbase.Product, error) {
	return []coinbase.Product{{ID: s.symbol, Status: "online"}}, nil
}

func (s *staticPriceSource) Ticker(ctx context.Context, symbol string) (coinbase.Ticker, error) {
	if symbol != s.symbol {
		return coinbase.Ticker{}, fmt.Errorf("no simulated ticker for %s", symbol)
	}
	return coinbase.Ticker{Price: s.price, Volume: decimal.NewFromInt(1_000_000)}, nil
}

func (s *staticPriceSource) CandleRange(ctx context.Context, symbol string, start, end time.Time) ([]coinbase.Candle, error) {
	return nil, fmt.Errorf("no simulated candles for %s", symbol)
}

var _ coinbase.PriceSource = (*staticPriceSource)(nil)
