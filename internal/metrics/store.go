package metrics

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-spike-alerts/internal/coinbase"
)

// StoreOptions parameterise the metrics store.
type StoreOptions struct {
	StatePath            string
	WindowDays           int
	QuoteCurrencies      []string
	BootstrapConcurrency int
	// Clock is overridable for tests; defaults to time.Now.
	Clock func() time.Time
}

// Store is the authoritative table of per-symbol rolling statistics.
// One mutex guards the whole table; cycles are infrequent relative to
// the lock hold time, so per-symbol locking buys nothing.
type Store struct {
	opts   StoreOptions
	source coinbase.PriceSource
	logger zerolog.Logger
	now    func() time.Time

	mu          sync.Mutex
	table       map[string]*SymbolMetrics
	initialized bool
}

// NewStore wires a price source into a metrics store.
func NewStore(opts StoreOptions, source coinbase.PriceSource, logger zerolog.Logger) *Store {
	if opts.WindowDays <= 0 {
		opts.WindowDays = 14
	}
	if opts.BootstrapConcurrency <= 0 {
		opts.BootstrapConcurrency = 4
	}
	if len(opts.QuoteCurrencies) == 0 {
		opts.QuoteCurrencies = []string{"USD", "EUR"}
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	return &Store{
		opts:   opts,
		source: source,
		logger: logger.With().Str("component", "metrics_store").Logger(),
		now:    now,
		table:  make(map[string]*SymbolMetrics),
	}
}

// Initialize is idempotent: the first successful call loads persisted
// state (refreshing symbols whose data predates the rolling window) or
// bootstraps from scratch when no usable state exists.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	done := s.initialized
	s.mu.Unlock()
	if done {
		return nil
	}

	if err := s.LoadState(); err != nil {
		s.logger.Warn().Err(err).Msg("no usable state file, bootstrapping from scratch")
		if err := s.Bootstrap(ctx); err != nil {
			return fmt.Errorf("bootstrap metrics: %w", err)
		}
	} else if err := s.RefreshStale(ctx); err != nil {
		return fmt.Errorf("refresh stale metrics: %w", err)
	}

	s.mu.Lock()
	s.initialized = true
	count := len(s.table)
	s.mu.Unlock()

	s.logger.Info().Int("symbols", count).Msg("metrics store initialized")
	return nil
}

// LoadState replaces the table with the persisted one. A missing,
// unreadable, or empty file yields ErrNoState.
func (s *Store) LoadState() error {
	data, err := os.ReadFile(s.opts.StatePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoState, err)
	}

	symbols, err := decodeState(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.table = symbols
	s.mu.Unlock()

	s.logger.Info().Int("symbols", len(symbols)).Str("path", s.opts.StatePath).Msg("state loaded")
	return nil
}

// SaveState serialises the whole table. The copy is taken under lock;
// encoding and the file write happen outside it so detection is never
// blocked on disk.
func (s *Store) SaveState() error {
	s.mu.Lock()
	snapshot := make(map[string]*SymbolMetrics, len(s.table))
	for symbol, m := range s.table {
		clone := m.Clone()
		snapshot[symbol] = &clone
	}
	s.mu.Unlock()

	data, err := encodeState(snapshot)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := writeStateFile(s.opts.StatePath, data); err != nil {
		return err
	}

	s.logger.Debug().Int("symbols", len(snapshot)).Msg("state saved")
	return nil
}

// Bootstrap builds the table from nothing: every online product quoted
// in a tracked currency gets a history-seeded record. Individual symbol
// failures are logged and skipped, never fatal for the batch.
func (s *Store) Bootstrap(ctx context.Context) error {
	products, err := s.source.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}

	tracked := make([]string, 0, len(products))
	for _, product := range products {
		if product.Status != "online" {
			continue
		}
		if !s.quoteTracked(product.QuoteCurrency) {
			continue
		}
		tracked = append(tracked, product.ID)
	}

	s.logger.Info().Int("products", len(products)).Int("tracked", len(tracked)).Msg("bootstrapping symbols")

	sem := make(chan struct{}, s.opts.BootstrapConcurrency)
	var wg sync.WaitGroup
	for _, symbol := range tracked {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.createSymbol(ctx, symbol); err != nil {
				s.logger.Warn().Err(err).Str("symbol", symbol).Msg("symbol bootstrap failed, skipping")
			}
		}(symbol)
	}
	wg.Wait()

	if err := s.SaveState(); err != nil {
		return err
	}
	return nil
}

func (s *Store) quoteTracked(quote string) bool {
	for _, currency := range s.opts.QuoteCurrencies {
		if currency == quote {
			return true
		}
	}
	return false
}

// createSymbol seeds a brand-new record: rolling averages plus absolute
// extremes taken from the fetched range. This is the only path that
// writes absolute extremes from history.
func (s *Store) createSymbol(ctx context.Context, symbol string) error {
	window, err := s.historyWindow(ctx, symbol)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	record := &SymbolMetrics{
		Symbol:              symbol,
		AverageMin:          window.averageMin,
		AverageMax:          window.averageMax,
		AbsoluteMin:         window.rangeMin,
		AbsoluteMax:         window.rangeMax,
		PreviousAbsoluteMin: window.rangeMin,
		LastUpdated:         now,
		LastAverageUpdate:   now,
	}

	s.mu.Lock()
	s.table[symbol] = record
	s.mu.Unlock()
	return nil
}

// RefreshAverages recomputes the rolling-window averages for an
// existing symbol. Absolute extremes are preserved verbatim.
func (s *Store) RefreshAverages(ctx context.Context, symbol string) error {
	window, err := s.historyWindow(ctx, symbol)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.table[symbol]
	if !ok {
		return fmt.Errorf("refresh averages: unknown symbol %s", symbol)
	}
	m.AverageMin = window.averageMin
	m.AverageMax = window.averageMax
	m.LastAverageUpdate = now
	m.LastUpdated = now
	return nil
}

// RefreshStale backfills symbols whose data predates the rolling
// window, bounding startup cost after long downtime to exactly the
// symbols that need it.
func (s *Store) RefreshStale(ctx context.Context) error {
	horizon := s.now().UTC().AddDate(0, 0, -s.opts.WindowDays)

	s.mu.Lock()
	stale := make([]string, 0)
	for symbol, m := range s.table {
		if m.LastUpdated.Before(horizon) {
			stale = append(stale, symbol)
		}
	}
	s.mu.Unlock()

	if len(stale) == 0 {
		return nil
	}
	sort.Strings(stale)
	s.logger.Info().Int("symbols", len(stale)).Msg("refreshing symbols older than window")

	refreshed := 0
	for _, symbol := range stale {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.RefreshAverages(ctx, symbol); err != nil {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("stale refresh failed, skipping")
			continue
		}
		refreshed++
	}

	if refreshed > 0 {
		if err := s.SaveState(); err != nil {
			return err
		}
	}
	return nil
}

type historyResult struct {
	averageMin decimal.Decimal
	averageMax decimal.Decimal
	rangeMin   decimal.Decimal
	rangeMax   decimal.Decimal
}

// historyWindow fetches the trailing window of hourly candles and
// reduces close prices by UTC calendar day: the mean of daily minimums
// and the mean of daily maximums, plus range-wide extremes.
func (s *Store) historyWindow(ctx context.Context, symbol string) (historyResult, error) {
	end := s.now().UTC()
	start := end.AddDate(0, 0, -s.opts.WindowDays)

	candles, err := s.source.CandleRange(ctx, symbol, start, end)
	if err != nil {
		return historyResult{}, fmt.Errorf("fetch history %s: %w", symbol, err)
	}
	if len(candles) == 0 {
		return historyResult{}, fmt.Errorf("fetch history %s: no candles returned", symbol)
	}

	type dayExtremes struct {
		min decimal.Decimal
		max decimal.Decimal
	}
	days := make(map[string]dayExtremes)
	for _, candle := range candles {
		key := candle.Time.UTC().Format("2006-01-02")
		extremes, seen := days[key]
		if !seen {
			days[key] = dayExtremes{min: candle.Close, max: candle.Close}
			continue
		}
		if candle.Close.LessThan(extremes.min) {
			extremes.min = candle.Close
		}
		if candle.Close.GreaterThan(extremes.max) {
			extremes.max = candle.Close
		}
		days[key] = extremes
	}

	missing := 0
	for day := start.Truncate(24 * time.Hour); day.Before(end); day = day.AddDate(0, 0, 1) {
		if _, ok := days[day.Format("2006-01-02")]; !ok {
			missing++
		}
	}
	if missing > 0 {
		s.logger.Debug().Str("symbol", symbol).Int("gap_days", missing).Msg("history window has missing calendar days")
	}

	var result historyResult
	sumMin, sumMax := decimal.Zero, decimal.Zero
	first := true
	for _, extremes := range days {
		sumMin = sumMin.Add(extremes.min)
		sumMax = sumMax.Add(extremes.max)
		if first {
			result.rangeMin = extremes.min
			result.rangeMax = extremes.max
			first = false
			continue
		}
		if extremes.min.LessThan(result.rangeMin) {
			result.rangeMin = extremes.min
		}
		if extremes.max.GreaterThan(result.rangeMax) {
			result.rangeMax = extremes.max
		}
	}

	count := decimal.NewFromInt(int64(len(days)))
	result.averageMin = sumMin.Div(count)
	result.averageMax = sumMax.Div(count)
	return result, nil
}

// Symbols returns the tracked symbols in deterministic order.
func (s *Store) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbols := make([]string, 0, len(s.table))
	for symbol := range s.table {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Get returns a copy of one symbol's record.
func (s *Store) Get(symbol string) (SymbolMetrics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.table[symbol]
	if !ok {
		return SymbolMetrics{}, false
	}
	return m.Clone(), true
}

// Update runs fn against the live record under the store lock. fn must
// not block or perform I/O.
func (s *Store) Update(symbol string, fn func(*SymbolMetrics)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.table[symbol]
	if !ok {
		return false
	}
	fn(m)
	return true
}

// Snapshot returns a full deep copy of the table.
func (s *Store) Snapshot() map[string]SymbolMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]SymbolMetrics, len(s.table))
	for symbol, m := range s.table {
		snapshot[symbol] = m.Clone()
	}
	return snapshot
}

// Count reports the number of tracked symbols.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.table)
}
