package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-spike-alerts/internal/coinbase"
	"crypto-spike-alerts/internal/metrics"
)

// Options tune detection behaviour.
type Options struct {
	// MinVolume filters illiquid pairs: a ticker with volume at or
	// below it is skipped entirely.
	MinVolume decimal.Decimal
	// AverageStaleAge is how old the rolling averages may get before a
	// pass recomputes them from candle history.
	AverageStaleAge time.Duration
	// Clock is overridable for tests; defaults to time.Now.
	Clock func() time.Time
	// DisableSave keeps the state file untouched after a pass. Used by
	// the simulate command.
	DisableSave bool
}

// Detector runs one threshold-crossing pass over every tracked symbol.
type Detector struct {
	store  *metrics.Store
	source coinbase.PriceSource
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a detector over the shared metrics store.
func New(store *metrics.Store, source coinbase.PriceSource, opts Options, logger zerolog.Logger) *Detector {
	if opts.MinVolume.IsZero() {
		opts.MinVolume = decimal.NewFromInt(1)
	}
	if opts.AverageStaleAge <= 0 {
		opts.AverageStaleAge = 24 * time.Hour
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	return &Detector{
		store:  store,
		source: source,
		opts:   opts,
		logger: logger.With().Str("component", "spike_detector").Logger(),
		now:    now,
	}
}

// Recalculate fetches the current ticker for every tracked symbol,
// updates its daily aggregates, and emits threshold-crossing events.
// Symbols without events are omitted from the event map but always
// present in the returned metrics snapshot. The table is persisted when
// the pass produced any event or refreshed any rolling average.
func (d *Detector) Recalculate(ctx context.Context) (map[string]metrics.SymbolEvents, map[string]metrics.SymbolMetrics, error) {
	events := make(map[string]metrics.SymbolEvents)
	refreshed := 0

	for _, symbol := range d.store.Symbols() {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		ticker, err := d.source.Ticker(ctx, symbol)
		if err != nil {
			d.logger.Warn().Err(err).Str("symbol", symbol).Msg("ticker fetch failed, skipping symbol")
			continue
		}
		if ticker.Volume.LessThanOrEqual(d.opts.MinVolume) {
			continue
		}

		if d.averagesStale(symbol) {
			if err := d.store.RefreshAverages(ctx, symbol); err != nil {
				d.logger.Warn().Err(err).Str("symbol", symbol).Msg("rolling average refresh failed, keeping previous")
			} else {
				refreshed++
			}
		}

		now := d.now().UTC()
		var symbolEvents []metrics.Event
		d.store.Update(symbol, func(m *metrics.SymbolMetrics) {
			symbolEvents = applyTick(m, ticker.Price, ticker.Volume, now)
		})

		if len(symbolEvents) == 0 {
			continue
		}

		score := decimal.Zero
		for _, event := range symbolEvents {
			score = score.Add(event.Contribution)
		}
		events[symbol] = metrics.SymbolEvents{Events: symbolEvents, Score: score}

		d.logger.Info().
			Str("symbol", symbol).
			Int("events", len(symbolEvents)).
			Str("score", score.String()).
			Msg("spike events detected")
	}

	if !d.opts.DisableSave && (len(events) > 0 || refreshed > 0) {
		if err := d.store.SaveState(); err != nil {
			d.logger.Error().Err(err).Msg("failed to persist state after pass")
		}
	}

	return events, d.store.Snapshot(), nil
}

func (d *Detector) averagesStale(symbol string) bool {
	m, ok := d.store.Get(symbol)
	if !ok {
		return false
	}
	return d.now().UTC().Sub(m.LastAverageUpdate) > d.opts.AverageStaleAge
}

// applyTick is the per-symbol state transition: day rollover, daily
// aggregates, two-sided threshold hysteresis, and absolute extremes.
// Called under the store lock; it must not block.
func applyTick(m *metrics.SymbolMetrics, price, volume decimal.Decimal, now time.Time) []metrics.Event {
	if m.DailyPriceCount > 0 && !sameUTCDay(m.LastPriceUpdate, now) {
		m.DailyMin = decimal.Zero
		m.DailyMax = decimal.Zero
		m.DailyPriceChange = decimal.Zero
		m.DailyVolatilityCount = 0
		m.DailyPriceSum = decimal.Zero
		m.DailyPriceCount = 0
		m.AveragePrice = decimal.Zero
	}

	m.CurrentPrice = price
	m.Volume = volume

	if m.DailyPriceCount == 0 {
		m.DailyMin = price
		m.DailyMax = price
	} else {
		if price.LessThan(m.DailyMin) {
			m.DailyMin = price
		}
		if price.GreaterThan(m.DailyMax) {
			m.DailyMax = price
		}
	}
	m.DailyPriceChange = m.DailyMax.Sub(m.DailyMin)

	m.DailyPriceSum = m.DailyPriceSum.Add(price)
	m.DailyPriceCount++
	m.AveragePrice = m.DailyPriceSum.Div(decimal.NewFromInt(int64(m.DailyPriceCount)))

	var events []metrics.Event
	events = append(events, applyLowSide(m, price)...)
	events = append(events, applyHighSide(m, price)...)
	events = append(events, applyAbsolutes(m, price)...)

	m.LastPriceUpdate = now
	m.LastUpdated = now
	return events
}

// applyLowSide handles the below-average-minimum band edge. Each
// crossing yields exactly one threshold-set event; deeper movement
// yields record events without re-counting volatility; recovery above
// the edge silently clears the memory.
func applyLowSide(m *metrics.SymbolMetrics, price decimal.Decimal) []metrics.Event {
	if !price.LessThan(m.AverageMin) {
		m.StoredBelowAvgMinThreshold = nil
		return nil
	}

	if m.StoredBelowAvgMinThreshold == nil {
		threshold := price
		m.StoredBelowAvgMinThreshold = &threshold
		m.StoredAboveAvgMaxThreshold = nil
		if m.IsPassedAboveAvgMaxPrevious {
			m.DailyVolatilityCount++
		}
		m.IsPassedBelowAvgMinPrevious = true
		m.IsPassedAboveAvgMaxPrevious = false

		return []metrics.Event{{
			Symbol:       m.Symbol,
			Kind:         metrics.EventBelowAvgMinThresholdSet,
			Message:      fmt.Sprintf("Price %s is below average minimum %s - NEW THRESHOLD SET", price, m.AverageMin),
			Contribution: m.AverageMin.Sub(price),
		}}
	}

	if price.LessThan(*m.StoredBelowAvgMinThreshold) {
		previous := *m.StoredBelowAvgMinThreshold
		threshold := price
		m.StoredBelowAvgMinThreshold = &threshold

		return []metrics.Event{{
			Symbol:       m.Symbol,
			Kind:         metrics.EventNewLow,
			Message:      fmt.Sprintf("Price %s is below stored threshold %s - NEW LOW", price, previous),
			Contribution: m.AverageMin.Sub(price),
		}}
	}

	return nil
}

func applyHighSide(m *metrics.SymbolMetrics, price decimal.Decimal) []metrics.Event {
	if !price.GreaterThan(m.AverageMax) {
		m.StoredAboveAvgMaxThreshold = nil
		return nil
	}

	if m.StoredAboveAvgMaxThreshold == nil {
		threshold := price
		m.StoredAboveAvgMaxThreshold = &threshold
		m.StoredBelowAvgMinThreshold = nil
		if m.IsPassedBelowAvgMinPrevious {
			m.DailyVolatilityCount++
		}
		m.IsPassedAboveAvgMaxPrevious = true
		m.IsPassedBelowAvgMinPrevious = false

		return []metrics.Event{{
			Symbol:       m.Symbol,
			Kind:         metrics.EventAboveAvgMaxThresholdSet,
			Message:      fmt.Sprintf("Price %s is above average maximum %s - NEW THRESHOLD SET", price, m.AverageMax),
			Contribution: price.Sub(m.AverageMax),
		}}
	}

	if price.GreaterThan(*m.StoredAboveAvgMaxThreshold) {
		previous := *m.StoredAboveAvgMaxThreshold
		threshold := price
		m.StoredAboveAvgMaxThreshold = &threshold

		return []metrics.Event{{
			Symbol:       m.Symbol,
			Kind:         metrics.EventNewHigh,
			Message:      fmt.Sprintf("Price %s is above stored threshold %s - NEW HIGH", price, previous),
			Contribution: price.Sub(m.AverageMax),
		}}
	}

	return nil
}

// applyAbsolutes tracks all-time extremes independently of the band
// hysteresis; both can fire in the same pass.
func applyAbsolutes(m *metrics.SymbolMetrics, price decimal.Decimal) []metrics.Event {
	var events []metrics.Event

	if price.LessThan(m.AbsoluteMin) {
		m.PreviousAbsoluteMin = m.AbsoluteMin
		events = append(events, metrics.Event{
			Symbol:       m.Symbol,
			Kind:         metrics.EventNewAbsoluteMin,
			Message:      fmt.Sprintf("Price %s is below absolute minimum %s - NEW ABSOLUTE MIN", price, m.AbsoluteMin),
			Contribution: m.AbsoluteMin.Sub(price),
		})
		m.AbsoluteMin = price
	}

	if price.GreaterThan(m.AbsoluteMax) {
		events = append(events, metrics.Event{
			Symbol:       m.Symbol,
			Kind:         metrics.EventNewAbsoluteMax,
			Message:      fmt.Sprintf("Price %s is above absolute maximum %s - NEW ABSOLUTE MAX", price, m.AbsoluteMax),
			Contribution: price.Sub(m.AbsoluteMax),
		})
		m.AbsoluteMax = price
	}

	return events
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
