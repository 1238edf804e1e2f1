package report

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-spike-alerts/internal/metrics"
)

// DropperRecord captures one symbol's new all-time minimum set during
// the current UTC day.
type DropperRecord struct {
	Symbol       string
	PreviousMin  decimal.Decimal
	NewMin       decimal.Decimal
	Price        decimal.Decimal
	DailyAverage decimal.Decimal
	DroppedAt    time.Time
}

// DropAmount is the magnitude of the fall.
func (r DropperRecord) DropAmount() decimal.Decimal {
	return r.PreviousMin.Sub(r.NewMin)
}

// DropperTracker keeps the day-scoped side table of symbols that hit a
// new absolute minimum today. It is owned by the driver, not global,
// and is cleared at UTC midnight. A symbol is evicted once its price
// recovers above its average minimum.
type DropperTracker struct {
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	day     time.Time
	records map[string]DropperRecord
}

// NewDropperTracker constructs an empty tracker. clock may be nil.
func NewDropperTracker(clock func() time.Time, logger zerolog.Logger) *DropperTracker {
	if clock == nil {
		clock = time.Now
	}
	return &DropperTracker{
		logger:  logger.With().Str("component", "dropper_tracker").Logger(),
		now:     clock,
		records: make(map[string]DropperRecord),
	}
}

// Observe folds one detection pass into the tracker: records every
// symbol that set a new absolute minimum, then evicts any tracked
// symbol whose price has recovered above its average minimum.
func (t *DropperTracker) Observe(events map[string]metrics.SymbolEvents, snapshot map[string]metrics.SymbolMetrics) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNewDayLocked()

	for symbol, symbolEvents := range events {
		m, ok := snapshot[symbol]
		if !ok {
			continue
		}
		for _, event := range symbolEvents.Events {
			if event.Kind != metrics.EventNewAbsoluteMin {
				continue
			}
			t.records[symbol] = DropperRecord{
				Symbol:       symbol,
				PreviousMin:  m.PreviousAbsoluteMin,
				NewMin:       m.AbsoluteMin,
				Price:        m.CurrentPrice,
				DailyAverage: m.AveragePrice,
				DroppedAt:    t.now().UTC(),
			}
			break
		}
	}

	for symbol := range t.records {
		m, ok := snapshot[symbol]
		if !ok {
			continue
		}
		if m.CurrentPrice.GreaterThan(m.AverageMin) {
			delete(t.records, symbol)
			t.logger.Info().Str("symbol", symbol).Msg("dropper evicted, price recovered above average minimum")
		}
	}
}

// Records returns a copy of the current day's droppers.
func (t *DropperTracker) Records() map[string]DropperRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNewDayLocked()

	copyOf := make(map[string]DropperRecord, len(t.records))
	for symbol, record := range t.records {
		copyOf[symbol] = record
	}
	return copyOf
}

func (t *DropperTracker) resetIfNewDayLocked() {
	today := t.now().UTC().Truncate(24 * time.Hour)
	if t.day.Equal(today) {
		return
	}
	if len(t.records) > 0 {
		t.logger.Info().Time("day", today).Msg("daily droppers reset for new day")
	}
	t.day = today
	t.records = make(map[string]DropperRecord)
}
