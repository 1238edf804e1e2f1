package metrics

import (
	"time"

	"github.com/shopspring/decimal"
)

// SymbolMetrics is the rolling statistics record for one trading pair.
// A record is owned by the Store and mutated only under its lock. The
// JSON field names are the persisted state-file contract and must stay
// stable across versions.
type SymbolMetrics struct {
	Symbol string `json:"Symbol"`

	// Trailing-window means of daily minimums/maximums, refreshed
	// periodically from candle history, not on every tick.
	AverageMin decimal.Decimal `json:"AverageMin"`
	AverageMax decimal.Decimal `json:"AverageMax"`

	// All-time extremes. Updated only by a live ticker crossing them;
	// history refreshes never touch them.
	AbsoluteMin         decimal.Decimal `json:"AbsoluteMin"`
	AbsoluteMax         decimal.Decimal `json:"AbsoluteMax"`
	PreviousAbsoluteMin decimal.Decimal `json:"PreviousAbsoluteMin"`

	CurrentPrice decimal.Decimal `json:"CurrentPrice"`
	Volume       decimal.Decimal `json:"Volume"`

	// Current UTC-day accumulator, reset the first time a new day is
	// observed.
	AveragePrice    decimal.Decimal `json:"AveragePrice"`
	DailyPriceSum   decimal.Decimal `json:"DailyPriceSum"`
	DailyPriceCount int             `json:"DailyPriceCount"`

	DailyMin         decimal.Decimal `json:"DailyMin"`
	DailyMax         decimal.Decimal `json:"DailyMax"`
	DailyPriceChange decimal.Decimal `json:"DailyPriceChange"`

	// Hysteresis memory. At most one side holds a threshold at a time.
	StoredBelowAvgMinThreshold *decimal.Decimal `json:"StoredBelowAvgMinThreshold"`
	StoredAboveAvgMaxThreshold *decimal.Decimal `json:"StoredAboveAvgMaxThreshold"`

	IsPassedBelowAvgMinPrevious bool `json:"IsPassedBelowAvgMinPrevious"`
	IsPassedAboveAvgMaxPrevious bool `json:"IsPassedAboveAvgMaxPrevious"`

	// Count of avg-min to avg-max band flips in the current day.
	DailyVolatilityCount int `json:"DailyVolatilityCount"`

	LastUpdated       time.Time `json:"LastUpdated"`
	LastPriceUpdate   time.Time `json:"LastPriceUpdate"`
	LastAverageUpdate time.Time `json:"LastAverageUpdate"`
}

// Clone returns a deep copy safe to hand out beyond the store lock.
func (m *SymbolMetrics) Clone() SymbolMetrics {
	clone := *m
	if m.StoredBelowAvgMinThreshold != nil {
		v := *m.StoredBelowAvgMinThreshold
		clone.StoredBelowAvgMinThreshold = &v
	}
	if m.StoredAboveAvgMaxThreshold != nil {
		v := *m.StoredAboveAvgMaxThreshold
		clone.StoredAboveAvgMaxThreshold = &v
	}
	return clone
}
