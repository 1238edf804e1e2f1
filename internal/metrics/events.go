package metrics

import "github.com/shopspring/decimal"

// EventKind classifies one detection finding.
type EventKind string

const (
	EventBelowAvgMinThresholdSet EventKind = "below_avg_min_threshold_set"
	EventNewLow                  EventKind = "new_low"
	EventAboveAvgMaxThresholdSet EventKind = "above_avg_max_threshold_set"
	EventNewHigh                 EventKind = "new_high"
	EventNewAbsoluteMin          EventKind = "new_absolute_min"
	EventNewAbsoluteMax          EventKind = "new_absolute_max"
)

// Event is one immutable detection finding for a symbol in one pass.
type Event struct {
	Symbol       string
	Kind         EventKind
	Message      string
	Contribution decimal.Decimal
}

// SymbolEvents bundles a symbol's findings for one pass with their
// summed severity score.
type SymbolEvents struct {
	Events []Event
	Score  decimal.Decimal
}
