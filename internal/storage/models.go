package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventRecord is one persisted spike event, kept for audit and the
// show command.
type EventRecord struct {
	ID           int64
	CycleTS      time.Time
	Symbol       string
	Kind         string
	Message      string
	Price        decimal.Decimal
	Contribution decimal.Decimal
	CreatedAt    time.Time
}
