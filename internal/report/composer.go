package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"crypto-spike-alerts/internal/metrics"
	"crypto-spike-alerts/internal/opportunity"
	"crypto-spike-alerts/internal/tasks"
)

// Subject is the fixed mail subject for spike reports.
const Subject = "Crypto Spike Alerts & Metrics"

const (
	defaultMaxOpportunities = 10
	maxVolatile             = 10
	maxRangeMovers          = 10
)

// Composer renders per-subscriber plain-text reports from one
// detection pass.
type Composer struct {
	maxOpportunities int
}

// NewComposer constructs a report composer listing at most
// maxOpportunities investment suggestions per report.
func NewComposer(maxOpportunities int) *Composer {
	if maxOpportunities <= 0 {
		maxOpportunities = defaultMaxOpportunities
	}
	return &Composer{maxOpportunities: maxOpportunities}
}

// Compose builds the subscriber's report. ok is false when none of the
// subscriber's symbols produced an event this cycle: silence, not an
// empty email. Every symbol appears in at most one of the five symbol
// sections; the opportunities list is advisory and not a placement.
func (c *Composer) Compose(
	task tasks.Task,
	events map[string]metrics.SymbolEvents,
	snapshot map[string]metrics.SymbolMetrics,
	droppers map[string]DropperRecord,
	opportunities []opportunity.Opportunity,
) (body string, ok bool) {
	relevantEvents := make(map[string]metrics.SymbolEvents)
	relevantMetrics := make(map[string]metrics.SymbolMetrics)
	for _, symbol := range task.Symbols {
		if symbolEvents, has := events[symbol]; has {
			relevantEvents[symbol] = symbolEvents
		}
		if m, has := snapshot[symbol]; has {
			relevantMetrics[symbol] = m
		}
	}

	if len(relevantEvents) == 0 {
		return "", false
	}

	placed := make(map[string]bool)
	builder := &strings.Builder{}
	builder.WriteString("Crypto Metrics Report\n\n")

	writeOpportunities(builder, task, opportunities, c.maxOpportunities)
	writePrimary(builder, task, relevantEvents, relevantMetrics, placed)
	writeDroppers(builder, task, snapshot, droppers, placed)
	writeVolatile(builder, relevantEvents, relevantMetrics, placed)
	writeRangeMovers(builder, relevantEvents, relevantMetrics, placed)
	writeRemaining(builder, relevantEvents, relevantMetrics, placed)

	builder.WriteString("This report was generated automatically by the crypto spike detection service.")
	return builder.String(), true
}

func writeOpportunities(builder *strings.Builder, task tasks.Task, opportunities []opportunity.Opportunity, limit int) {
	relevant := make([]opportunity.Opportunity, 0, limit)
	for _, opp := range opportunities {
		if !task.HasSymbol(opp.Symbol) {
			continue
		}
		relevant = append(relevant, opp)
		if len(relevant) == limit {
			break
		}
	}
	if len(relevant) == 0 {
		return
	}

	builder.WriteString("DAILY INVESTMENT OPPORTUNITIES (EUR 100 MAX)\n")
	builder.WriteString("=============================================\n\n")
	builder.WriteString("Based on daily price analysis with exchange fees (1.5 EUR buy + 1.5 EUR sell + 0.01% of price)\n\n")

	for _, opp := range relevant {
		fmt.Fprintf(builder, "Symbol: %s\n", opp.Symbol)
		fmt.Fprintf(builder, "Opportunity Type: %s\n", opp.Type)
		fmt.Fprintf(builder, "Current Price: %s\n", opp.CurrentPrice.StringFixed(8))
		fmt.Fprintf(builder, "Daily Average: %s\n", opp.DailyAverage.StringFixed(8))
		fmt.Fprintf(builder, "Daily Range: %s - %s\n", opp.DailyMin.StringFixed(8), opp.DailyMax.StringFixed(8))
		fmt.Fprintf(builder, "Total Fees (Buy+Sell): %s\n", opp.TotalFees.StringFixed(8))
		fmt.Fprintf(builder, "Expected Profit: %s (%s%%)\n", opp.Profit.StringFixed(2), opp.ProfitPercent.StringFixed(2))
		fmt.Fprintf(builder, "Risk/Reward Ratio: %s\n", opp.RiskReward.StringFixed(4))
		fmt.Fprintf(builder, "Volume: %s\n", opp.Volume.StringFixed(2))
		fmt.Fprintf(builder, "Daily Volatility Count: %d\n", opp.VolatilityHits)
		fmt.Fprintf(builder, "Recommendation: %s\n", opp.Recommendation)
		builder.WriteString("\n")
	}
}

func writePrimary(
	builder *strings.Builder,
	task tasks.Task,
	events map[string]metrics.SymbolEvents,
	relevantMetrics map[string]metrics.SymbolMetrics,
	placed map[string]bool,
) {
	primary := make([]string, 0)
	for symbol := range relevantMetrics {
		if _, has := events[symbol]; !has {
			continue
		}
		if task.IsPrimary(symbol) && !placed[symbol] {
			primary = append(primary, symbol)
		}
	}
	if len(primary) == 0 {
		return
	}
	sortByScore(primary, events)

	builder.WriteString("PRIMARY SYMBOLS\n")
	builder.WriteString("===============\n\n")
	for _, symbol := range primary {
		placed[symbol] = true
		writeSymbolBlock(builder, symbol, events, relevantMetrics)
	}
}

func writeDroppers(
	builder *strings.Builder,
	task tasks.Task,
	snapshot map[string]metrics.SymbolMetrics,
	droppers map[string]DropperRecord,
	placed map[string]bool,
) {
	records := make([]DropperRecord, 0)
	for symbol, record := range droppers {
		if !task.HasSymbol(symbol) || placed[symbol] {
			continue
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return
	}
	sort.Slice(records, func(i, j int) bool {
		left, right := records[i].DropAmount(), records[j].DropAmount()
		if !left.Equal(right) {
			return left.GreaterThan(right)
		}
		return records[i].Symbol < records[j].Symbol
	})

	builder.WriteString("THE DROPPER OF THE DAY\n")
	builder.WriteString("======================\n\n")
	hundred := decimal.NewFromInt(100)
	for _, record := range records {
		placed[record.Symbol] = true

		fmt.Fprintf(builder, "Symbol: %s\n", record.Symbol)
		if m, ok := snapshot[record.Symbol]; ok {
			fmt.Fprintf(builder, "Current Price: %s\n", m.CurrentPrice.StringFixed(8))
			if record.NewMin.IsPositive() {
				currentPct := m.CurrentPrice.Div(record.NewMin).Mul(hundred)
				fmt.Fprintf(builder, "Current Percentage: %s%%\n", currentPct.StringFixed(2))
			}
			fmt.Fprintf(builder, "Average Daily Price: %s\n", m.AveragePrice.StringFixed(8))
		}
		fmt.Fprintf(builder, "Previous Absolute Min: %s\n", record.PreviousMin.StringFixed(8))
		fmt.Fprintf(builder, "New Absolute Min: %s\n", record.NewMin.StringFixed(8))
		fmt.Fprintf(builder, "Drop Amount: %s\n", record.DropAmount().StringFixed(8))
		if record.PreviousMin.IsPositive() {
			dropPct := record.DropAmount().Div(record.PreviousMin).Mul(hundred)
			fmt.Fprintf(builder, "Drop Percentage: %s%%\n", dropPct.StringFixed(2))
		}
		fmt.Fprintf(builder, "Time of Drop: %s UTC\n", record.DroppedAt.UTC().Format("2006-01-02 15:04:05"))
		builder.WriteString("\n")
	}
}

func writeVolatile(
	builder *strings.Builder,
	events map[string]metrics.SymbolEvents,
	relevantMetrics map[string]metrics.SymbolMetrics,
	placed map[string]bool,
) {
	volatile := make([]string, 0)
	for symbol, m := range relevantMetrics {
		if m.DailyVolatilityCount > 0 && !placed[symbol] {
			volatile = append(volatile, symbol)
		}
	}
	if len(volatile) == 0 {
		return
	}
	sort.Slice(volatile, func(i, j int) bool {
		left := relevantMetrics[volatile[i]].DailyVolatilityCount
		right := relevantMetrics[volatile[j]].DailyVolatilityCount
		if left != right {
			return left > right
		}
		return volatile[i] < volatile[j]
	})
	if len(volatile) > maxVolatile {
		volatile = volatile[:maxVolatile]
	}

	builder.WriteString("MOST VOLATILE SYMBOLS (Top 10)\n")
	builder.WriteString("==============================\n\n")
	for _, symbol := range volatile {
		placed[symbol] = true
		fmt.Fprintf(builder, "Volatility Count: %d\n", relevantMetrics[symbol].DailyVolatilityCount)
		writeSymbolBlock(builder, symbol, events, relevantMetrics)
	}
}

func writeRangeMovers(
	builder *strings.Builder,
	events map[string]metrics.SymbolEvents,
	relevantMetrics map[string]metrics.SymbolMetrics,
	placed map[string]bool,
) {
	movers := make([]string, 0)
	for symbol, m := range relevantMetrics {
		if m.DailyPriceChange.IsPositive() && !placed[symbol] {
			movers = append(movers, symbol)
		}
	}
	if len(movers) == 0 {
		return
	}
	sort.Slice(movers, func(i, j int) bool {
		left := relevantMetrics[movers[i]].DailyPriceChange
		right := relevantMetrics[movers[j]].DailyPriceChange
		if !left.Equal(right) {
			return left.GreaterThan(right)
		}
		return movers[i] < movers[j]
	})
	if len(movers) > maxRangeMovers {
		movers = movers[:maxRangeMovers]
	}

	builder.WriteString("BIGGEST PRICE CHANGE (Top 10)\n")
	builder.WriteString("=============================\n\n")
	for _, symbol := range movers {
		placed[symbol] = true
		fmt.Fprintf(builder, "Daily Price Change: %s\n", relevantMetrics[symbol].DailyPriceChange.StringFixed(8))
		writeSymbolBlock(builder, symbol, events, relevantMetrics)
	}
}

func writeRemaining(
	builder *strings.Builder,
	events map[string]metrics.SymbolEvents,
	relevantMetrics map[string]metrics.SymbolMetrics,
	placed map[string]bool,
) {
	remaining := make([]string, 0)
	for symbol := range events {
		if _, has := relevantMetrics[symbol]; !has {
			continue
		}
		if !placed[symbol] {
			remaining = append(remaining, symbol)
		}
	}
	if len(remaining) == 0 {
		return
	}
	sortByScore(remaining, events)

	builder.WriteString("REMAINING SYMBOLS (Sorted by Score)\n")
	builder.WriteString("===================================\n\n")
	for _, symbol := range remaining {
		placed[symbol] = true
		writeSymbolBlock(builder, symbol, events, relevantMetrics)
	}
}

// writeSymbolBlock renders the shared per-symbol detail lines.
func writeSymbolBlock(
	builder *strings.Builder,
	symbol string,
	events map[string]metrics.SymbolEvents,
	relevantMetrics map[string]metrics.SymbolMetrics,
) {
	m := relevantMetrics[symbol]
	fmt.Fprintf(builder, "Symbol: %s\n", symbol)

	if symbolEvents, has := events[symbol]; has {
		fmt.Fprintf(builder, "Score: %s\n", symbolEvents.Score.StringFixed(2))
		builder.WriteString("Events Detected:\n")
		for _, event := range symbolEvents.Events {
			fmt.Fprintf(builder, "  - %s\n", event.Message)
		}
	}

	fmt.Fprintf(builder, "Current Price: %s\n", m.CurrentPrice.StringFixed(8))
	fmt.Fprintf(builder, "Volume: %s\n", m.Volume.StringFixed(8))
	fmt.Fprintf(builder, "Daily Average Price: %s (from %d updates today)\n", m.AveragePrice.StringFixed(8), m.DailyPriceCount)
	fmt.Fprintf(builder, "Daily Range: %s - %s\n", m.DailyMin.StringFixed(8), m.DailyMax.StringFixed(8))
	fmt.Fprintf(builder, "Daily Change: %s\n", m.DailyPriceChange.StringFixed(8))
	fmt.Fprintf(builder, "Volatility Count: %d\n", m.DailyVolatilityCount)
	fmt.Fprintf(builder, "2-Week Average Min: %s\n", m.AverageMin.StringFixed(8))
	fmt.Fprintf(builder, "2-Week Average Max: %s\n", m.AverageMax.StringFixed(8))
	fmt.Fprintf(builder, "All-Time Absolute Min: %s\n", m.AbsoluteMin.StringFixed(8))
	fmt.Fprintf(builder, "All-Time Absolute Max: %s\n", m.AbsoluteMax.StringFixed(8))
	fmt.Fprintf(builder, "Stored Below Avg Min Threshold: %s\n", formatThreshold(m.StoredBelowAvgMinThreshold))
	fmt.Fprintf(builder, "Stored Above Avg Max Threshold: %s\n", formatThreshold(m.StoredAboveAvgMaxThreshold))
	fmt.Fprintf(builder, "Last Price Update: %s UTC\n", m.LastPriceUpdate.UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(builder, "Last Average Update: %s UTC\n", m.LastAverageUpdate.UTC().Format("2006-01-02 15:04:05"))
	builder.WriteString("\n")
}

func formatThreshold(threshold *decimal.Decimal) string {
	if threshold == nil {
		return "None"
	}
	return threshold.StringFixed(8)
}

// sortByScore orders symbols by event score descending, symbol
// ascending on ties, so report ordering is deterministic.
func sortByScore(symbols []string, events map[string]metrics.SymbolEvents) {
	sort.Slice(symbols, func(i, j int) bool {
		left := events[symbols[i]].Score
		right := events[symbols[j]].Score
		if !left.Equal(right) {
			return left.GreaterThan(right)
		}
		return symbols[i] < symbols[j]
	})
}
