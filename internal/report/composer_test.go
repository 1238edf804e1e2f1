package report

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"crypto-spike-alerts/internal/metrics"
	"crypto-spike-alerts/internal/opportunity"
	"crypto-spike-alerts/internal/tasks"
)

func eventsFor(symbol string, score int64) metrics.SymbolEvents {
	return metrics.SymbolEvents{
		Events: []metrics.Event{{
			Symbol:       symbol,
			Kind:         metrics.EventBelowAvgMinThresholdSet,
			Message:      "Price 95 is below average minimum 100 - NEW THRESHOLD SET",
			Contribution: decimal.NewFromInt(score),
		}},
		Score: decimal.NewFromInt(score),
	}
}

func metricsFor(symbol string, volatility int, dailyChange int64) metrics.SymbolMetrics {
	return metrics.SymbolMetrics{
		Symbol:               symbol,
		CurrentPrice:         decimal.NewFromInt(95),
		AverageMin:           decimal.NewFromInt(100),
		AverageMax:           decimal.NewFromInt(120),
		DailyVolatilityCount: volatility,
		DailyPriceChange:     decimal.NewFromInt(dailyChange),
	}
}

func TestComposeNoEventsMeansNoReport(t *testing.T) {
	composer := NewComposer(0)
	task := tasks.Task{ID: "1", Email: "a@example.com", Symbols: []string{"BTC-EUR"}}

	body, ok := composer.Compose(task, nil, map[string]metrics.SymbolMetrics{
		"BTC-EUR": metricsFor("BTC-EUR", 0, 0),
	}, nil, nil)

	if ok || body != "" {
		t.Fatal("zero events must produce silence, not an empty report")
	}
}

func TestComposeIgnoresEventsOutsideSubscription(t *testing.T) {
	composer := NewComposer(0)
	task := tasks.Task{ID: "1", Symbols: []string{"BTC-EUR"}}

	events := map[string]metrics.SymbolEvents{"ETH-EUR": eventsFor("ETH-EUR", 5)}
	snapshot := map[string]metrics.SymbolMetrics{
		"BTC-EUR": metricsFor("BTC-EUR", 0, 0),
		"ETH-EUR": metricsFor("ETH-EUR", 0, 0),
	}

	if _, ok := composer.Compose(task, events, snapshot, nil, nil); ok {
		t.Fatal("events on unsubscribed symbols must not trigger a report")
	}
}

func TestComposeSectionExclusivity(t *testing.T) {
	composer := NewComposer(0)
	task := tasks.Task{
		ID:             "1",
		Symbols:        []string{"PRIM-EUR", "VOL-EUR", "MOVE-EUR", "REST-EUR"},
		PrimarySymbols: []string{"PRIM-EUR"},
	}

	// PRIM is primary AND volatile AND a big mover, so it must appear
	// only in the primary section.
	events := map[string]metrics.SymbolEvents{
		"PRIM-EUR": eventsFor("PRIM-EUR", 9),
		"VOL-EUR":  eventsFor("VOL-EUR", 5),
		"MOVE-EUR": eventsFor("MOVE-EUR", 3),
		"REST-EUR": eventsFor("REST-EUR", 1),
	}
	snapshot := map[string]metrics.SymbolMetrics{
		"PRIM-EUR": metricsFor("PRIM-EUR", 7, 50),
		"VOL-EUR":  metricsFor("VOL-EUR", 4, 0),
		"MOVE-EUR": metricsFor("MOVE-EUR", 0, 30),
		"REST-EUR": metricsFor("REST-EUR", 0, 0),
	}

	body, ok := composer.Compose(task, events, snapshot, nil, nil)
	if !ok {
		t.Fatal("expected a report")
	}

	for _, symbol := range task.Symbols {
		if n := strings.Count(body, "Symbol: "+symbol+"\n"); n != 1 {
			t.Fatalf("%s should appear in exactly one section, found %d", symbol, n)
		}
	}

	primaryIdx := strings.Index(body, "PRIMARY SYMBOLS")
	volatileIdx := strings.Index(body, "MOST VOLATILE SYMBOLS")
	moversIdx := strings.Index(body, "BIGGEST PRICE CHANGE")
	remainingIdx := strings.Index(body, "REMAINING SYMBOLS")
	if primaryIdx < 0 || volatileIdx < 0 || moversIdx < 0 || remainingIdx < 0 {
		t.Fatalf("missing sections: %d %d %d %d", primaryIdx, volatileIdx, moversIdx, remainingIdx)
	}
	if !(primaryIdx < volatileIdx && volatileIdx < moversIdx && moversIdx < remainingIdx) {
		t.Fatal("sections out of order")
	}

	if strings.Index(body, "Symbol: PRIM-EUR") > volatileIdx {
		t.Fatal("primary symbol leaked past its section")
	}
}

func TestComposeDropperSection(t *testing.T) {
	composer := NewComposer(0)
	task := tasks.Task{ID: "1", Symbols: []string{"DROP-EUR"}}

	events := map[string]metrics.SymbolEvents{"DROP-EUR": eventsFor("DROP-EUR", 2)}
	snapshot := map[string]metrics.SymbolMetrics{"DROP-EUR": metricsFor("DROP-EUR", 0, 0)}
	droppers := map[string]DropperRecord{
		"DROP-EUR": {
			Symbol:      "DROP-EUR",
			PreviousMin: decimal.NewFromInt(100),
			NewMin:      decimal.NewFromInt(80),
			DroppedAt:   time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
		},
	}

	body, ok := composer.Compose(task, events, snapshot, droppers, nil)
	if !ok {
		t.Fatal("expected a report")
	}
	if !strings.Contains(body, "THE DROPPER OF THE DAY") {
		t.Fatal("dropper section missing")
	}
	if !strings.Contains(body, "Drop Amount: 20.00000000") {
		t.Fatalf("drop amount missing from body:\n%s", body)
	}
	if !strings.Contains(body, "Drop Percentage: 20.00%") {
		t.Fatal("drop percentage missing")
	}
	// Placed as a dropper, so not repeated in the remaining section.
	if strings.Contains(body, "REMAINING SYMBOLS") {
		t.Fatal("dropper must not reappear under remaining symbols")
	}
}

func TestComposeOpportunitiesFilteredByTask(t *testing.T) {
	composer := NewComposer(0)
	task := tasks.Task{ID: "1", Symbols: []string{"BTC-EUR"}}

	events := map[string]metrics.SymbolEvents{"BTC-EUR": eventsFor("BTC-EUR", 2)}
	snapshot := map[string]metrics.SymbolMetrics{"BTC-EUR": metricsFor("BTC-EUR", 0, 0)}
	opportunities := []opportunity.Opportunity{
		{Symbol: "BTC-EUR", Type: "BUY_CURRENT_SELL_DAILY_AVG", Recommendation: "BUY"},
		{Symbol: "ETH-EUR", Type: "BUY_CURRENT_SELL_DAILY_AVG", Recommendation: "STRONG BUY"},
	}

	body, ok := composer.Compose(task, events, snapshot, nil, opportunities)
	if !ok {
		t.Fatal("expected a report")
	}
	if !strings.Contains(body, "DAILY INVESTMENT OPPORTUNITIES") {
		t.Fatal("opportunities section missing")
	}
	if !strings.Contains(body, "Symbol: BTC-EUR") {
		t.Fatal("subscribed opportunity missing")
	}
	if strings.Contains(body, "ETH-EUR") {
		t.Fatal("unsubscribed opportunity leaked into the report")
	}
}

func TestComposeOpportunityLimitConfigurable(t *testing.T) {
	composer := NewComposer(1)
	task := tasks.Task{ID: "1", Symbols: []string{"BTC-EUR", "ADA-EUR"}}

	events := map[string]metrics.SymbolEvents{"BTC-EUR": eventsFor("BTC-EUR", 2)}
	snapshot := map[string]metrics.SymbolMetrics{
		"BTC-EUR": metricsFor("BTC-EUR", 0, 0),
		"ADA-EUR": metricsFor("ADA-EUR", 0, 0),
	}
	opportunities := []opportunity.Opportunity{
		{Symbol: "BTC-EUR", Type: "BUY_CURRENT_SELL_DAILY_AVG", Recommendation: "BUY"},
		{Symbol: "ADA-EUR", Type: "BUY_CURRENT_SELL_DAILY_AVG", Recommendation: "BUY"},
	}

	body, ok := composer.Compose(task, events, snapshot, nil, opportunities)
	if !ok {
		t.Fatal("expected a report")
	}
	if !strings.Contains(body, "Symbol: BTC-EUR") {
		t.Fatal("top opportunity missing")
	}
	if strings.Contains(body, "Symbol: ADA-EUR") {
		t.Fatal("opportunity past the configured limit should be cut")
	}
}

func TestComposeEventMessagesAppear(t *testing.T) {
	composer := NewComposer(0)
	task := tasks.Task{ID: "1", Symbols: []string{"BTC-EUR"}}

	events := map[string]metrics.SymbolEvents{"BTC-EUR": eventsFor("BTC-EUR", 5)}
	snapshot := map[string]metrics.SymbolMetrics{"BTC-EUR": metricsFor("BTC-EUR", 0, 0)}

	body, ok := composer.Compose(task, events, snapshot, nil, nil)
	if !ok {
		t.Fatal("expected a report")
	}
	if !strings.Contains(body, "NEW THRESHOLD SET") {
		t.Fatal("event message missing from report")
	}
	if !strings.Contains(body, "Score: 5.00") {
		t.Fatal("score missing from report")
	}
}
