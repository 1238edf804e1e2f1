package opportunity

import (
	"testing"

	"github.com/shopspring/decimal"

	"crypto-spike-alerts/internal/metrics"
)

func symbolAt(price, dailyAvg string) metrics.SymbolMetrics {
	return metrics.SymbolMetrics{
		CurrentPrice: decimal.RequireFromString(price),
		AveragePrice: decimal.RequireFromString(dailyAvg),
		DailyMin:     decimal.RequireFromString(price).Sub(decimal.NewFromInt(1)),
		DailyMax:     decimal.RequireFromString(dailyAvg),
	}
}

func TestAnalyzeProfitableSymbol(t *testing.T) {
	analyzer := NewAnalyzer(Options{})

	// Price 100, daily average 110: 10% gross on EUR 100 notional is
	// EUR 10; fees are 3 flat plus 0.01% of the price (0.01).
	snapshot := map[string]metrics.SymbolMetrics{
		"BTC-EUR": symbolAt("100", "110"),
	}

	opportunities := analyzer.Analyze(snapshot)
	if len(opportunities) != 1 {
		t.Fatalf("expected one opportunity, got %d", len(opportunities))
	}

	opp := opportunities[0]
	if opp.Type != "BUY_CURRENT_SELL_DAILY_AVG" {
		t.Fatalf("unexpected type %q", opp.Type)
	}
	if !opp.TotalFees.Equal(decimal.RequireFromString("3.01")) {
		t.Fatalf("fees = %s, want 3.01", opp.TotalFees)
	}
	if !opp.Profit.Equal(decimal.RequireFromString("6.99")) {
		t.Fatalf("profit = %s, want 6.99", opp.Profit)
	}
	if !opp.ProfitPercent.Equal(decimal.RequireFromString("6.99")) {
		t.Fatalf("profit pct = %s, want 6.99", opp.ProfitPercent)
	}
	if opp.Recommendation != "STRONG BUY" {
		t.Fatalf("recommendation = %q", opp.Recommendation)
	}
}

func TestAnalyzeFiltersMarginalAndLosing(t *testing.T) {
	analyzer := NewAnalyzer(Options{})

	snapshot := map[string]metrics.SymbolMetrics{
		// Price above the daily average: the scenario loses money.
		"DOWN-EUR": symbolAt("110", "100"),
		// Gross 4, fees ~3.01: profit under the 1% floor.
		"FLAT-EUR": symbolAt("100", "104"),
	}

	if got := analyzer.Analyze(snapshot); len(got) != 0 {
		t.Fatalf("losing and marginal symbols must be dropped, got %d", len(got))
	}
}

func TestAnalyzeSkipsSymbolsWithoutDailyData(t *testing.T) {
	analyzer := NewAnalyzer(Options{})
	snapshot := map[string]metrics.SymbolMetrics{
		"NEW-EUR": {CurrentPrice: decimal.NewFromInt(50)},
	}
	if got := analyzer.Analyze(snapshot); len(got) != 0 {
		t.Fatal("a symbol with no daily average has nothing to evaluate")
	}
}

func TestAnalyzeSortsByProfitPercent(t *testing.T) {
	analyzer := NewAnalyzer(Options{})
	snapshot := map[string]metrics.SymbolMetrics{
		"A-EUR": symbolAt("100", "107"),
		"B-EUR": symbolAt("100", "120"),
		"C-EUR": symbolAt("100", "107"),
	}

	got := analyzer.Analyze(snapshot)
	if len(got) != 3 {
		t.Fatalf("expected 3 opportunities, got %d", len(got))
	}
	if got[0].Symbol != "B-EUR" {
		t.Fatalf("highest percentage first, got %s", got[0].Symbol)
	}
	if got[1].Symbol != "A-EUR" || got[2].Symbol != "C-EUR" {
		t.Fatalf("ties must break on symbol: %s, %s", got[1].Symbol, got[2].Symbol)
	}
}

func TestRecommendBands(t *testing.T) {
	cases := []struct {
		pct  string
		want string
	}{
		{"5", "STRONG BUY"},
		{"4.99", "BUY"},
		{"2", "BUY"},
		{"1.5", "WATCH"},
	}
	for _, c := range cases {
		if got := recommend(decimal.RequireFromString(c.pct)); got != c.want {
			t.Fatalf("recommend(%s) = %q, want %q", c.pct, got, c.want)
		}
	}
}
