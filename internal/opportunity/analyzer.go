package opportunity

import (
	"sort"

	"github.com/shopspring/decimal"

	"crypto-spike-alerts/internal/metrics"
)

// Opportunity is a derived, non-persisted short-term suggestion for one
// symbol, recomputed fresh each cycle.
type Opportunity struct {
	Symbol         string
	Type           string
	CurrentPrice   decimal.Decimal
	DailyAverage   decimal.Decimal
	DailyMin       decimal.Decimal
	DailyMax       decimal.Decimal
	DailyRange     decimal.Decimal
	TotalFees      decimal.Decimal
	Profit         decimal.Decimal
	ProfitPercent  decimal.Decimal
	RiskReward     decimal.Decimal
	Volume         decimal.Decimal
	VolatilityHits int
	Recommendation string
}

// typeBuyNowSellDailyAvg is the single evaluated scenario: buy at the
// current price, sell at today's intraday average.
const typeBuyNowSellDailyAvg = "BUY_CURRENT_SELL_DAILY_AVG"

// Options model the exchange's transaction costs and the filter.
type Options struct {
	// NotionalEUR is the fixed investment the profit figures assume.
	NotionalEUR decimal.Decimal
	// FlatFeeEUR is charged once on buy and once on sell.
	FlatFeeEUR decimal.Decimal
	// FeeBps is the basis-point fee taken on the traded price.
	FeeBps decimal.Decimal
	// MinProfitPercent drops marginal suggestions.
	MinProfitPercent decimal.Decimal
}

// Analyzer derives buy/sell suggestions from a metrics snapshot.
type Analyzer struct {
	opts Options
}

// NewAnalyzer constructs an analyzer with the given cost model.
func NewAnalyzer(opts Options) *Analyzer {
	if opts.NotionalEUR.IsZero() {
		opts.NotionalEUR = decimal.NewFromInt(100)
	}
	if opts.FlatFeeEUR.IsZero() {
		opts.FlatFeeEUR = decimal.RequireFromString("1.5")
	}
	if opts.FeeBps.IsZero() {
		opts.FeeBps = decimal.NewFromInt(1)
	}
	if opts.MinProfitPercent.IsZero() {
		opts.MinProfitPercent = decimal.NewFromInt(1)
	}
	return &Analyzer{opts: opts}
}

var bpsDivisor = decimal.NewFromInt(10000)

// Analyze evaluates every symbol with a positive daily average and
// returns the qualifying opportunities sorted by percentage profit,
// descending. Ties break on symbol for determinism.
func (a *Analyzer) Analyze(snapshot map[string]metrics.SymbolMetrics) []Opportunity {
	hundred := decimal.NewFromInt(100)
	opportunities := make([]Opportunity, 0)

	for symbol, m := range snapshot {
		if !m.AveragePrice.IsPositive() || !m.CurrentPrice.IsPositive() {
			continue
		}

		fees := a.opts.FlatFeeEUR.Mul(decimal.NewFromInt(2)).
			Add(m.CurrentPrice.Mul(a.opts.FeeBps).Div(bpsDivisor))

		// Gross return on the notional if price reverts to today's
		// intraday average.
		gross := m.AveragePrice.Sub(m.CurrentPrice).
			Div(m.CurrentPrice).
			Mul(a.opts.NotionalEUR)
		profit := gross.Sub(fees)
		profitPct := profit.Div(a.opts.NotionalEUR).Mul(hundred)

		if !profit.IsPositive() || profitPct.LessThanOrEqual(a.opts.MinProfitPercent) {
			continue
		}

		opportunities = append(opportunities, Opportunity{
			Symbol:         symbol,
			Type:           typeBuyNowSellDailyAvg,
			CurrentPrice:   m.CurrentPrice,
			DailyAverage:   m.AveragePrice,
			DailyMin:       m.DailyMin,
			DailyMax:       m.DailyMax,
			DailyRange:     m.DailyPriceChange,
			TotalFees:      fees,
			Profit:         profit,
			ProfitPercent:  profitPct,
			RiskReward:     riskReward(m),
			Volume:         m.Volume,
			VolatilityHits: m.DailyVolatilityCount,
			Recommendation: recommend(profitPct),
		})
	}

	sort.Slice(opportunities, func(i, j int) bool {
		if !opportunities[i].ProfitPercent.Equal(opportunities[j].ProfitPercent) {
			return opportunities[i].ProfitPercent.GreaterThan(opportunities[j].ProfitPercent)
		}
		return opportunities[i].Symbol < opportunities[j].Symbol
	})
	return opportunities
}

// riskReward compares the headroom up to the daily average with the
// distance already fallen from the daily minimum.
func riskReward(m metrics.SymbolMetrics) decimal.Decimal {
	downside := m.CurrentPrice.Sub(m.DailyMin)
	if !downside.IsPositive() {
		return decimal.Zero
	}
	return m.AveragePrice.Sub(m.CurrentPrice).Div(downside)
}

func recommend(profitPct decimal.Decimal) string {
	switch {
	case profitPct.GreaterThanOrEqual(decimal.NewFromInt(5)):
		return "STRONG BUY"
	case profitPct.GreaterThanOrEqual(decimal.NewFromInt(2)):
		return "BUY"
	default:
		return "WATCH"
	}
}
