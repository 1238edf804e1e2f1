package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"crypto-spike-alerts/internal/metrics"
)

// Export renders the persisted metrics table as CSV and/or a PNG bar
// chart of the symbols with the widest intraday range.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.TopSymbols <= 0 {
		opts.TopSymbols = a.Config.Export.TopSymbols
	}

	source := a.newPriceSource()
	store := a.newMetricsStore(source)
	if err := store.LoadState(); err != nil {
		return err
	}

	snapshot := store.Snapshot()
	if len(snapshot) == 0 {
		a.Logger.Info().Msg("metrics table is empty; nothing to export")
		return nil
	}

	symbols := make([]string, 0, len(snapshot))
	for symbol := range snapshot {
		symbols = append(symbols, symbol)
	}
	sort.Slice(symbols, func(i, j int) bool {
		left := snapshot[symbols[i]].DailyPriceChange
		right := snapshot[symbols[j]].DailyPriceChange
		if !left.Equal(right) {
			return left.GreaterThan(right)
		}
		return symbols[i] < symbols[j]
	})

	a.Logger.Info().Int("symbols", len(symbols)).Msg("exporting metrics table")

	if opts.CSVPath != "" {
		if err := writeMetricsCSV(opts.CSVPath, symbols, snapshot); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		top := symbols
		if len(top) > opts.TopSymbols {
			top = top[:opts.TopSymbols]
		}
		if err := writeMetricsPNG(opts.PNGPath, top, snapshot); err != nil {
			return err
		}
	}

	return nil
}

func writeMetricsCSV(path string, symbols []string, snapshot map[string]metrics.SymbolMetrics) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"symbol",
		"current_price",
		"volume",
		"average_min",
		"average_max",
		"absolute_min",
		"absolute_max",
		"daily_min",
		"daily_max",
		"daily_price_change",
		"daily_volatility_count",
		"average_price",
		"last_price_update",
		"last_average_update",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, symbol := range symbols {
		m := snapshot[symbol]
		record := []string{
			symbol,
			m.CurrentPrice.String(),
			m.Volume.String(),
			m.AverageMin.String(),
			m.AverageMax.String(),
			m.AbsoluteMin.String(),
			m.AbsoluteMax.String(),
			m.DailyMin.String(),
			m.DailyMax.String(),
			m.DailyPriceChange.String(),
			strconv.Itoa(m.DailyVolatilityCount),
			m.AveragePrice.String(),
			m.LastPriceUpdate.UTC().Format(time.RFC3339),
			m.LastAverageUpdate.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeMetricsPNG(path string, symbols []string, snapshot map[string]metrics.SymbolMetrics) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	bars := make([]chart.Value, 0, len(symbols))
	for _, symbol := range symbols {
		bars = append(bars, chart.Value{
			Label: symbol,
			Value: snapshot[symbol].DailyPriceChange.InexactFloat64(),
		})
	}

	graph := chart.BarChart{
		Title:    "Intraday price range",
		Width:    1280,
		Height:   720,
		BarWidth: 40,
		XAxis: chart.Style{
			TextRotationDegrees: 45,
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
