package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"crypto-spike-alerts/internal/app"
)

var (
	exportPNGPath    string
	exportCSVPath    string
	exportTopSymbols int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the metrics table as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportCSVPath == "" && exportPNGPath == "" {
			return errors.New("at least one of --csv or --png must be provided")
		}

		opts := app.ExportOptions{
			PNGPath:    exportPNGPath,
			CSVPath:    exportCSVPath,
			TopSymbols: exportTopSymbols,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportTopSymbols, "top", 0, "Symbols to chart (defaults to config)")
}
