package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateSymbol string
	simulatePrice  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-tick",
	Short: "Inject one ticker price and print the resulting events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateSymbol == "" {
			return errors.New("--symbol must be provided")
		}
		if simulatePrice <= 0 {
			return errors.New("--price must be greater than 0")
		}

		price := decimal.NewFromFloat(simulatePrice)
		return getApp().SimulateTick(cmd.Context(), simulateSymbol, price)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "", "Product id, e.g. BTC-EUR")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "Ticker price to inject")
}
