package cli

import (
	"github.com/spf13/cobra"

	"crypto-spike-alerts/internal/app"
)

var (
	bootstrapForce bool
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Seed the metrics table from candle history",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.BootstrapOptions{
			Force: bootstrapForce,
		}
		return getApp().Bootstrap(cmd.Context(), opts)
	},
}

func init() {
	bootstrapCmd.Flags().BoolVar(&bootstrapForce, "force", false, "Discard the existing state file and rebuild")
}
