package app

import (
	"context"
	"errors"
	"os"
)

// Bootstrap seeds the metrics table from candle history and persists
// it. With Force the existing state file is ignored and rebuilt.
func (a *App) Bootstrap(ctx context.Context, opts BootstrapOptions) error {
	source := a.newPriceSource()
	store := a.newMetricsStore(source)

	if opts.Force {
		if err := os.Remove(a.Config.State.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		a.Logger.Info().Str("path", a.Config.State.Path).Msg("existing state discarded")
	}

	if err := store.Initialize(ctx); err != nil {
		return err
	}

	a.Logger.Info().Int("symbols", store.Count()).Str("path", a.Config.State.Path).Msg("bootstrap complete")
	return nil
}
