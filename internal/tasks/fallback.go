package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FallbackSource wraps a primary task source with a last-known-good
// cache on disk. A successful fetch refreshes the cache; a failed one
// serves the cached list so subscriber reporting survives scheduler
// outages.
type FallbackSource struct {
	primary Source
	path    string
	logger  zerolog.Logger
}

// NewFallbackSource wraps primary with a JSON cache file at path.
func NewFallbackSource(primary Source, path string, logger zerolog.Logger) *FallbackSource {
	return &FallbackSource{
		primary: primary,
		path:    path,
		logger:  logger.With().Str("component", "tasks_fallback").Logger(),
	}
}

// TasksForRun serves from the primary tier, caching page results, and
// falls back to the cached list when the primary is unreachable. The
// cache holds a single page's worth: fallback paging beyond page 0
// returns nothing rather than repeating stale entries.
func (f *FallbackSource) TasksForRun(ctx context.Context, page, pageSize int) ([]Task, error) {
	due, err := f.primary.TasksForRun(ctx, page, pageSize)
	if err == nil {
		if page == 0 {
			if cacheErr := f.writeCache(due); cacheErr != nil {
				f.logger.Warn().Err(cacheErr).Msg("failed to refresh task cache")
			}
		}
		return due, nil
	}

	f.logger.Warn().Err(err).Msg("primary task source unreachable, serving cached tasks")
	if page > 0 {
		return nil, nil
	}

	cached, cacheErr := f.readCache()
	if cacheErr != nil {
		return nil, fmt.Errorf("primary failed (%v) and cache unusable: %w", err, cacheErr)
	}
	return cached, nil
}

// SetLastRun passes through; acknowledgements have no fallback tier.
func (f *FallbackSource) SetLastRun(ctx context.Context, id string) error {
	return f.primary.SetLastRun(ctx, id)
}

func (f *FallbackSource) writeCache(due []Task) error {
	data, err := json.MarshalIndent(due, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(f.path, data, 0o644)
}

func (f *FallbackSource) readCache() ([]Task, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	var cached []Task
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return cached, nil
}

var _ Source = (*FallbackSource)(nil)
