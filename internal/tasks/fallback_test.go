package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// scriptedSource fails on demand so the cache tier can be exercised.
type scriptedSource struct {
	due      []Task
	fail     bool
	lastRuns []string
}

func (s *scriptedSource) TasksForRun(ctx context.Context, page, pageSize int) ([]Task, error) {
	if s.fail {
		return nil, fmt.Errorf("upstream down")
	}
	if page > 0 {
		return nil, nil
	}
	return s.due, nil
}

func (s *scriptedSource) SetLastRun(ctx context.Context, id string) error {
	s.lastRuns = append(s.lastRuns, id)
	return nil
}

func TestFallbackServesCacheWhenPrimaryFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	primary := &scriptedSource{due: []Task{{ID: "1", Email: "a@example.com", Symbols: []string{"BTC-EUR"}}}}
	source := NewFallbackSource(primary, path, noopLogger())
	ctx := context.Background()

	// Healthy fetch populates the cache file.
	due, err := source.TasksForRun(ctx, 0, 10)
	if err != nil || len(due) != 1 {
		t.Fatalf("healthy fetch failed: %v, %d tasks", err, len(due))
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("cache file not written: %v", err)
	}

	// Outage: the cached list keeps reporting alive.
	primary.fail = true
	due, err = source.TasksForRun(ctx, 0, 10)
	if err != nil {
		t.Fatalf("fallback should serve the cache: %v", err)
	}
	if len(due) != 1 || due[0].ID != "1" {
		t.Fatalf("cached tasks wrong: %+v", due)
	}

	// Paging past the cache during an outage yields nothing.
	due, err = source.TasksForRun(ctx, 1, 10)
	if err != nil || len(due) != 0 {
		t.Fatalf("fallback page 1 should be empty, got %v / %d", err, len(due))
	}
}

func TestFallbackErrorsWithoutCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	primary := &scriptedSource{fail: true}
	source := NewFallbackSource(primary, path, noopLogger())

	if _, err := source.TasksForRun(context.Background(), 0, 10); err == nil {
		t.Fatal("no cache and a dead primary should error")
	}
}

func TestFallbackSetLastRunPassesThrough(t *testing.T) {
	primary := &scriptedSource{}
	source := NewFallbackSource(primary, filepath.Join(t.TempDir(), "tasks.json"), noopLogger())

	if err := source.SetLastRun(context.Background(), "9"); err != nil {
		t.Fatalf("SetLastRun failed: %v", err)
	}
	if len(primary.lastRuns) != 1 || primary.lastRuns[0] != "9" {
		t.Fatalf("acknowledgement not forwarded: %v", primary.lastRuns)
	}
}
