package tasks

import "context"

// Task is one due subscriber job as supplied by the scheduling API.
// When a task is due is the scheduler's concern, not this engine's.
type Task struct {
	ID             string   `json:"id"`
	Email          string   `json:"email"`
	Category       string   `json:"category"`
	Symbols        []string `json:"symbols"`
	PrimarySymbols []string `json:"primarySymbols"`
}

// Source supplies due subscriber tasks per cycle.
type Source interface {
	// TasksForRun returns one page of due tasks; paging ends when a
	// page comes back shorter than pageSize.
	TasksForRun(ctx context.Context, page, pageSize int) ([]Task, error)
	// SetLastRun acknowledges a completed task.
	SetLastRun(ctx context.Context, id string) error
}

// HasSymbol reports whether the task subscribes to the symbol.
func (t Task) HasSymbol(symbol string) bool {
	for _, s := range t.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// IsPrimary reports whether the symbol is in the task's favorites
// subset.
func (t Task) IsPrimary(symbol string) bool {
	for _, s := range t.PrimarySymbols {
		if s == symbol {
			return true
		}
	}
	return false
}
