package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recently recorded spike events from the audit store.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	audit, closeAudit, err := a.openAudit(ctx)
	if err != nil {
		return err
	}
	if audit == nil {
		return errors.New("database not configured; cannot show events")
	}
	if closeAudit != nil {
		defer closeAudit()
	}

	events, err := audit.ListRecentEvents(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stdout, "no events found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSymbol\tKind\tPrice\tContribution\tMessage")

	for _, event := range events {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			event.CycleTS.UTC().Format(time.RFC3339),
			event.Symbol,
			event.Kind,
			event.Price.StringFixed(8),
			event.Contribution.StringFixed(2),
			sanitizeInline(event.Message),
		)
	}

	writer.Flush()

	total, err := audit.CountEvents(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\nshowing %d of %d recorded events\n", len(events), total)
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
