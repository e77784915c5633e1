package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"nifty-market-alerts/internal/storage"
)

// Show prints recent poll records.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show records")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := a.recentRecords(ctx, store, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no poll records found")
		return nil
	}

	total, err := store.CountRecords(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "showing %d of %d poll records\n", len(records), total)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tTrigger\tSession\tStocks\tG/L/U\tSentiment\tAlert\tLatency\tError")

	for _, record := range records {
		errMsg := ""
		if record.FetchError != nil {
			errMsg = sanitizeInline(*record.FetchError)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%d/%d/%d\t%s\t%s\t%s\t%s\n",
			record.Bucket.UTC().Format(time.RFC3339),
			record.Trigger,
			record.MarketSession,
			record.TotalStocks,
			record.Gainers,
			record.Losers,
			record.Unchanged,
			record.Sentiment,
			record.AlertReason,
			record.FetchLatency,
			errMsg,
		)
	}

	writer.Flush()
	return nil
}

// recentRecords serves the recent-records query through the TTL cache so
// repeated reads inside one process run do not re-hit the database.
func (a *App) recentRecords(ctx context.Context, store *storage.Store, limit int) ([]storage.PollRecord, error) {
	key := fmt.Sprintf("recent:%d", limit)
	if cached, ok := a.records.Get(key); ok {
		return cached, nil
	}

	records, err := store.ListRecentRecords(ctx, limit)
	if err != nil {
		return nil, err
	}
	a.records.Set(key, records)
	return records, nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
