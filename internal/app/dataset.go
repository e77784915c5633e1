package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"nifty-market-alerts/internal/storage"
)

// DatasetOptions filter the flattened per-sample extraction.
type DatasetOptions struct {
	Days       int
	Symbol     string
	Session    string
	MinPChange float64
	CSVPath    string
}

// Dataset writes flattened samples joined with their poll context as CSV,
// for offline analysis.
func (a *App) Dataset(ctx context.Context, opts DatasetOptions) error {
	if opts.CSVPath == "" {
		return errors.New("--csv must be provided")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot extract dataset")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	query := storage.TrainingQuery{
		From:    to.AddDate(0, 0, -opts.Days),
		To:      to,
		Symbol:  opts.Symbol,
		Session: opts.Session,
	}
	if opts.MinPChange > 0 {
		min := decimal.NewFromFloat(opts.MinPChange)
		query.MinPChange = &min
	}

	rows, err := store.TrainingRows(ctx, query)
	if err != nil {
		return err
	}

	a.Logger.Info().Int("rows", len(rows)).Str("path", opts.CSVPath).Msg("writing dataset")
	return writeDatasetCSV(opts.CSVPath, rows)
}

func writeDatasetCSV(path string, rows []storage.TrainingRow) error {
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
		"timestamp", "market_session", "sentiment", "symbol",
		"last_price", "change", "pchange", "volume",
		"day_high", "day_low", "open", "previous_close",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			row.Timestamp.Format(time.RFC3339),
			row.MarketSession,
			row.Sentiment,
			row.Symbol,
			row.LastPrice.String(),
			row.Change.String(),
			row.PChange.String(),
			itoa64(row.Volume),
			row.DayHigh.String(),
			row.DayLow.String(),
			row.Open.String(),
			row.PreviousClose.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}
