package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Stats prints index volatility aggregates over a trailing day count.
func (a *App) Stats(ctx context.Context, opts StatsOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot compute stats")
	}
	if closeStore != nil {
		defer closeStore()
	}

	stats, err := store.MarketVolatility(ctx, opts.Days)
	if err != nil {
		return err
	}

	if stats.Count == 0 {
		fmt.Fprintln(os.Stdout, "no successful polls in window")
		return nil
	}

	fmt.Fprintf(os.Stdout, "Index percent-change over trailing %d day(s), %d polls:\n", opts.Days, stats.Count)
	fmt.Fprintf(os.Stdout, "  mean:   %s%%\n", stats.MeanPChange.StringFixed(4))
	fmt.Fprintf(os.Stdout, "  stddev: %s%%\n", stats.StdDev.StringFixed(4))
	fmt.Fprintf(os.Stdout, "  min:    %s%%\n", stats.MinPChange.StringFixed(4))
	fmt.Fprintf(os.Stdout, "  max:    %s%%\n", stats.MaxPChange.StringFixed(4))
	return nil
}

// Series prints the per-symbol time series over a trailing day count.
func (a *App) Series(ctx context.Context, opts SeriesOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot query series")
	}
	if closeStore != nil {
		defer closeStore()
	}

	points, err := store.SymbolSeries(ctx, opts.Symbol, opts.Days)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		fmt.Fprintf(os.Stdout, "no samples found for %s\n", opts.Symbol)
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPrice\tChange%\tVolume\tHigh\tLow")
	for _, point := range points {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%s\t%s\n",
			point.Timestamp.UTC().Format(time.RFC3339),
			point.Price.StringFixed(2),
			point.PChange.StringFixed(2),
			point.Volume,
			point.DayHigh.StringFixed(2),
			point.DayLow.StringFixed(2),
		)
	}
	writer.Flush()
	return nil
}
