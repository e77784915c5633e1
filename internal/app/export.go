package app

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"nifty-market-alerts/internal/storage"
)

// Export renders historical poll records as CSV, NDJSON, and/or a PNG chart
// of the index percent-change series.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.NDJSONPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv, --ndjson or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListRecordsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no poll records found for export window")
		return nil
	}

	downsampled := downsampleRecords(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting poll records")

	if opts.CSVPath != "" {
		if err := writeRecordsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.NDJSONPath != "" {
		if err := writeRecordsNDJSON(opts.NDJSONPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRecordsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRecords(records []storage.PollRecord, max int) []storage.PollRecord {
	if max <= 0 || len(records) <= max {
		return records
	}
	// a single-point export keeps the most recent record
	if max == 1 {
		return records[len(records)-1:]
	}

	result := make([]storage.PollRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeRecordsCSV(path string, records []storage.PollRecord) error {
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
		"bucket_ts", "trigger", "market_session",
		"total_stocks", "gainers", "losers", "unchanged",
		"total_volume", "avg_volume", "sentiment", "index_pchange",
		"fetch_success", "fetch_latency_ms", "fetch_error",
		"alert_dispatched", "alert_reason",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, record := range records {
		if err := writer.Write(recordRow(record)); err != nil {
			return err
		}
	}

	return writer.Error()
}

func recordRow(record storage.PollRecord) []string {
	errMsg := ""
	if record.FetchError != nil {
		errMsg = *record.FetchError
	}
	return []string{
		record.Bucket.Format(time.RFC3339),
		record.Trigger,
		record.MarketSession,
		itoa(record.TotalStocks),
		itoa(record.Gainers),
		itoa(record.Losers),
		itoa(record.Unchanged),
		itoa64(record.TotalVolume),
		record.AvgVolume.String(),
		record.Sentiment,
		record.IndexPChange.String(),
		boolString(record.FetchSuccess),
		itoa64(record.FetchLatency.Milliseconds()),
		errMsg,
		boolString(record.AlertDispatched),
		record.AlertReason,
	}
}

type exportedRecord struct {
	Bucket          time.Time `json:"bucket"`
	Trigger         string    `json:"trigger"`
	MarketSession   string    `json:"marketSession"`
	TotalStocks     int       `json:"totalStocks"`
	Gainers         int       `json:"gainers"`
	Losers          int       `json:"losers"`
	Unchanged       int       `json:"unchanged"`
	TotalVolume     int64     `json:"totalVolume"`
	AvgVolume       string    `json:"avgVolume"`
	Sentiment       string    `json:"sentiment"`
	IndexPChange    string    `json:"indexPChange"`
	FetchSuccess    bool      `json:"fetchSuccess"`
	FetchLatencyMS  int64     `json:"fetchLatencyMs"`
	FetchError      string    `json:"fetchError,omitempty"`
	AlertDispatched bool      `json:"alertDispatched"`
	AlertReason     string    `json:"alertReason"`
}

func writeRecordsNDJSON(path string, records []storage.PollRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	for _, record := range records {
		row := exportedRecord{
			Bucket:          record.Bucket.UTC(),
			Trigger:         record.Trigger,
			MarketSession:   record.MarketSession,
			TotalStocks:     record.TotalStocks,
			Gainers:         record.Gainers,
			Losers:          record.Losers,
			Unchanged:       record.Unchanged,
			TotalVolume:     record.TotalVolume,
			AvgVolume:       record.AvgVolume.String(),
			Sentiment:       record.Sentiment,
			IndexPChange:    record.IndexPChange.String(),
			FetchSuccess:    record.FetchSuccess,
			FetchLatencyMS:  record.FetchLatency.Milliseconds(),
			AlertDispatched: record.AlertDispatched,
			AlertReason:     record.AlertReason,
		}
		if record.FetchError != nil {
			row.FetchError = *record.FetchError
		}
		if err := encoder.Encode(row); err != nil {
			return err
		}
	}

	return nil
}

func writeRecordsPNG(path string, records []storage.PollRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	indexPChange := make([]float64, len(records))
	gainers := make([]float64, len(records))
	losers := make([]float64, len(records))

	for i, record := range records {
		x[i] = record.Bucket
		indexPChange[i] = record.IndexPChange.InexactFloat64()
		gainers[i] = float64(record.Gainers)
		losers[i] = float64(record.Losers)
	}

	pctFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Index change (%)",
			ValueFormatter: pctFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Movers",
			ValueFormatter: pctFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Index %",
				XValues: x,
				YValues: indexPChange,
			},
			chart.TimeSeries{
				Name:    "Gainers",
				XValues: x,
				YValues: gainers,
				YAxis:   chart.YAxisSecondary,
			},
			chart.TimeSeries{
				Name:    "Losers",
				XValues: x,
				YValues: losers,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func itoa(v int) string { return strconv.Itoa(v) }

func itoa64(v int64) string { return strconv.FormatInt(v, 10) }

func boolString(v bool) string { return strconv.FormatBool(v) }

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
