package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertPollRecordSQL = `INSERT INTO poll_records (
        bucket_ts,
        trigger,
        market_session,
        total_stocks,
        gainers,
        losers,
        unchanged,
        total_volume,
        avg_volume,
        sentiment,
        index_pchange,
        fetch_success,
        fetch_latency_ms,
        fetch_error,
        alert_dispatched,
        alert_reason
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
    )
    ON CONFLICT (bucket_ts, trigger) DO NOTHING
    RETURNING id;`

	insertPollSampleSQL = `INSERT INTO poll_samples (
        record_id,
        symbol,
        company_name,
        last_price,
        change,
        pchange,
        previous_close,
        open,
        day_high,
        day_low,
        traded_volume,
        traded_value
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    );`

	selectRecordColumns = `
        id,
        bucket_ts,
        trigger,
        market_session,
        total_stocks,
        gainers,
        losers,
        unchanged,
        total_volume,
        avg_volume,
        sentiment,
        index_pchange,
        fetch_success,
        fetch_latency_ms,
        fetch_error,
        alert_dispatched,
        alert_reason,
        created_at`

	listRecordsBetweenSQL = `SELECT` + selectRecordColumns + `
    FROM poll_records
    WHERE bucket_ts >= $1
      AND bucket_ts < $2
    ORDER BY bucket_ts;`

	listRecentRecordsSQL = `SELECT` + selectRecordColumns + `
    FROM poll_records
    ORDER BY bucket_ts DESC
    LIMIT $1;`

	countRecordsSQL = `SELECT COUNT(*) FROM poll_records;`

	symbolSeriesSQL = `SELECT
        r.bucket_ts,
        s.last_price,
        s.pchange,
        s.traded_volume,
        s.day_high,
        s.day_low
    FROM poll_samples s
    JOIN poll_records r ON r.id = s.record_id
    WHERE s.symbol = $1
      AND r.bucket_ts >= $2
    ORDER BY r.bucket_ts;`

	volatilityStatsSQL = `SELECT
        COALESCE(AVG(index_pchange), 0),
        COALESCE(STDDEV_POP(index_pchange), 0),
        COALESCE(MIN(index_pchange), 0),
        COALESCE(MAX(index_pchange), 0),
        COUNT(*)
    FROM poll_records
    WHERE bucket_ts >= $1
      AND fetch_success;`

	trainingRowsSQL = `SELECT
        r.bucket_ts,
        r.market_session,
        r.sentiment,
        s.symbol,
        s.last_price,
        s.change,
        s.pchange,
        s.traded_volume,
        s.day_high,
        s.day_low,
        s.open,
        s.previous_close
    FROM poll_samples s
    JOIN poll_records r ON r.id = s.record_id
    WHERE r.bucket_ts >= $1
      AND r.bucket_ts < $2
      AND ($3 = '' OR s.symbol = $3)
      AND ($4 = '' OR r.market_session = $4)
      AND ($5::numeric IS NULL OR ABS(s.pchange) >= $5)
    ORDER BY r.bucket_ts DESC;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PollRecordStore defines the write path for poll persistence.
type PollRecordStore interface {
	InsertPollRecord(ctx context.Context, record PollRecord) (int64, error)
}

// ReportStore defines the read-side query surface consumed by reporting.
type ReportStore interface {
	ListRecordsBetween(ctx context.Context, from, to time.Time) ([]PollRecord, error)
	ListRecentRecords(ctx context.Context, limit int) ([]PollRecord, error)
	SymbolSeries(ctx context.Context, symbol string, days int) ([]SeriesPoint, error)
	MarketVolatility(ctx context.Context, days int) (VolatilityStats, error)
	TrainingRows(ctx context.Context, query TrainingQuery) ([]TrainingRow, error)
	CountRecords(ctx context.Context) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to poll records and samples.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

// InsertPollRecord appends a poll record and its samples in one transaction.
// A (bucket, trigger) pair that already exists is left untouched and reported
// with id 0: poll records are append-only.
func (s *Store) InsertPollRecord(ctx context.Context, record PollRecord) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var errMsg interface{}
	if record.FetchError != nil {
		errMsg = *record.FetchError
	}

	var id int64
	scanErr := tx.QueryRow(ctx, insertPollRecordSQL,
		record.Bucket,
		record.Trigger,
		record.MarketSession,
		record.TotalStocks,
		record.Gainers,
		record.Losers,
		record.Unchanged,
		record.TotalVolume,
		record.AvgVolume.String(),
		record.Sentiment,
		record.IndexPChange.String(),
		record.FetchSuccess,
		record.FetchLatency.Milliseconds(),
		errMsg,
		record.AlertDispatched,
		record.AlertReason,
	).Scan(&id)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			// conflict: this bucket/trigger was already written
			return 0, nil
		}
		return 0, fmt.Errorf("insert poll record: %w", scanErr)
	}

	for _, sample := range record.Samples {
		if _, execErr := tx.Exec(ctx, insertPollSampleSQL,
			id,
			sample.Symbol,
			sample.CompanyName,
			sample.LastPrice.String(),
			sample.Change.String(),
			sample.PChange.String(),
			sample.PreviousClose.String(),
			sample.Open.String(),
			sample.DayHigh.String(),
			sample.DayLow.String(),
			sample.TradedVolume,
			sample.TradedValue.String(),
		); execErr != nil {
			return 0, fmt.Errorf("insert poll sample %s: %w", sample.Symbol, execErr)
		}
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return 0, fmt.Errorf("commit poll record: %w", commitErr)
	}
	return id, nil
}

// ListRecordsBetween lists poll records within a time window, samples excluded.
func (s *Store) ListRecordsBetween(ctx context.Context, from, to time.Time) ([]PollRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecordsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list records between: %w", queryErr)
	}
	defer rows.Close()

	return collectRecords(rows, 0)
}

// ListRecentRecords lists the most recent poll records ordered by descending bucket.
func (s *Store) ListRecentRecords(ctx context.Context, limit int) ([]PollRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRecordsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent records: %w", queryErr)
	}
	defer rows.Close()

	return collectRecords(rows, limit)
}

// CountRecords counts stored poll records.
func (s *Store) CountRecords(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countRecordsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count records: %w", scanErr)
	}
	return count, nil
}

// SymbolSeries returns the per-symbol time series over a trailing day count.
func (s *Store) SymbolSeries(ctx context.Context, symbol string, days int) ([]SeriesPoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	rows, queryErr := pool.Query(ctx, symbolSeriesSQL, symbol, since)
	if queryErr != nil {
		return nil, fmt.Errorf("symbol series: %w", queryErr)
	}
	defer rows.Close()

	points := make([]SeriesPoint, 0)
	for rows.Next() {
		var (
			point    SeriesPoint
			price    string
			pchange  string
			highStr  string
			lowStr   string
			scanErrs error
		)
		if err := rows.Scan(&point.Timestamp, &price, &pchange, &point.Volume, &highStr, &lowStr); err != nil {
			return nil, err
		}
		point.Price, scanErrs = decimal.NewFromString(price)
		if scanErrs != nil {
			return nil, fmt.Errorf("parse price: %w", scanErrs)
		}
		point.PChange, scanErrs = decimal.NewFromString(pchange)
		if scanErrs != nil {
			return nil, fmt.Errorf("parse pchange: %w", scanErrs)
		}
		point.DayHigh, scanErrs = decimal.NewFromString(highStr)
		if scanErrs != nil {
			return nil, fmt.Errorf("parse day high: %w", scanErrs)
		}
		point.DayLow, scanErrs = decimal.NewFromString(lowStr)
		if scanErrs != nil {
			return nil, fmt.Errorf("parse day low: %w", scanErrs)
		}
		points = append(points, point)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return points, nil
}

// MarketVolatility aggregates index percent-change statistics over a trailing day count.
func (s *Store) MarketVolatility(ctx context.Context, days int) (VolatilityStats, error) {
	pool, err := s.getPool()
	if err != nil {
		return VolatilityStats{}, err
	}

	since := time.Now().UTC().AddDate(0, 0, -days)

	var meanStr, stdStr, minStr, maxStr string
	var stats VolatilityStats
	if scanErr := pool.QueryRow(ctx, volatilityStatsSQL, since).Scan(
		&meanStr, &stdStr, &minStr, &maxStr, &stats.Count,
	); scanErr != nil {
		return VolatilityStats{}, fmt.Errorf("market volatility: %w", scanErr)
	}

	var convErr error
	if stats.MeanPChange, convErr = decimal.NewFromString(meanStr); convErr != nil {
		return VolatilityStats{}, fmt.Errorf("parse mean: %w", convErr)
	}
	if stats.StdDev, convErr = decimal.NewFromString(stdStr); convErr != nil {
		return VolatilityStats{}, fmt.Errorf("parse stddev: %w", convErr)
	}
	if stats.MinPChange, convErr = decimal.NewFromString(minStr); convErr != nil {
		return VolatilityStats{}, fmt.Errorf("parse min: %w", convErr)
	}
	if stats.MaxPChange, convErr = decimal.NewFromString(maxStr); convErr != nil {
		return VolatilityStats{}, fmt.Errorf("parse max: %w", convErr)
	}

	return stats, nil
}

// TrainingRows extracts flattened samples for the offline training corpus.
func (s *Store) TrainingRows(ctx context.Context, query TrainingQuery) ([]TrainingRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var minP interface{}
	if query.MinPChange != nil {
		minP = query.MinPChange.String()
	}

	rows, queryErr := pool.Query(ctx, trainingRowsSQL,
		query.From,
		query.To,
		query.Symbol,
		query.Session,
		minP,
	)
	if queryErr != nil {
		return nil, fmt.Errorf("training rows: %w", queryErr)
	}
	defer rows.Close()

	result := make([]TrainingRow, 0)
	for rows.Next() {
		var (
			row                                 TrainingRow
			lastPrice, change, pchange          string
			dayHigh, dayLow, openStr, prevClose string
		)
		if err := rows.Scan(
			&row.Timestamp,
			&row.MarketSession,
			&row.Sentiment,
			&row.Symbol,
			&lastPrice,
			&change,
			&pchange,
			&row.Volume,
			&dayHigh,
			&dayLow,
			&openStr,
			&prevClose,
		); err != nil {
			return nil, err
		}

		var convErr error
		if row.LastPrice, convErr = decimal.NewFromString(lastPrice); convErr != nil {
			return nil, fmt.Errorf("parse last price: %w", convErr)
		}
		if row.Change, convErr = decimal.NewFromString(change); convErr != nil {
			return nil, fmt.Errorf("parse change: %w", convErr)
		}
		if row.PChange, convErr = decimal.NewFromString(pchange); convErr != nil {
			return nil, fmt.Errorf("parse pchange: %w", convErr)
		}
		if row.DayHigh, convErr = decimal.NewFromString(dayHigh); convErr != nil {
			return nil, fmt.Errorf("parse day high: %w", convErr)
		}
		if row.DayLow, convErr = decimal.NewFromString(dayLow); convErr != nil {
			return nil, fmt.Errorf("parse day low: %w", convErr)
		}
		if row.Open, convErr = decimal.NewFromString(openStr); convErr != nil {
			return nil, fmt.Errorf("parse open: %w", convErr)
		}
		if row.PreviousClose, convErr = decimal.NewFromString(prevClose); convErr != nil {
			return nil, fmt.Errorf("parse previous close: %w", convErr)
		}

		result = append(result, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return result, nil
}

func collectRecords(rows pgx.Rows, sizeHint int) ([]PollRecord, error) {
	records := make([]PollRecord, 0, sizeHint)
	for rows.Next() {
		record, scanErr := scanPollRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanPollRecord(rows pgx.Rows) (PollRecord, error) {
	var (
		record    PollRecord
		avgVolStr string
		indexStr  string
		latencyMs int64
		errMsg    sql.NullString
	)

	if err := rows.Scan(
		&record.ID,
		&record.Bucket,
		&record.Trigger,
		&record.MarketSession,
		&record.TotalStocks,
		&record.Gainers,
		&record.Losers,
		&record.Unchanged,
		&record.TotalVolume,
		&avgVolStr,
		&record.Sentiment,
		&indexStr,
		&record.FetchSuccess,
		&latencyMs,
		&errMsg,
		&record.AlertDispatched,
		&record.AlertReason,
		&record.CreatedAt,
	); err != nil {
		return PollRecord{}, err
	}

	var convErr error
	if record.AvgVolume, convErr = decimal.NewFromString(avgVolStr); convErr != nil {
		return PollRecord{}, fmt.Errorf("parse avg volume: %w", convErr)
	}
	if record.IndexPChange, convErr = decimal.NewFromString(indexStr); convErr != nil {
		return PollRecord{}, fmt.Errorf("parse index pchange: %w", convErr)
	}

	record.FetchLatency = time.Duration(latencyMs) * time.Millisecond
	if errMsg.Valid {
		msg := errMsg.String
		record.FetchError = &msg
	}

	return record, nil
}
