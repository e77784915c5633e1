package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sample is one instrument observation inside a poll. Immutable once stored.
type Sample struct {
	Symbol        string
	CompanyName   string
	LastPrice     decimal.Decimal
	Change        decimal.Decimal
	PChange       decimal.Decimal
	PreviousClose decimal.Decimal
	Open          decimal.Decimal
	DayHigh       decimal.Decimal
	DayLow        decimal.Decimal
	TradedVolume  int64
	TradedValue   decimal.Decimal
}

// PollRecord is the append-only persisted outcome of one poll cycle.
type PollRecord struct {
	ID            int64
	Bucket        time.Time
	Trigger       string
	MarketSession string

	TotalStocks  int
	Gainers      int
	Losers       int
	Unchanged    int
	TotalVolume  int64
	AvgVolume    decimal.Decimal
	Sentiment    string
	IndexPChange decimal.Decimal

	FetchSuccess bool
	FetchLatency time.Duration
	FetchError   *string

	AlertDispatched bool
	AlertReason     string

	Samples   []Sample
	CreatedAt time.Time
}

// SeriesPoint is one row of a per-symbol time series.
type SeriesPoint struct {
	Timestamp time.Time
	Price     decimal.Decimal
	PChange   decimal.Decimal
	Volume    int64
	DayHigh   decimal.Decimal
	DayLow    decimal.Decimal
}

// VolatilityStats summarises the index percent-change series over a window.
type VolatilityStats struct {
	MeanPChange decimal.Decimal
	StdDev      decimal.Decimal
	MinPChange  decimal.Decimal
	MaxPChange  decimal.Decimal
	Count       int64
}

// TrainingRow is one flattened sample joined with its poll context,
// consumed by the offline reporting/training layer.
type TrainingRow struct {
	Timestamp     time.Time
	MarketSession string
	Sentiment     string
	Symbol        string
	LastPrice     decimal.Decimal
	Change        decimal.Decimal
	PChange       decimal.Decimal
	Volume        int64
	DayHigh       decimal.Decimal
	DayLow        decimal.Decimal
	Open          decimal.Decimal
	PreviousClose decimal.Decimal
}

// TrainingQuery filters the training-row extraction.
type TrainingQuery struct {
	From       time.Time
	To         time.Time
	Symbol     string
	Session    string
	MinPChange *decimal.Decimal
}
