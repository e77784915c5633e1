package fetcher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"nifty-market-alerts/internal/storage"
)

// Result is the classified outcome of one data request. A failed fetch is a
// value, not an error: the cycle always proceeds to persistence.
type Result struct {
	Samples      []storage.Sample
	IndexPChange decimal.Decimal
	Success      bool
	Latency      time.Duration
	Error        string
}

// QuoteFetcher retrieves the instrument quote board from the external source.
type QuoteFetcher interface {
	FetchQuotes(ctx context.Context) Result
}
