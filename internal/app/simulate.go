package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"nifty-market-alerts/internal/fetcher"
	"nifty-market-alerts/internal/scheduler"
	"nifty-market-alerts/internal/service"
	"nifty-market-alerts/internal/storage"
)

// SimulatedMove is one synthetic instrument observation fed into a
// simulated poll cycle.
type SimulatedMove struct {
	Symbol  string
	PChange decimal.Decimal
}

// SimulateAlert 用给定的合成涨跌幅模拟一次完整的告警流程。
// The cycle runs through the real classification and dispatch path but
// never touches the database.
func (a *App) SimulateAlert(ctx context.Context, moves []SimulatedMove) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	dispatcher := a.newDispatcher()
	if dispatcher.TargetCount() == 0 {
		return errors.New("未配置任何告警收件人")
	}

	quotes := &staticQuoteFetcher{moves: moves}

	svc := service.New(a.Config, nil, quotes, nil, dispatcher, a.Logger)

	bucket := time.Now().UTC().Truncate(a.Config.Scheduler.Interval)
	return svc.RunCycle(ctx, bucket, scheduler.TriggerManual)
}

type staticQuoteFetcher struct {
	moves []SimulatedMove
}

func (s *staticQuoteFetcher) FetchQuotes(ctx context.Context) fetcher.Result {
	samples := make([]storage.Sample, 0, len(s.moves))
	sum := decimal.Zero
	for _, move := range s.moves {
		samples = append(samples, storage.Sample{
			Symbol:       move.Symbol,
			CompanyName:  move.Symbol,
			LastPrice:    decimal.NewFromInt(100).Add(move.PChange),
			Change:       move.PChange,
			PChange:      move.PChange,
			Open:         decimal.NewFromInt(100),
			TradedVolume: 1000,
		})
		sum = sum.Add(move.PChange)
	}

	index := decimal.Zero
	if len(samples) > 0 {
		index = sum.Div(decimal.NewFromInt(int64(len(samples))))
	}

	return fetcher.Result{
		Samples:      samples,
		IndexPChange: index,
		Success:      true,
		Latency:      0,
	}
}

var _ fetcher.QuoteFetcher = (*staticQuoteFetcher)(nil)
