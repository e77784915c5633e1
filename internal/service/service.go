package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"nifty-market-alerts/internal/config"
	"nifty-market-alerts/internal/fetcher"
	"nifty-market-alerts/internal/movement"
	"nifty-market-alerts/internal/notify"
	"nifty-market-alerts/internal/scheduler"
	"nifty-market-alerts/internal/storage"
)

// Alert outcome reasons recorded on every poll record.
const (
	ReasonSignificantMovement = "significant-movement"
	ReasonNoMovement          = "no-movement"
	ReasonSuppressedDisabled  = "suppressed (disabled)"
	ReasonSuppressedNonLive   = "suppressed (non-live)"
	ReasonError               = "error"
)

// Service orchestrates fetching, classification, persistence, and dispatch.
type Service struct {
	scheduler  *scheduler.Scheduler
	quotes     fetcher.QuoteFetcher
	store      storage.PollRecordStore
	dispatcher *notify.Dispatcher
	logger     zerolog.Logger

	threshold     decimal.Decimal
	alertsOn      bool
	live          bool
	notifyOnError bool
	source        string
	openHour      int
	closeHour     int
	location      *time.Location

	locker  storage.AdvisoryLocker
	lockKey int64
}

// New constructs the monitoring service.
func New(cfg *config.Config, sched *scheduler.Scheduler, quotes fetcher.QuoteFetcher, store storage.PollRecordStore, dispatcher *notify.Dispatcher, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:     sched,
		quotes:        quotes,
		store:         store,
		dispatcher:    dispatcher,
		logger:        logger.With().Str("component", "service").Logger(),
		threshold:     decimal.NewFromFloat(cfg.Alerting.ThresholdPct),
		alertsOn:      cfg.Alerting.Enabled,
		live:          cfg.Alerting.Live,
		notifyOnError: cfg.Alerting.NotifyOnError,
		source:        cfg.Market.QueryKey,
		openHour:      cfg.Scheduler.WindowOpenHour,
		closeHour:     cfg.Scheduler.WindowCloseHour,
		location:      time.Local,
		locker:        locker,
		lockKey:       cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the scheduled polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.RunCycle)
}

// RunCycle 执行单个轮询周期：抓取、分类、落库、按需告警。
// Exactly one poll record is produced per completed cycle, fetch failures
// included; delivery failures never touch the record once written.
func (s *Service) RunCycle(ctx context.Context, bucket time.Time, trigger string) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	result := s.quotes.FetchQuotes(ctx)
	agg := movement.Classify(result.Samples, s.threshold)

	record := s.buildRecord(bucket, trigger, result, agg)

	if s.store != nil {
		if _, storeErr := s.store.InsertPollRecord(ctx, record); storeErr != nil {
			// storage failure must not abort the cycle or the process
			s.logger.Error().Err(storeErr).Time("bucket", bucket).Msg("failed to persist poll record")
		}
	}

	s.logger.Info().Time("bucket", bucket).
		Str("trigger", trigger).
		Bool("fetch_success", result.Success).
		Int("total_stocks", agg.TotalStocks).
		Int("gainers", agg.GainerCount).
		Int("losers", agg.LoserCount).
		Str("sentiment", agg.Sentiment).
		Str("alert_reason", record.AlertReason).
		Dur("latency", result.Latency).
		Msg("cycle recorded")

	if record.AlertDispatched && s.dispatcher != nil {
		msg := notify.RenderAlert(agg, bucket, s.source)
		attempts := s.dispatcher.Dispatch(ctx, msg)
		s.logAttempts(bucket, attempts)
	}

	if !result.Success && s.live && s.notifyOnError && s.dispatcher != nil && s.dispatcher.TargetCount() > 0 {
		msg := notify.RenderError(result.Error, bucket, s.source)
		attempts := s.dispatcher.Dispatch(ctx, msg)
		s.logAttempts(bucket, attempts)
	}

	return nil
}

func (s *Service) buildRecord(bucket time.Time, trigger string, result fetcher.Result, agg movement.Aggregation) storage.PollRecord {
	record := storage.PollRecord{
		Bucket:        bucket,
		Trigger:       trigger,
		MarketSession: s.marketSession(bucket),

		TotalStocks:  agg.TotalStocks,
		Gainers:      agg.GainerCount,
		Losers:       agg.LoserCount,
		Unchanged:    agg.UnchangedCount,
		TotalVolume:  agg.TotalVolume,
		AvgVolume:    agg.AvgVolume,
		Sentiment:    agg.Sentiment,
		IndexPChange: result.IndexPChange,

		FetchSuccess: result.Success,
		FetchLatency: result.Latency,

		Samples:   result.Samples,
		CreatedAt: time.Now().UTC(),
	}

	if result.Error != "" {
		errMsg := result.Error
		record.FetchError = &errMsg
	}

	switch {
	case !result.Success:
		record.AlertReason = ReasonError
	case !agg.ShouldAlert:
		record.AlertReason = ReasonNoMovement
	case !s.alertsOn:
		record.AlertReason = ReasonSuppressedDisabled
	case !s.live:
		record.AlertReason = ReasonSuppressedNonLive
	default:
		record.AlertDispatched = true
		record.AlertReason = ReasonSignificantMovement
	}

	return record
}

// marketSession labels the bucket by local hour against the operating window.
func (s *Service) marketSession(bucket time.Time) string {
	hour := bucket.In(s.location).Hour()
	switch {
	case hour < s.openHour:
		return "pre-market"
	case hour < s.closeHour:
		return "market-hours"
	case hour == s.closeHour:
		return "post-market"
	default:
		return "after-hours"
	}
}

func (s *Service) logAttempts(bucket time.Time, attempts []notify.Attempt) {
	delivered := 0
	for _, attempt := range attempts {
		if attempt.Delivered {
			delivered++
		}
	}
	s.logger.Info().Time("bucket", bucket).
		Int("attempted", len(attempts)).
		Int("delivered", delivered).
		Int("failed", len(attempts)-delivered).
		Msg("dispatch complete")
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
