package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"nifty-market-alerts/internal/cache"
	"nifty-market-alerts/internal/config"
	"nifty-market-alerts/internal/fetcher"
	"nifty-market-alerts/internal/notify"
	"nifty-market-alerts/internal/scheduler"
	"nifty-market-alerts/internal/service"
	"nifty-market-alerts/internal/session"
	"nifty-market-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	records *cache.Cache[[]storage.PollRecord]
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config:  cfg,
		Logger:  logger.With().Str("component", "app").Logger(),
		records: cache.New[[]storage.PollRecord](cfg.Cache.TTL),
	}
}

func (a *App) newFetcher() fetcher.QuoteFetcher {
	sessions := session.NewManager(session.Options{
		BaseURL:       a.Config.Market.BaseURL,
		BootstrapPath: a.Config.Market.Session.BootstrapPath,
		UserAgent:     a.Config.Market.UserAgent,
		MaxAttempts:   a.Config.Market.Session.MaxAttempts,
		BackoffStep:   a.Config.Market.Session.BackoffStep,
		Timeout:       a.Config.Market.Session.RequestTimeout,
	}, a.Logger)

	return fetcher.NewMarket(fetcher.MarketOptions{
		BaseURL:   a.Config.Market.BaseURL,
		QueryKey:  a.Config.Market.QueryKey,
		UserAgent: a.Config.Market.UserAgent,
		Timeout:   a.Config.Market.RequestTimeout,
	}, sessions, a.Logger)
}

func (a *App) newDispatcher() *notify.Dispatcher {
	dispatcher := notify.NewDispatcher(a.Logger)
	recipients := a.Config.Alerting.Recipients

	if len(recipients.Emails) > 0 {
		email := notify.NewEmailChannel(notify.EmailOptions{
			Host:     a.Config.Email.Host,
			Port:     a.Config.Email.Port,
			Username: a.Config.Email.Username,
			Password: a.Config.Email.Password,
			From:     a.Config.Email.From,
			Timeout:  10 * time.Second,
		}, a.Logger)
		dispatcher.Register(email, recipients.Emails)
	}

	if len(recipients.SMS) > 0 {
		sms := notify.NewSMSChannel(notify.SMSOptions{
			APIURL:  a.Config.SMS.APIURL,
			APIKey:  a.Config.SMS.APIKey,
			Timeout: 10 * time.Second,
		}, a.Logger)
		dispatcher.Register(sms, recipients.SMS)
	}

	if len(recipients.WhatsApp) > 0 {
		whatsapp := notify.NewWhatsAppChannel(notify.WhatsAppOptions{
			APIURL:        a.Config.WhatsApp.APIURL,
			PhoneNumberID: a.Config.WhatsApp.PhoneNumberID,
			AccessToken:   a.Config.WhatsApp.AccessToken,
			Timeout:       10 * time.Second,
		}, a.Logger)
		dispatcher.Register(whatsapp, recipients.WhatsApp)
	}

	return dispatcher
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:        a.Config.Scheduler.Interval,
		WindowOpenHour:  a.Config.Scheduler.WindowOpenHour,
		WindowCloseHour: a.Config.Scheduler.WindowCloseHour,
		StartupDelay:    a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	var recordStore storage.PollRecordStore
	if store != nil {
		recordStore = store
	}

	svc := service.New(a.Config, sched, a.newFetcher(), recordStore, a.newDispatcher(), a.Logger)

	a.Logger.Info().
		Str("environment", a.Config.App.Environment).
		Bool("live_delivery", a.Config.Alerting.Live).
		Msg("starting monitoring service")

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// Trigger runs a single poll cycle immediately, outside the schedule.
func (a *App) Trigger(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	var recordStore storage.PollRecordStore
	if store != nil {
		recordStore = store
	}

	svc := service.New(a.Config, nil, a.newFetcher(), recordStore, a.newDispatcher(), a.Logger)

	bucket := time.Now().UTC().Truncate(a.Config.Scheduler.Interval)
	return svc.RunCycle(ctx, bucket, scheduler.TriggerManual)
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting historical poll records.
type ExportOptions struct {
	From       *time.Time
	To         *time.Time
	CSVPath    string
	NDJSONPath string
	PNGPath    string
	MaxPoints  int
}

// StatsOptions configure the volatility stats command.
type StatsOptions struct {
	Days int
}

// SeriesOptions configure the per-symbol series command.
type SeriesOptions struct {
	Symbol string
	Days   int
}
