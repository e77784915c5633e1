package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"nifty-market-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Market    MarketConfig    `mapstructure:"market"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Email     EmailConfig     `mapstructure:"email"`
	SMS       SMSConfig       `mapstructure:"sms"`
	WhatsApp  WhatsAppConfig  `mapstructure:"whatsapp"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs polling cadence and the operating window.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	WindowOpenHour  int           `mapstructure:"window_open_hour"`
	WindowCloseHour int           `mapstructure:"window_close_hour"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// SessionConfig bounds the session-bootstrap retry policy.
type SessionConfig struct {
	BootstrapPath  string        `mapstructure:"bootstrap_path"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffStep    time.Duration `mapstructure:"backoff_step"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// MarketConfig covers the external quote-board source.
type MarketConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	QueryKey       string        `mapstructure:"query_key"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Session        SessionConfig `mapstructure:"session"`
}

// RecipientsConfig lists fixed per-channel delivery targets.
type RecipientsConfig struct {
	Emails   []string `mapstructure:"emails"`
	SMS      []string `mapstructure:"sms"`
	WhatsApp []string `mapstructure:"whatsapp"`
}

// AlertingConfig defines thresholds and delivery gating.
type AlertingConfig struct {
	Enabled       bool             `mapstructure:"enabled"`
	Live          bool             `mapstructure:"live"`
	ThresholdPct  float64          `mapstructure:"threshold_pct"`
	NotifyOnError bool             `mapstructure:"notify_on_error"`
	Recipients    RecipientsConfig `mapstructure:"recipients"`
}

// EmailConfig carries SMTP connectivity.
type EmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// SMSConfig 描述短信网关参数。
type SMSConfig struct {
	APIURL string `mapstructure:"api_url"`
	APIKey string `mapstructure:"api_key"`
}

// WhatsAppConfig covers the WhatsApp Cloud API.
type WhatsAppConfig struct {
	APIURL        string `mapstructure:"api_url"`
	PhoneNumberID string `mapstructure:"phone_number_id"`
	AccessToken   string `mapstructure:"access_token"`
}

// CacheConfig tunes the in-process read cache.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NIFTYWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "niftywatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.window_open_hour", 9)
	v.SetDefault("scheduler.window_close_hour", 16)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x4e494654))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("market.base_url", "https://www.nseindia.com")
	v.SetDefault("market.query_key", "NIFTY")
	v.SetDefault("market.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("market.request_timeout", "15s")
	v.SetDefault("market.session.bootstrap_path", "/")
	v.SetDefault("market.session.max_attempts", 3)
	v.SetDefault("market.session.backoff_step", "5s")
	v.SetDefault("market.session.request_timeout", "10s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.live", false)
	v.SetDefault("alerting.threshold_pct", 0.5)
	v.SetDefault("alerting.notify_on_error", true)

	v.SetDefault("email.port", 587)
	v.SetDefault("email.from", "noreply@niftywatch.local")

	v.SetDefault("whatsapp.api_url", "https://graph.facebook.com/v18.0")

	v.SetDefault("cache.ttl", "60s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.WindowOpenHour < 0 || c.Scheduler.WindowOpenHour > 23 {
		return fmt.Errorf("scheduler.window_open_hour must be within 0-23")
	}
	if c.Scheduler.WindowCloseHour < 0 || c.Scheduler.WindowCloseHour > 23 {
		return fmt.Errorf("scheduler.window_close_hour must be within 0-23")
	}
	if c.Scheduler.WindowOpenHour >= c.Scheduler.WindowCloseHour {
		return fmt.Errorf("scheduler.window_open_hour must precede window_close_hour")
	}
	if c.Market.BaseURL == "" {
		return fmt.Errorf("market.base_url is required")
	}
	if c.Market.QueryKey == "" {
		return fmt.Errorf("market.query_key is required")
	}
	if c.Market.Session.MaxAttempts <= 0 {
		return fmt.Errorf("market.session.max_attempts must be greater than zero")
	}
	if c.Alerting.ThresholdPct < 0 {
		return fmt.Errorf("alerting.threshold_pct cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Live {
		if len(c.Alerting.Recipients.Emails) > 0 && c.Email.Host == "" {
			return fmt.Errorf("email.host 必须配置")
		}
		if len(c.Alerting.Recipients.SMS) > 0 && c.SMS.APIURL == "" {
			return fmt.Errorf("sms.api_url 必须配置")
		}
		if len(c.Alerting.Recipients.WhatsApp) > 0 && c.WhatsApp.AccessToken == "" {
			return fmt.Errorf("whatsapp.access_token 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// RecipientCount 返回所有渠道的收件人总数。
func (r RecipientsConfig) RecipientCount() int {
	return len(r.Emails) + len(r.SMS) + len(r.WhatsApp)
}
