package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"crypto-spike-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Coinbase    CoinbaseConfig    `mapstructure:"coinbase"`
	Detector    DetectorConfig    `mapstructure:"detector"`
	State       StateConfig       `mapstructure:"state"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Tasks       TasksConfig       `mapstructure:"tasks"`
	Mail        MailConfig        `mapstructure:"mail"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Opportunity OpportunityConfig `mapstructure:"opportunity"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// CoinbaseConfig covers market-data API access.
type CoinbaseConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	MaxCandles     int           `mapstructure:"max_candles"`
}

// DetectorConfig governs spike detection behaviour.
type DetectorConfig struct {
	WindowDays      int           `mapstructure:"window_days"`
	MinVolume       float64       `mapstructure:"min_volume"`
	AverageStaleAge time.Duration `mapstructure:"average_stale_age"`
	QuoteCurrencies []string      `mapstructure:"quote_currencies"`
	BootstrapConc   int           `mapstructure:"bootstrap_concurrency"`
}

// StateConfig locates the persisted metrics table.
type StateConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulerConfig governs detection cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// TasksConfig points at the upstream task/subscription API.
type TasksConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	PageSize       int           `mapstructure:"page_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	FallbackPath   string        `mapstructure:"fallback_path"`
}

// MailConfig configures the SMTP report transport.
type MailConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AlertingConfig defines optional ops alert routing.
type AlertingConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram ops channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// DatabaseConfig encapsulates the optional PostgreSQL audit store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// EventRetention bounds the audit table; zero keeps events forever.
	EventRetention time.Duration `mapstructure:"event_retention"`
}

// OpportunityConfig parameterises the short-term opportunity model.
type OpportunityConfig struct {
	NotionalEUR  float64 `mapstructure:"notional_eur"`
	FlatFeeEUR   float64 `mapstructure:"flat_fee_eur"`
	FeeBps       float64 `mapstructure:"fee_bps"`
	MinProfitPct float64 `mapstructure:"min_profit_pct"`
	MaxPerReport int     `mapstructure:"max_per_report"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	TopSymbols int `mapstructure:"top_symbols"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SPIKEWATCHER")
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
	v.SetDefault("app.name", "spikewatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("coinbase.base_url", "https://api.exchange.coinbase.com")
	v.SetDefault("coinbase.request_timeout", "10s")
	v.SetDefault("coinbase.user_agent", "spikewatcher/1.0")
	v.SetDefault("coinbase.max_candles", 300)

	v.SetDefault("detector.window_days", 14)
	v.SetDefault("detector.min_volume", 1.0)
	v.SetDefault("detector.average_stale_age", "24h")
	v.SetDefault("detector.quote_currencies", []string{"USD", "EUR"})
	v.SetDefault("detector.bootstrap_concurrency", 4)

	v.SetDefault("state.path", "data/metrics.json")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x73706b77))

	v.SetDefault("tasks.page_size", 100)
	v.SetDefault("tasks.request_timeout", "10s")
	v.SetDefault("tasks.fallback_path", "data/tasks.json")

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.timeout", "30s")

	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.event_retention", "720h")

	v.SetDefault("opportunity.notional_eur", 100.0)
	v.SetDefault("opportunity.flat_fee_eur", 1.5)
	v.SetDefault("opportunity.fee_bps", 1.0)
	v.SetDefault("opportunity.min_profit_pct", 1.0)
	v.SetDefault("opportunity.max_per_report", 10)

	v.SetDefault("export.top_symbols", 20)
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
	if c.Detector.WindowDays <= 0 {
		return fmt.Errorf("detector.window_days must be greater than zero")
	}
	if c.Coinbase.MaxCandles <= 0 {
		return fmt.Errorf("coinbase.max_candles must be greater than zero")
	}
	if c.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	if c.Opportunity.NotionalEUR <= 0 {
		return fmt.Errorf("opportunity.notional_eur must be greater than zero")
	}
	if c.Tasks.PageSize <= 0 {
		return fmt.Errorf("tasks.page_size must be greater than zero")
	}
	if c.Mail.Enabled {
		if c.Mail.Host == "" {
			return fmt.Errorf("mail.host is required when mail is enabled")
		}
		if c.Mail.From == "" {
			return fmt.Errorf("mail.from is required when mail is enabled")
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}
