package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"stock-alert-engine/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Quotes   QuoteConfig    `mapstructure:"quotes"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Export   ExportConfig   `mapstructure:"export"`
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
	OpTimeout       time.Duration `mapstructure:"op_timeout"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// EngineConfig governs sampling cadence and evaluation policy.
type EngineConfig struct {
	// Mode selects the scheduling policy: "interval" or "phase".
	Mode            string        `mapstructure:"mode"`
	Interval        time.Duration `mapstructure:"interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	Workers         int           `mapstructure:"workers"`
	Retention       time.Duration `mapstructure:"retention"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	Phase           PhaseConfig   `mapstructure:"phase"`
	Rolling         RollingConfig `mapstructure:"rolling"`
}

// PhaseConfig defines the trading-day trigger points for phase mode.
type PhaseConfig struct {
	Timezone     string   `mapstructure:"timezone"`
	BusinessDays []string `mapstructure:"business_days"`
	OpenAt       string   `mapstructure:"open_at"`
	MiddayAt     string   `mapstructure:"midday_at"`
	CloseAt      string   `mapstructure:"close_at"`
	MiddayPct    float64  `mapstructure:"midday_threshold_pct"`
	ClosePct     float64  `mapstructure:"close_threshold_pct"`
}

// RollingConfig tunes the two-point time-decayed policy for interval mode.
type RollingConfig struct {
	Lookback   time.Duration `mapstructure:"lookback"`
	FastPct    float64       `mapstructure:"fast_threshold_pct"`
	FastWindow time.Duration `mapstructure:"fast_window"`
	SlowPct    float64       `mapstructure:"slow_threshold_pct"`
	SlowWindow time.Duration `mapstructure:"slow_window"`
}

// QuoteConfig captures quote API connectivity.
type QuoteConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Email    EmailConfig    `mapstructure:"email"`
	SMS      SMSConfig      `mapstructure:"sms"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// EmailConfig covers SMTP delivery.
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// SMSConfig covers delivery through a Twilio-compatible HTTP API.
type SMSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
	APIBase    string `mapstructure:"api_base"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STOCKWATCHER")
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
	v.SetDefault("app.name", "stockwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("engine.mode", "interval")
	v.SetDefault("engine.interval", "30m")
	v.SetDefault("engine.startup_delay", "0s")
	v.SetDefault("engine.workers", 1)
	v.SetDefault("engine.retention", "48h")
	v.SetDefault("engine.advisory_lock_key", int64(0x73746b77))

	v.SetDefault("engine.phase.timezone", "America/New_York")
	v.SetDefault("engine.phase.business_days", []string{"mon", "tue", "wed", "thu", "fri"})
	v.SetDefault("engine.phase.open_at", "09:30")
	v.SetDefault("engine.phase.midday_at", "12:30")
	v.SetDefault("engine.phase.close_at", "16:00")
	v.SetDefault("engine.phase.midday_threshold_pct", 1.0)
	v.SetDefault("engine.phase.close_threshold_pct", 1.5)

	v.SetDefault("engine.rolling.lookback", "2h")
	v.SetDefault("engine.rolling.fast_threshold_pct", 1.5)
	v.SetDefault("engine.rolling.fast_window", "30m")
	v.SetDefault("engine.rolling.slow_threshold_pct", 3.0)
	v.SetDefault("engine.rolling.slow_window", "120m")

	v.SetDefault("quotes.base_url", "https://query1.finance.yahoo.com/v7/finance/quote")
	v.SetDefault("quotes.request_timeout", "10s")
	v.SetDefault("quotes.user_agent", "stockwatcher/1.0")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.cooldown", "0s")
	v.SetDefault("alerting.email.enabled", false)
	v.SetDefault("alerting.email.port", 587)
	v.SetDefault("alerting.sms.enabled", false)
	v.SetDefault("alerting.sms.api_base", "https://api.twilio.com")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.op_timeout", "10s")
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
	switch c.Engine.Mode {
	case "interval", "phase":
	default:
		return fmt.Errorf("engine.mode must be \"interval\" or \"phase\", got %q", c.Engine.Mode)
	}
	if c.Engine.Interval <= 0 {
		return fmt.Errorf("engine.interval must be greater than zero")
	}
	if c.Engine.Retention <= 0 {
		return fmt.Errorf("engine.retention must be greater than zero")
	}
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("engine.workers must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Engine.Mode == "phase" {
		if _, err := time.LoadLocation(c.Engine.Phase.Timezone); err != nil {
			return fmt.Errorf("engine.phase.timezone invalid: %w", err)
		}
		for _, at := range []string{c.Engine.Phase.OpenAt, c.Engine.Phase.MiddayAt, c.Engine.Phase.CloseAt} {
			if _, err := time.Parse("15:04", at); err != nil {
				return fmt.Errorf("engine.phase trigger time %q invalid: %w", at, err)
			}
		}
		if len(c.Engine.Phase.BusinessDays) == 0 {
			return fmt.Errorf("engine.phase.business_days cannot be empty")
		}
	}
	if c.Engine.Rolling.FastPct < 0 || c.Engine.Rolling.SlowPct < 0 {
		return fmt.Errorf("engine.rolling thresholds cannot be negative")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Database.OpTimeout < 0 {
		return fmt.Errorf("database.op_timeout cannot be negative")
	}
	if c.Alerting.Email.Enabled {
		if c.Alerting.Email.Host == "" || c.Alerting.Email.From == "" {
			return fmt.Errorf("alerting.email.host 和 from 必须配置")
		}
	}
	if c.Alerting.SMS.Enabled {
		if c.Alerting.SMS.AccountSID == "" || c.Alerting.SMS.AuthToken == "" || c.Alerting.SMS.From == "" {
			return fmt.Errorf("alerting.sms credentials must be configured")
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
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
