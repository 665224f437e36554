package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"margin-alerts/internal/logging"
)

// DefaultTimezone is the brokerage's local zone.
const DefaultTimezone = "America/Argentina/Buenos_Aires"

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Source     SourceConfig     `mapstructure:"source"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Server     ServerConfig     `mapstructure:"server"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Timezone    string `mapstructure:"timezone"`
}

// ScheduleConfig governs when checks fire.
type ScheduleConfig struct {
	MorningAt         string        `mapstructure:"morning_at"`
	AfternoonAt       string        `mapstructure:"afternoon_at"`
	RecurringInterval time.Duration `mapstructure:"recurring_interval"`
	AlignRecurring    bool          `mapstructure:"align_recurring"`
	CheckTimeout      time.Duration `mapstructure:"check_timeout"`
}

// ThresholdsConfig holds the two alert bands.
type ThresholdsConfig struct {
	Low           float64 `mapstructure:"low"`
	High          float64 `mapstructure:"high"`
	HighInclusive bool    `mapstructure:"high_inclusive"`
}

// SourceConfig selects where the percentage comes from.
type SourceConfig struct {
	Demo DemoSourceConfig `mapstructure:"demo"`
	HTTP HTTPSourceConfig `mapstructure:"http"`
}

// DemoSourceConfig drives the deterministic demo source.
type DemoSourceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Pattern string `mapstructure:"pattern"`
}

// HTTPSourceConfig points at a JSON endpoint exposing the percentage.
type HTTPSourceConfig struct {
	URL       string        `mapstructure:"url"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// StorageConfig selects the state backend.
type StorageConfig struct {
	Driver     string `mapstructure:"driver"`
	Path       string `mapstructure:"path"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot destination.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ServerConfig configures the operational HTTP surface.
type ServerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Listen       string        `mapstructure:"listen"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MARGINWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

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
	resolveTelegramEnabled(v, &cfg)

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

// bindLegacyEnv keeps the plain variable names used by existing deployments working.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"alerting.telegram.bot_token": {"MARGINWATCH_ALERTING_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN"},
		"alerting.telegram.chat_id":   {"MARGINWATCH_ALERTING_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID"},
		"server.port":                 {"MARGINWATCH_SERVER_PORT", "PORT"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// resolveTelegramEnabled turns Telegram on when a token and chat id are both
// present, unless alerting.telegram.enabled is set explicitly.
func resolveTelegramEnabled(v *viper.Viper, cfg *Config) {
	tg := &cfg.Alerting.Telegram
	if v.Get("alerting.telegram.enabled") != nil {
		tg.Enabled = v.GetBool("alerting.telegram.enabled")
		return
	}
	tg.Enabled = tg.BotToken != "" && tg.ChatID != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "marginwatch")
	v.SetDefault("app.environment", "production")
	v.SetDefault("app.timezone", DefaultTimezone)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("schedule.morning_at", "10:00")
	v.SetDefault("schedule.afternoon_at", "14:00")
	v.SetDefault("schedule.recurring_interval", "5m")
	v.SetDefault("schedule.align_recurring", false)
	v.SetDefault("schedule.check_timeout", "30s")

	v.SetDefault("thresholds.low", 45.0)
	v.SetDefault("thresholds.high", 80.0)
	v.SetDefault("thresholds.high_inclusive", true)

	v.SetDefault("source.demo.enabled", false)
	v.SetDefault("source.demo.pattern", "82.7")
	v.SetDefault("source.http.timeout", "10s")
	v.SetDefault("source.http.user_agent", "marginwatch/1.0")

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.path", "margin_state.json")
	v.SetDefault("storage.sqlite_path", "margin_state.db")

	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.advisory_lock_key", int64(0x6d617267))

	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "15s")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen", "")
	v.SetDefault("server.port", "10000")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
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
	if _, _, err := ParseClock(c.Schedule.MorningAt); err != nil {
		return fmt.Errorf("schedule.morning_at: %w", err)
	}
	if _, _, err := ParseClock(c.Schedule.AfternoonAt); err != nil {
		return fmt.Errorf("schedule.afternoon_at: %w", err)
	}
	if c.Schedule.RecurringInterval <= 0 {
		return fmt.Errorf("schedule.recurring_interval must be greater than zero")
	}
	if c.Schedule.CheckTimeout <= 0 {
		return fmt.Errorf("schedule.check_timeout must be greater than zero")
	}
	if c.Thresholds.Low < 0 || c.Thresholds.High < 0 {
		return fmt.Errorf("thresholds cannot be negative")
	}
	if c.Thresholds.Low >= c.Thresholds.High {
		return fmt.Errorf("thresholds.low must be below thresholds.high")
	}
	switch c.Storage.Driver {
	case "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the file driver")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver %q not supported", c.Storage.Driver)
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

// Location resolves the configured timezone, falling back to a fixed UTC-3
// zone when the tz database is unavailable.
func (c *Config) Location() *time.Location {
	name := c.App.Timezone
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("-03", -3*60*60)
	}
	return loc
}

// ListenAddr returns server.listen, or ":<port>" when only a port is set.
func (s ServerConfig) ListenAddr() string {
	if s.Listen != "" {
		return s.Listen
	}
	return ":" + s.Port
}

// ParseClock parses an "HH:MM" wall-clock time.
func ParseClock(value string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock %q, expected HH:MM", value)
	}
	return t.Hour(), t.Minute(), nil
}
