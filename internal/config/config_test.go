package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "10:00", cfg.Schedule.MorningAt)
	assert.Equal(t, "14:00", cfg.Schedule.AfternoonAt)
	assert.Equal(t, 5*time.Minute, cfg.Schedule.RecurringInterval)
	assert.Equal(t, 45.0, cfg.Thresholds.Low)
	assert.Equal(t, 80.0, cfg.Thresholds.High)
	assert.True(t, cfg.Thresholds.HighInclusive)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, "margin_state.json", cfg.Storage.Path)
	assert.Equal(t, DefaultTimezone, cfg.App.Timezone)
	assert.Equal(t, 15*time.Second, cfg.Alerting.Telegram.Timeout)
	assert.Equal(t, ":10000", cfg.Server.ListenAddr())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
schedule:
  morning_at: "09:30"
  recurring_interval: 2m
thresholds:
  high: 75
  high_inclusive: false
source:
  demo:
    enabled: true
    pattern: "40,82.5"
storage:
  driver: sqlite
  sqlite_path: /tmp/state.db
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "09:30", cfg.Schedule.MorningAt)
	assert.Equal(t, 2*time.Minute, cfg.Schedule.RecurringInterval)
	assert.Equal(t, 75.0, cfg.Thresholds.High)
	assert.False(t, cfg.Thresholds.HighInclusive)
	assert.True(t, cfg.Source.Demo.Enabled)
	assert.Equal(t, "40,82.5", cfg.Source.Demo.Pattern)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MARGINWATCH_THRESHOLDS_LOW", "50")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("TELEGRAM_CHAT_ID", "chat")
	t.Setenv("MARGINWATCH_ALERTING_TELEGRAM_ENABLED", "true")
	t.Setenv("PORT", "8081")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 50.0, cfg.Thresholds.Low)
	assert.True(t, cfg.Alerting.Telegram.Enabled)
	assert.Equal(t, "token", cfg.Alerting.Telegram.BotToken)
	assert.Equal(t, "chat", cfg.Alerting.Telegram.ChatID)
	assert.Equal(t, ":8081", cfg.Server.ListenAddr())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Schedule: ScheduleConfig{
				MorningAt:         "10:00",
				AfternoonAt:       "14:00",
				RecurringInterval: 5 * time.Minute,
				CheckTimeout:      30 * time.Second,
			},
			Thresholds: ThresholdsConfig{Low: 45, High: 80},
			Storage:    StorageConfig{Driver: "file", Path: "state.json"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad clock", mutate: func(c *Config) { c.Schedule.MorningAt = "25:00" }, wantErr: true},
		{name: "zero interval", mutate: func(c *Config) { c.Schedule.RecurringInterval = 0 }, wantErr: true},
		{name: "inverted bands", mutate: func(c *Config) { c.Thresholds.Low = 90 }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "redis" }, wantErr: true},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Driver = "postgres" }, wantErr: true},
		{name: "telegram without token", mutate: func(c *Config) { c.Alerting.Telegram.Enabled = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock(" 14:05 ")
	require.NoError(t, err)
	assert.Equal(t, 14, h)
	assert.Equal(t, 5, m)

	_, _, err = ParseClock("2pm")
	assert.Error(t, err)
}

func TestLocationFallback(t *testing.T) {
	cfg := &Config{App: AppConfig{Timezone: "Nowhere/Invalid"}}
	loc := cfg.Location()
	_, offset := time.Date(2026, 1, 1, 12, 0, 0, 0, loc).Zone()
	assert.Equal(t, -3*60*60, offset)
}

func TestLegacyTelegramEnvEnablesTelegram(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Alerting.Telegram.Enabled)
	assert.Equal(t, "123:abc", cfg.Alerting.Telegram.BotToken)
	assert.Equal(t, "42", cfg.Alerting.Telegram.ChatID)
}

func TestTelegramExplicitlyDisabled(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("MARGINWATCH_ALERTING_TELEGRAM_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Alerting.Telegram.Enabled)
}

func TestTelegramNeedsBothCredentials(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Alerting.Telegram.Enabled)
}

// chdir mirrors testing.T.Chdir (Go 1.24+): it switches the working directory
// for the duration of the test and restores it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
