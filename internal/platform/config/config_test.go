package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "telegram:\n  token: abc\n")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.Telegram.Token)
	assert.Equal(t, ModePolling, cfg.Telegram.Mode)
	assert.Equal(t, 10*time.Second, cfg.Telegram.AnswerTimeout)
	assert.Equal(t, 1024, cfg.Telegram.QueueSize)
	assert.Equal(t, BackendSQL, cfg.Storage.Backend)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "stats.db", cfg.Database.DSN)
	assert.Equal(t, "statbot", cfg.Redis.KeyPrefix)
	assert.Equal(t, 30*time.Second, cfg.Health.Interval)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: abc
  mode: webhook
  webhookURL: https://example.com/telegram/webhook
  webhookSecret: s3cret
  answerTimeout: 5s
server:
  enabled: true
  address: ":9090"
  cors:
    allowedOrigins: ["https://dash.example.com"]
storage:
  backend: redis
redis:
  address: redis:6379
  db: 2
log:
  level: debug
  pretty: true
`)

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, ModeWebhook, cfg.Telegram.Mode)
	assert.Equal(t, "https://example.com/telegram/webhook", cfg.Telegram.WebhookURL)
	assert.Equal(t, 5*time.Second, cfg.Telegram.AnswerTimeout)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, []string{"https://dash.example.com"}, cfg.Server.Cors.AllowedOrigins)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "redis:6379", cfg.Redis.Address)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvAndOverrides(t *testing.T) {
	path := writeConfig(t, "telegram:\n  token: from-file\n")
	t.Setenv("STORAGE_BACKEND", "redis")
	t.Setenv("TELEGRAM_TOKEN", "from-env")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)

	cfg, err = LoadConfig(path, map[string]string{"telegram.token": "from-flag", "storage.backend": ""})
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Telegram.Token)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "abc", Mode: ModePolling},
			Storage:  StorageConfig{Backend: BackendSQL},
			Database: DatabaseConfig{Driver: DriverSQLite, DSN: "stats.db"},
			Redis:    RedisConfig{Address: "localhost:6379"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing token", func(c *Config) { c.Telegram.Token = "" }, true},
		{"unknown mode", func(c *Config) { c.Telegram.Mode = "carrier-pigeon" }, true},
		{"webhook without server", func(c *Config) {
			c.Telegram.Mode = ModeWebhook
			c.Telegram.WebhookSecret = "s"
		}, true},
		{"webhook without secret", func(c *Config) {
			c.Telegram.Mode = ModeWebhook
			c.Server.Enabled = true
		}, true},
		{"webhook with url generates secret", func(c *Config) {
			c.Telegram.Mode = ModeWebhook
			c.Telegram.WebhookURL = "https://example.com/telegram/webhook"
			c.Server.Enabled = true
		}, false},
		{"webhook", func(c *Config) {
			c.Telegram.Mode = ModeWebhook
			c.Telegram.WebhookSecret = "s"
			c.Server.Enabled = true
		}, false},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "csv" }, true},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, true},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, true},
		{"redis backend", func(c *Config) { c.Storage.Backend = BackendRedis }, false},
		{"redis without address", func(c *Config) {
			c.Storage.Backend = BackendRedis
			c.Redis.Address = ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	c := valid()
	c.Telegram.Token = ""
	assert.ErrorIs(t, c.Validate(), ErrMissingToken)
}
