package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingToken 表示没有配置Telegram机器人令牌
var ErrMissingToken = errors.New("telegram.token 未配置")

const (
	ModePolling = "polling"
	ModeWebhook = "webhook"

	BackendSQL   = "sql"
	BackendRedis = "redis"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config 结构体定义了应用程序的所有配置项
// 它与 config.yaml 文件的结构完全对应
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Health   HealthConfig   `mapstructure:"health"`
}

// TelegramConfig 定义了机器人接入相关的配置
type TelegramConfig struct {
	Token         string        `mapstructure:"token"`
	Mode          string        `mapstructure:"mode"`
	WebhookURL    string        `mapstructure:"webhookURL"`
	WebhookSecret string        `mapstructure:"webhookSecret"`
	AnswerTimeout time.Duration `mapstructure:"answerTimeout"`
	QueueSize     int           `mapstructure:"queueSize"`
}

// ServerConfig 定义了HTTP服务器相关的配置
type ServerConfig struct {
	Enabled bool       `mapstructure:"enabled"`
	Mode    string     `mapstructure:"mode"`
	Address string     `mapstructure:"address"`
	Cors    CorsConfig `mapstructure:"cors"`
}

// CorsConfig 定义了CORS相关的配置
type CorsConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// StorageConfig 选择统计数据的存储后端
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

// DatabaseConfig 定义了SQL后端的连接参数
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig 定义了Redis的配置
type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"keyPrefix"`
}

// LogConfig 定义了日志级别和输出格式
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// HealthConfig 定义了存储健康检查的间隔
type HealthConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.mode", ModePolling)
	v.SetDefault("telegram.webhookURL", "")
	v.SetDefault("telegram.webhookSecret", "")
	v.SetDefault("telegram.answerTimeout", 10*time.Second)
	v.SetDefault("telegram.queueSize", 1024)

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.cors.allowedOrigins", []string{})

	v.SetDefault("storage.backend", BackendSQL)

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "stats.db")

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.keyPrefix", "statbot")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("health.interval", 30*time.Second)
}

// LoadConfig 函数负责查找、加载和解析配置
// path 为空时在 ./config 和 . 中查找 config.yaml；找不到文件时只使用默认值和环境变量。
// overrides 中的非空值优先级最高，用于命令行参数。
func LoadConfig(path string, overrides map[string]string) (*Config, error) {
	// .env 文件中的变量会进入进程环境，再由 AutomaticEnv 读取
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("无法加载 .env 文件: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// 允许通过环境变量覆盖配置，例如 TELEGRAM_TOKEN、STORAGE_BACKEND
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("无法读取配置文件: %w", err)
		}
	}

	for key, value := range overrides {
		if value != "" {
			v.Set(key, value)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法解析配置: %w", err)
	}
	return &cfg, nil
}

// Validate 检查运行机器人所需的配置。离线命令只需要存储配置，不调用 Validate。
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return ErrMissingToken
	}
	switch c.Telegram.Mode {
	case ModePolling:
	case ModeWebhook:
		if !c.Server.Enabled {
			return errors.New("webhook 模式需要启用 server.enabled")
		}
		// 自动注册Webhook时可以在启动时生成密钥，否则必须与外部注册时使用的密钥一致
		if c.Telegram.WebhookSecret == "" && c.Telegram.WebhookURL == "" {
			return errors.New("webhook 模式需要配置 telegram.webhookURL 或 telegram.webhookSecret")
		}
	default:
		return fmt.Errorf("未知的 telegram.mode: %q", c.Telegram.Mode)
	}
	return c.ValidateStorage()
}

// ValidateStorage 只检查存储相关的配置
func (c *Config) ValidateStorage() error {
	switch c.Storage.Backend {
	case BackendSQL:
		switch c.Database.Driver {
		case DriverSQLite, DriverPostgres:
		default:
			return fmt.Errorf("未知的 database.driver: %q", c.Database.Driver)
		}
		if c.Database.DSN == "" {
			return errors.New("database.dsn 不能为空")
		}
	case BackendRedis:
		if c.Redis.Address == "" {
			return errors.New("redis.address 不能为空")
		}
	default:
		return fmt.Errorf("未知的 storage.backend: %q", c.Storage.Backend)
	}
	return nil
}
