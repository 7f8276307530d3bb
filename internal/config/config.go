package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Sweeper    SweeperConfig    `mapstructure:"sweeper"`
	Transports TransportsConfig `mapstructure:"transports"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	SiteURL string `mapstructure:"site_url"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`

	// MaxPingBodySize caps how much of a ping request body gets stored.
	MaxPingBodySize int64 `mapstructure:"max_ping_body_size"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SweeperConfig struct {
	// Interval is the cron spec that fires the deadline sweep.
	Interval string `mapstructure:"interval"`

	// BatchSize caps how many due checks one sweep pass handles.
	BatchSize int `mapstructure:"batch_size"`

	Workers int `mapstructure:"workers"`

	// MetricsPort exposes Prometheus metrics for the sweeper process.
	// Zero disables the listener.
	MetricsPort int `mapstructure:"metrics_port"`

	// PingRetention and FlipRetention bound how long history is kept.
	PingRetention time.Duration `mapstructure:"ping_retention"`
	FlipRetention time.Duration `mapstructure:"flip_retention"`
}

type TransportsConfig struct {
	Email    EmailConfig    `mapstructure:"email"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Signal   SignalConfig   `mapstructure:"signal"`
	Twilio   TwilioConfig   `mapstructure:"twilio"`
	Pushover PushoverConfig `mapstructure:"pushover"`
	Matrix   MatrixConfig   `mapstructure:"matrix"`
	Trello   TrelloConfig   `mapstructure:"trello"`
}

type EmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

func (c *EmailConfig) Enabled() bool { return c.Host != "" }

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`

	// Proxy is an optional socks5://host:port URL for outbound API calls.
	Proxy string `mapstructure:"proxy"`
}

func (c *TelegramConfig) Enabled() bool { return c.BotToken != "" }

type SignalConfig struct {
	// Socket is "unix:///path" or "tcp://host:port" for signal-cli.
	Socket string `mapstructure:"socket"`

	// AdminEmail receives CAPTCHA-required alerts from signal-cli.
	AdminEmail string `mapstructure:"admin_email"`
}

func (c *SignalConfig) Enabled() bool { return c.Socket != "" }

type TwilioConfig struct {
	AccountSID   string `mapstructure:"account_sid"`
	AuthToken    string `mapstructure:"auth_token"`
	FromNumber   string `mapstructure:"from_number"`
	MessagingSID string `mapstructure:"messaging_sid"`
}

func (c *TwilioConfig) Enabled() bool { return c.AccountSID != "" }

type PushoverConfig struct {
	APIToken string `mapstructure:"api_token"`
}

func (c *PushoverConfig) Enabled() bool { return c.APIToken != "" }

type MatrixConfig struct {
	Homeserver  string `mapstructure:"homeserver"`
	AccessToken string `mapstructure:"access_token"`
}

func (c *MatrixConfig) Enabled() bool { return c.Homeserver != "" }

type TrelloConfig struct {
	AppKey string `mapstructure:"app_key"`
}

func (c *TrelloConfig) Enabled() bool { return c.AppKey != "" }

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var errViper viper.ConfigFileNotFoundError
		if errors.As(err, &errViper) {
			slog.Warn("config file not found, using defaults")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config, %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed, %w", err)
	}

	slog.Info("configuration loaded successfully")
	return &config, nil
}

func setDefaults() {
	viper.SetDefault("app.name", "pulsekeep")
	viper.SetDefault("app.site_url", "http://localhost:8080")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.max_ping_body_size", 10000)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "pulsekeep")
	viper.SetDefault("database.password", "pulsekeep")
	viper.SetDefault("database.dbname", "pulsekeep")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_conns", 10)

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	viper.SetDefault("sweeper.interval", "* * * * *")
	viper.SetDefault("sweeper.batch_size", 500)
	viper.SetDefault("sweeper.workers", 4)
	viper.SetDefault("sweeper.metrics_port", 9091)
	viper.SetDefault("sweeper.ping_retention", "2400h")
	viper.SetDefault("sweeper.flip_retention", "8760h")
}

func validateConfig(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}

	if cfg.Server.Mode != "debug" && cfg.Server.Mode != "release" {
		return fmt.Errorf("invalid server mode %s", cfg.Server.Mode)
	}

	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}

	if cfg.Database.DBName == "" {
		return fmt.Errorf("database name is required")
	}

	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if cfg.Sweeper.Workers < 1 {
		return fmt.Errorf("sweeper needs at least one worker")
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// Options returns the Redis client settings.
func (r *RedisConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:            r.Addr,
		Password:        r.Password,
		DB:              r.DB,
		DisableIdentity: true,
	}
}
