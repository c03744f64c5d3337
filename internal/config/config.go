// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token string `yaml:"token"`
}

type YooMoneyConfig struct {
	Token   string        `yaml:"token"`    // long-lived OAuth bearer token
	BaseURL string        `yaml:"base_url"` // https://yoomoney.ru
	Timeout time.Duration `yaml:"timeout"`  // per HTTP call
}

type PayoutConfig struct {
	Rate              string        `yaml:"rate"`          // currency units per reaction, decimal string
	MaxAttempts       int           `yaml:"max_attempts"`  // confirmation calls per payout
	PollInterval      time.Duration `yaml:"poll_interval"` // wait between confirmation calls
	Workers           int           `yaml:"workers"`
	QueueSize         int           `yaml:"queue_size"`
	LockTTL           time.Duration `yaml:"lock_ttl"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	MaxReactions      int64         `yaml:"max_reactions"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
	RateLimit int    `yaml:"rate_limit"` // payout requests per minute per caller
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	YooMoney YooMoneyConfig `yaml:"yoomoney"`
	Payout   PayoutConfig   `yaml:"payout"`
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	// Minimal validation
	if !dev {
		if cfg.Bot.Token == "" {
			return nil, errors.New("bot.token is required")
		}
		if cfg.YooMoney.Token == "" {
			return nil, errors.New("yoomoney.token is required")
		}
	}
	if cfg.Payout.Rate == "" {
		return nil, errors.New("payout.rate is required")
	}
	if cfg.Admin.JWTSecret == "" {
		return nil, errors.New("admin.jwt_secret is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.YooMoney.BaseURL == "" {
		cfg.YooMoney.BaseURL = "https://yoomoney.ru"
	}
	cfg.YooMoney.Timeout = orDuration(cfg.YooMoney.Timeout, 30*time.Second)

	if cfg.Payout.MaxAttempts <= 0 {
		cfg.Payout.MaxAttempts = 10
	}
	cfg.Payout.PollInterval = orDuration(cfg.Payout.PollInterval, time.Minute)
	if cfg.Payout.Workers <= 0 {
		cfg.Payout.Workers = 8
	}
	if cfg.Payout.QueueSize <= 0 {
		cfg.Payout.QueueSize = cfg.Payout.Workers * 4
	}
	// must outlive a full confirmation loop
	minLock := time.Duration(cfg.Payout.MaxAttempts+1)*cfg.Payout.PollInterval + 2*cfg.YooMoney.Timeout
	if cfg.Payout.LockTTL < minLock {
		cfg.Payout.LockTTL = minLock
	}
	cfg.Payout.StaleAfter = orDuration(cfg.Payout.StaleAfter, 10*time.Minute)
	cfg.Payout.ReconcileInterval = orDuration(cfg.Payout.ReconcileInterval, time.Minute)
	if cfg.Payout.MaxReactions <= 0 {
		cfg.Payout.MaxReactions = 1_000_000
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8080
	}
	if cfg.Admin.RateLimit <= 0 {
		cfg.Admin.RateLimit = 60
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
