package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Auth struct {
		Issuer   string        `yaml:"issuer"`
		Audience string        `yaml:"audience"`
		TokenTTL time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
	Security struct {
		TokenSigningKey string `yaml:"token_signing_key"`
	} `yaml:"security"`
	Subscription struct {
		TrialDays int `yaml:"trial_days"`
	} `yaml:"subscription"`
	Cache struct {
		UserTTL time.Duration `yaml:"user_ttl"`
	} `yaml:"cache"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func Default() Config {
	var cfg Config
	cfg.HTTP.Addr = ":8090"
	cfg.Auth.Issuer = "rentgate"
	cfg.Auth.TokenTTL = 24 * time.Hour
	cfg.Subscription.TrialDays = 7
	cfg.Cache.UserTTL = 30 * time.Second
	cfg.Log.Level = "info"
	return cfg
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, err
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// Validate checks startup-time requirements. A missing signing key is a
// fatal configuration error, never a per-request one.
func (c Config) Validate() error {
	if c.Security.TokenSigningKey == "" {
		return errors.New("missing security.token_signing_key (or RG_TOKEN_SIGNING_KEY)")
	}
	if c.Database.DSN == "" {
		return errors.New("missing database.dsn (or RG_DB_DSN)")
	}
	if c.Subscription.TrialDays <= 0 {
		return errors.New("subscription.trial_days must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("RG_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("RG_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("RG_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("RG_AUTH_ISSUER"); v != "" {
		cfg.Auth.Issuer = v
	}
	if v := os.Getenv("RG_AUTH_AUDIENCE"); v != "" {
		cfg.Auth.Audience = v
	}
	if v := os.Getenv("RG_AUTH_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.TokenTTL = d
		}
	}
	if v := os.Getenv("RG_TOKEN_SIGNING_KEY"); v != "" {
		cfg.Security.TokenSigningKey = v
	}
	if v := os.Getenv("RG_TRIAL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Subscription.TrialDays = n
		}
	}
	if v := os.Getenv("RG_CACHE_USER_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.UserTTL = d
		}
	}
	if v := os.Getenv("RG_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
