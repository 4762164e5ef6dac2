package util

import (
	"errors"
	"os"
	"time"

	"gopkg.in/ini.v1"
)

type Config struct {
	StoreTimeout       time.Duration // bounds each store call
	AdminReview        bool          // admins may review, not only author
	SessionIdleTimeout time.Duration
	SessionLifetime    time.Duration
	CookieSecure       bool
}

func DefaultConfig() *Config {
	return &Config{
		StoreTimeout:       5 * time.Second,
		AdminReview:        false,
		SessionIdleTimeout: 12 * time.Hour,
		SessionLifetime:    30 * 24 * time.Hour,
		CookieSecure:       false,
	}
}

// LoadConfig reads the default section of an ini file. A missing file yields the default config.
func LoadConfig(filename string) (*Config, error) {

	var config = DefaultConfig()

	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return config, nil
	}

	cfg, err := ini.Load(filename)
	if err != nil {
		return nil, err
	}

	var section = cfg.Section("")
	config.StoreTimeout = section.Key("store_timeout").MustDuration(config.StoreTimeout)
	config.AdminReview = section.Key("admin_review").MustBool(config.AdminReview)
	config.SessionIdleTimeout = section.Key("session_idle_timeout").MustDuration(config.SessionIdleTimeout)
	config.SessionLifetime = section.Key("session_lifetime").MustDuration(config.SessionLifetime)
	config.CookieSecure = section.Key("cookie_secure").MustBool(config.CookieSecure)

	if config.StoreTimeout <= 0 {
		return nil, errors.New("store_timeout must be positive")
	}
	return config, nil
}
