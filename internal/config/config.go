// Package config loads server settings from the environment, an optional .env
// file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Port         string
	APIBaseURL   string
	DBPath       string
	SecureCookie bool
	SessionTTL   time.Duration
	APITimeout   time.Duration
	LoginRate    string
	LogLevel     string
	LogFormat    string
	StaticDir    string
}

// Load reads configuration. Precedence, highest first: environment, .env,
// configFile (if non-empty), defaults.
func Load(configFile string) (*Config, error) {
	// A missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("API_BASE_URL", "http://localhost:8000/api")
	v.SetDefault("DB_PATH", "wallet-web.db")
	v.SetDefault("SECURE_COOKIE", false)
	v.SetDefault("SESSION_TTL", "720h")
	v.SetDefault("API_TIMEOUT", "15s")
	v.SetDefault("LOGIN_RATE", "10-M")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("STATIC_DIR", "")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	v.AutomaticEnv()

	cfg := &Config{
		Port:         v.GetString("PORT"),
		APIBaseURL:   v.GetString("API_BASE_URL"),
		DBPath:       v.GetString("DB_PATH"),
		SecureCookie: v.GetBool("SECURE_COOKIE"),
		LoginRate:    v.GetString("LOGIN_RATE"),
		LogLevel:     strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:    strings.ToLower(v.GetString("LOG_FORMAT")),
		StaticDir:    v.GetString("STATIC_DIR"),
	}

	var err error
	if cfg.SessionTTL, err = time.ParseDuration(v.GetString("SESSION_TTL")); err != nil {
		return nil, fmt.Errorf("SESSION_TTL: %w", err)
	}
	if cfg.APITimeout, err = time.ParseDuration(v.GetString("API_TIMEOUT")); err != nil {
		return nil, fmt.Errorf("API_TIMEOUT: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("API_BASE_URL is required")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_BASE_URL %q is not an http(s) URL", c.APIBaseURL)
	}
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.APITimeout <= 0 {
		return errors.New("API_TIMEOUT must be positive")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT %q: want text or json", c.LogFormat)
	}
	return nil
}

// Logger builds the process logger described by LogLevel and LogFormat.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
