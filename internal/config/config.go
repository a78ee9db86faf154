// Package config loads application configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	JWT      JWTConfig      `koanf:"jwt"`
	Digest   DigestConfig   `koanf:"digest"`
	Email    EmailConfig    `koanf:"email"`
	Branding BrandingConfig `koanf:"branding"`
	CORS     CORSConfig     `koanf:"cors"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// JWTConfig contains token settings for the operator API.
type JWTConfig struct {
	SecretKey           string        `koanf:"secret_key"`
	AccessTokenDuration time.Duration `koanf:"access_token_duration"`
}

// DigestConfig contains queue and dispatch settings.
type DigestConfig struct {
	// DebounceWindow is how long an entry accumulates events before it
	// becomes due.
	DebounceWindow time.Duration `koanf:"debounce_window"`
	// CronSpec is the dispatch schedule in standard cron format.
	CronSpec  string `koanf:"cron_spec"`
	BatchSize int    `koanf:"batch_size"`
	// StaleClaimAfter is how long a processing entry may sit untouched
	// before a later run reclaims it.
	StaleClaimAfter time.Duration `koanf:"stale_claim_after"`
	Retry           RetryConfig   `koanf:"retry"`
}

// RetryConfig contains transient failure retry settings.
type RetryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// EmailConfig contains SMTP delivery settings.
type EmailConfig struct {
	Enabled      bool          `koanf:"enabled"`
	SMTPHost     string        `koanf:"smtp_host"`
	SMTPPort     int           `koanf:"smtp_port"`
	SMTPUser     string        `koanf:"smtp_user"`
	SMTPPassword string        `koanf:"smtp_password"`
	FromAddress  string        `koanf:"from_address"`
	RateLimit    float64       `koanf:"rate_limit"`
	SendTimeout  time.Duration `koanf:"send_timeout"`
}

// BrandingConfig contains fallback branding used when a queue entry has no
// agency record.
type BrandingConfig struct {
	AgencyName     string `koanf:"agency_name"`
	ContactEmail   string `koanf:"contact_email"`
	ContactPhone   string `koanf:"contact_phone"`
	PreferencesURL string `koanf:"preferences_url"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// envPrefix namespaces environment overrides, e.g. APP_DATABASE__URL maps
// to database.url.
const envPrefix = "APP_"

// Load reads configuration from the given YAML file, then applies
// environment variable overrides. A missing file is not an error; the
// defaults plus environment are used.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment overrides: %w", err)
	}

	cfg := defaults()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			AccessTokenDuration: 15 * time.Minute,
		},
		Digest: DigestConfig{
			DebounceWindow:  5 * time.Minute,
			CronSpec:        "*/5 * * * *",
			BatchSize:       100,
			StaleClaimAfter: 15 * time.Minute,
			Retry: RetryConfig{
				MaxAttempts:       3,
				InitialBackoff:    time.Minute,
				MaxBackoff:        30 * time.Minute,
				BackoffMultiplier: 2.0,
			},
		},
		Email: EmailConfig{
			SMTPPort:    587,
			RateLimit:   5,
			SendTimeout: 15 * time.Second,
		},
		Branding: BrandingConfig{
			AgencyName: "Your Staffing Agency",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{},
		},
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return errors.New("config: database.url is required")
	}
	if c.JWT.SecretKey == "" {
		return errors.New("config: jwt.secret_key is required")
	}
	return nil
}
