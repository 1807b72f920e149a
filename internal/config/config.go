// Package config loads application configuration from a YAML file and
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the prefix for environment overrides, e.g.
// SOS_SERVER__PORT=8080 maps to server.port.
const envPrefix = "SOS_"

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	CORS          CORSConfig          `koanf:"cors"`
	Escalation    EscalationConfig    `koanf:"escalation"`
	Clusters      ClustersConfig      `koanf:"clusters"`
	Disasters     DisastersConfig     `koanf:"disasters"`
	Notifications NotificationsConfig `koanf:"notifications"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required"`
	MetricsPort       string        `koanf:"metrics_port" validate:"required"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// CORSConfig contains CORS settings for the dashboard.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// EscalationConfig contains escalation engine and scheduler settings.
type EscalationConfig struct {
	SchedulerEnabled bool          `koanf:"scheduler_enabled"`
	Interval         time.Duration `koanf:"interval" validate:"gt=0"`
	FirstAfter       time.Duration `koanf:"first_after" validate:"gt=0"`
	SecondAfter      time.Duration `koanf:"second_after" validate:"gtfield=FirstAfter"`
	CriticalAfter    time.Duration `koanf:"critical_after" validate:"gtfield=SecondAfter"`
	QueryTimeout     time.Duration `koanf:"query_timeout" validate:"gt=0"`
}

// ClustersConfig contains cluster detection settings.
type ClustersConfig struct {
	DefaultRadiusKM float64 `koanf:"default_radius_km" validate:"gt=0"`
}

// DisastersConfig contains disaster synthesis settings.
type DisastersConfig struct {
	RadiusKM          float64       `koanf:"radius_km" validate:"gt=0"`
	Lookback          time.Duration `koanf:"lookback" validate:"gt=0"`
	MinNearbySignals  int           `koanf:"min_nearby_signals" validate:"gt=0"`
	HighSeverityTotal int           `koanf:"high_severity_total" validate:"gt=0"`
}

// NotificationsConfig contains notification sink settings.
type NotificationsConfig struct {
	Enabled bool          `koanf:"enabled"`
	Webhook WebhookConfig `koanf:"webhook"`
}

// WebhookConfig contains webhook sender settings.
type WebhookConfig struct {
	URL       string        `koanf:"url"`
	Username  string        `koanf:"username"`
	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit"`
}

// Default returns the configuration defaults applied before file and
// environment overrides.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
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
		Escalation: EscalationConfig{
			SchedulerEnabled: true,
			Interval:         5 * time.Minute,
			FirstAfter:       15 * time.Minute,
			SecondAfter:      30 * time.Minute,
			CriticalAfter:    45 * time.Minute,
			QueryTimeout:     10 * time.Second,
		},
		Clusters: ClustersConfig{
			DefaultRadiusKM: 2,
		},
		Disasters: DisastersConfig{
			RadiusKM:          2,
			Lookback:          2 * time.Hour,
			MinNearbySignals:  2,
			HighSeverityTotal: 5,
		},
		Notifications: NotificationsConfig{
			Webhook: WebhookConfig{
				Timeout:   10 * time.Second,
				RateLimit: 1,
			},
		},
	}
}

// Load reads configuration from the optional YAML file at path, applies
// SOS_-prefixed environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// envToKey maps SOS_SERVER__METRICS_PORT to server.metrics_port: the
// double underscore separates nesting levels, single underscores stay
// part of the key.
func envToKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
