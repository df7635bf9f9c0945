package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "SCREENER"

type Config struct {
	Env         string          `mapstructure:"env" validate:"oneof=development staging production"`
	ServiceName string          `mapstructure:"service_name" validate:"required"`
	Server      ServerConfig    `mapstructure:"server"`
	GRPC        GRPCConfig      `mapstructure:"grpc"`
	NATS        NATSConfig      `mapstructure:"nats"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Log         LogConfig       `mapstructure:"log"`
	Fleet       FleetConfig     `mapstructure:"fleet"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

// NATSConfig leaves the broker ingress off when URL is empty.
type NATSConfig struct {
	URL        string `mapstructure:"url"`
	Subject    string `mapstructure:"subject" validate:"required"`
	QueueGroup string `mapstructure:"queue_group"`
	Workers    int    `mapstructure:"workers" validate:"min=1"`
	// StatusSubject prefixes the subjects accepted status records are
	// published on; empty turns publishing off.
	StatusSubject string `mapstructure:"status_subject" validate:"omitempty,excludesall=*>"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"startswith=/"`
}

type TelemetryConfig struct {
	Exporter string `mapstructure:"exporter" validate:"oneof=none stdout otlp"`
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Exporter otlp"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"min=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"min=0"`
	Compress   bool   `mapstructure:"compress"`
}

type FleetConfig struct {
	Shards          int           `mapstructure:"shards" validate:"min=1"`
	StaleAfter      time.Duration `mapstructure:"stale_after" validate:"min=0"`
	SummarySchedule string        `mapstructure:"summary_schedule"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "production")
	v.SetDefault("service_name", "vps-screener")

	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("grpc.enabled", false)
	v.SetDefault("grpc.addr", ":50051")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "metrics.>")
	v.SetDefault("nats.queue_group", "vps-screener")
	v.SetDefault("nats.workers", 8)
	v.SetDefault("nats.status_subject", "status")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.endpoint", "")

	v.SetDefault("log.level", "")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("fleet.shards", 32)
	v.SetDefault("fleet.stale_after", 0)
	v.SetDefault("fleet.summary_schedule", "@every 1m")
}

// Load reads .env, the optional YAML file at path and SCREENER_* variables,
// in increasing order of precedence, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
