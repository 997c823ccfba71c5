package server

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/viper"
)

// Conf holds the server settings. Flags are bound into it by cmd.go and
// DOCGATE_* environment variables override the defaults.
var Conf = viper.New()

type Config struct {
	Listen       string
	StatsListen  string
	Store        string
	PebblePath   string
	PDEndpoints  []string
	Bus          string
	NatsURL      string
	NatsPort     int
	OtelEndpoint string
	SchemaTTL    time.Duration
	LogLevel     slog.Level
}

func init() {
	setDefaults(Conf)
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("listen", ":5052")
	v.SetDefault("stats-listen", ":27667")
	v.SetDefault("store", "pebble")
	v.SetDefault("pebble-path", "pebble-db")
	v.SetDefault("pd-endpoint", []string{})
	v.SetDefault("bus", "solo")
	v.SetDefault("nats-url", "nats://127.0.0.1:4222")
	v.SetDefault("nats-port", 4222)
	v.SetDefault("otel-endpoint", "")
	v.SetDefault("schema-ttl", 60*time.Second)
	v.SetDefault("log-level", "info")

	v.SetEnvPrefix("DOCGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// loadDotEnv reads path into the environment if it exists. Variables that
// are already set win.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// LoadConfig resolves the settings from v. PD_ENDPOINT and
// OTEL_EXPORTER_OTLP_ENDPOINT are honoured when the DOCGATE_ ones are unset.
func LoadConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Listen:       v.GetString("listen"),
		StatsListen:  v.GetString("stats-listen"),
		Store:        v.GetString("store"),
		PebblePath:   v.GetString("pebble-path"),
		PDEndpoints:  v.GetStringSlice("pd-endpoint"),
		Bus:          v.GetString("bus"),
		NatsURL:      v.GetString("nats-url"),
		NatsPort:     v.GetInt("nats-port"),
		OtelEndpoint: v.GetString("otel-endpoint"),
		SchemaTTL:    v.GetDuration("schema-ttl"),
	}

	if len(cfg.PDEndpoints) == 0 {
		if ep := os.Getenv("PD_ENDPOINT"); ep != "" {
			cfg.PDEndpoints = strings.Split(ep, ",")
		}
	}
	if cfg.OtelEndpoint == "" {
		cfg.OtelEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	switch cfg.Store {
	case "pebble", "memory", "tikv":
	default:
		return nil, fmt.Errorf("config: unknown store %q", cfg.Store)
	}
	switch cfg.Bus {
	case "solo", "nats", "embedded":
	default:
		return nil, fmt.Errorf("config: unknown bus %q", cfg.Bus)
	}
	if cfg.SchemaTTL <= 0 {
		return nil, fmt.Errorf("config: schema-ttl must be positive")
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		return nil, fmt.Errorf("config: log-level: %w", err)
	}
	return cfg, nil
}

func (c *Config) Logger() *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      c.LogLevel,
		TimeFormat: time.Kitchen,
	}))
}
