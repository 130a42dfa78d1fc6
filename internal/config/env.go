// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"extlayer/internal/extension"
	"extlayer/internal/hostsim"
	"extlayer/internal/observability"
	"extlayer/logging"
)

// Config is the full process configuration.
type Config struct {
	Strict            bool   `env:"EXTLAYER_STRICT" envDefault:"false"`
	MaxRecordsPerKind int    `env:"EXTLAYER_MAX_RECORDS_PER_KIND" envDefault:"0"`
	MaxLights         int    `env:"EXTLAYER_MAX_LIGHTS" envDefault:"0"`
	Seed              string `env:"EXTLAYER_SEED" envDefault:"extlayer"`
	DumpDir           string `env:"EXTLAYER_DUMP_DIR" envDefault:"dumps"`

	LogSinks       []string `env:"EXTLAYER_LOG_SINKS" envDefault:"console" envSeparator:","`
	LogJSONPath    string   `env:"EXTLAYER_LOG_JSON_PATH" envDefault:"extlayer-events.jsonl"`
	LogMinSeverity string   `env:"EXTLAYER_LOG_MIN_SEVERITY" envDefault:"info"`

	SaveDB        string        `env:"EXTLAYER_SAVE_DB" envDefault:"extlayer-saves.db"`
	DiagAddr      string        `env:"EXTLAYER_DIAG_ADDR" envDefault:"127.0.0.1:8089"`
	FrameInterval time.Duration `env:"EXTLAYER_FRAME_INTERVAL" envDefault:"100ms"`
	OTelEndpoint  string        `env:"EXTLAYER_OTEL_ENDPOINT"`
	Pprof         bool          `env:"EXTLAYER_PPROF" envDefault:"false"`
}

// Sink names accepted in EXTLAYER_LOG_SINKS.
const (
	SinkConsole = "console"
	SinkJSON    = "json"
)

var errInvalid = errors.New("invalid configuration")

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the process configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if c.MaxRecordsPerKind < 0 {
		return fmt.Errorf("%w: EXTLAYER_MAX_RECORDS_PER_KIND must not be negative", errInvalid)
	}
	if c.MaxLights < 0 {
		return fmt.Errorf("%w: EXTLAYER_MAX_LIGHTS must not be negative", errInvalid)
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("%w: EXTLAYER_FRAME_INTERVAL must be positive", errInvalid)
	}
	for _, sink := range c.LogSinks {
		switch strings.TrimSpace(sink) {
		case SinkConsole, SinkJSON:
		default:
			return fmt.Errorf("%w: unknown log sink %q", errInvalid, sink)
		}
	}
	if _, err := logging.ParseSeverity(c.LogMinSeverity); err != nil {
		return fmt.Errorf("%w: %w", errInvalid, err)
	}
	return nil
}

// Extension returns the manager configuration.
func (c Config) Extension() extension.Config {
	return extension.Config{
		Strict:            c.Strict,
		MaxRecordsPerKind: c.MaxRecordsPerKind,
	}
}

// World returns the simulated host configuration.
func (c Config) World() hostsim.Config {
	return hostsim.Config{
		Seed:      c.Seed,
		Extension: c.Extension(),
		MaxLights: c.MaxLights,
	}
}

// Observability returns the opt-in debugging toggles.
func (c Config) Observability() observability.Config {
	return observability.Config{EnablePprof: c.Pprof}
}

// Logging returns the event router configuration.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = nil
	for _, sink := range c.LogSinks {
		if name := strings.TrimSpace(sink); name != "" {
			cfg.EnabledSinks = append(cfg.EnabledSinks, name)
		}
	}
	if severity, err := logging.ParseSeverity(c.LogMinSeverity); err == nil {
		cfg.MinimumSeverity = severity
	}
	cfg.JSON.FilePath = c.LogJSONPath
	return cfg
}
