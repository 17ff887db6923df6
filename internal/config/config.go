package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/meikuraledutech/pipeline"
)

// Config is the top-level server configuration.
type Config struct {
	Server ServerConfig          `yaml:"server"`
	Store  StoreConfig           `yaml:"store"`
	Layout pipeline.LayoutParams `yaml:"layout"`
	Logger LoggerConfig          `yaml:"logger"`
	Tracer TracerConfig          `yaml:"tracer"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "postgres" or "sqlite"
	DSN    string `yaml:"dsn"`
}

// LoggerConfig holds slog settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig holds OpenTelemetry settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout, noop
}

// Defaults returns a config that runs against a local SQLite file.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":3000"},
		Store:  StoreConfig{Driver: "sqlite", DSN: "pipeline.db"},
		Layout: pipeline.DefaultLayout(),
		Logger: LoggerConfig{Level: "info", Format: "text", Output: "stderr"},
		Tracer: TracerConfig{Exporter: "noop"},
	}
}

// Load reads a YAML config file and applies env var overrides.
// A missing file is not an error; defaults and env vars still apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps DATABASE_URL and PIPELINE_* env vars to config fields.
// DATABASE_URL implies the postgres driver.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.Driver = "postgres"
		cfg.Store.DSN = v
	}
	if v := os.Getenv("PIPELINE_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("PIPELINE_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("PIPELINE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PIPELINE_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("PIPELINE_LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("PIPELINE_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("PIPELINE_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("PIPELINE_STAGE_SPACING_PX"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Layout.StageSpacingPx = f
		}
	}
	if v := os.Getenv("PIPELINE_AGENT_OFFSET_PX"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Layout.AgentOffsetPx = f
		}
	}
}
