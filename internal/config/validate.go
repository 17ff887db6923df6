package config

import (
	"fmt"
	"strings"

	"github.com/meikuraledutech/pipeline"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a
// *ValidationError listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateStore(cfg, ve)
	validateLayout(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.Addr == "" {
		ve.Add("server.addr is required")
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	switch cfg.Store.Driver {
	case "postgres", "sqlite":
	default:
		ve.Add("store.driver %q must be postgres or sqlite", cfg.Store.Driver)
	}
	if cfg.Store.DSN == "" {
		ve.Add("store.dsn is required")
	}
}

func validateLayout(cfg *Config, ve *ValidationError) {
	p := cfg.Layout
	if p.StageSpacingPx != 0 && (p.StageSpacingPx < pipeline.MinStageSpacingPx || p.StageSpacingPx > pipeline.MaxStageSpacingPx) {
		ve.Add("layout.stage_spacing_px %v out of range [%d, %d]", p.StageSpacingPx, pipeline.MinStageSpacingPx, pipeline.MaxStageSpacingPx)
	}
	if p.AgentOffsetPx != 0 && (p.AgentOffsetPx < pipeline.MinAgentOffsetPx || p.AgentOffsetPx > pipeline.MaxAgentOffsetPx) {
		ve.Add("layout.agent_offset_px %v out of range [%d, %d]", p.AgentOffsetPx, pipeline.MinAgentOffsetPx, pipeline.MaxAgentOffsetPx)
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q must be text or json", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter %q must be stdout or noop", cfg.Tracer.Exporter)
	}
}
