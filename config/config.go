// Package config loads scheduler run configuration from YAML or JSON files,
// with optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/transitlab/stride/sched"
)

// Config is the root configuration of a scheduler run.
type Config struct {
	Scheduler SchedulerConfig `json:"scheduler"`
	Monitor   MonitorConfig   `json:"monitor"`
	Recording RecordingConfig `json:"recording"`
	Logging   LoggingConfig   `json:"logging"`
}

// SchedulerConfig carries the time-advancement parameters. Durations are
// expressed in seconds so the file format stays unit-free.
type SchedulerConfig struct {
	// StopTick is the simulation horizon in simulated seconds.
	StopTick int64 `json:"stop_tick"`
	// MaxWindow bounds how many ticks the scheduler may run ahead of the
	// oldest unacknowledged trigger.
	MaxWindow int64 `json:"max_window"`
	// StuckCheckSeconds is the period of the per-agent stuck sweep.
	StuckCheckSeconds int `json:"stuck_check_seconds"`
	// MarkStuckSeconds is the in-flight age beyond which a trigger counts
	// as stuck.
	MarkStuckSeconds int `json:"mark_stuck_seconds"`
	// StuckMaxRetries caps re-tracking of exempt triggers.
	StuckMaxRetries int `json:"stuck_max_retries"`
	// LivenessCheckSeconds is the period of the engine-wide stall check.
	LivenessCheckSeconds int `json:"liveness_check_seconds"`
	// StallSeconds is the wall-clock stall after which the run is aborted.
	StallSeconds int `json:"stall_seconds"`
	// ProgressSeconds is the period of the progress report log line.
	ProgressSeconds int `json:"progress_seconds"`
	// OutputDir receives state dumps on shutdown or fatal conditions.
	OutputDir string `json:"output_dir"`
}

// MonitorConfig controls the HTTP monitoring server.
type MonitorConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// RecordingConfig controls the sqlite trigger-event recorder.
type RecordingConfig struct {
	Enabled bool `json:"enabled"`
	// FileName is the database file name without the .sqlite3 extension.
	// Empty picks a unique generated name.
	FileName string `json:"file_name"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of zerolog's level names: debug, info, warn, error.
	Level string `json:"level"`
	// Console switches to human-readable console output.
	Console bool `json:"console"`
}

// Load reads the configuration file at path. The format follows the file
// extension. Environment variables prefixed with STRIDE_ override file
// values, with double underscores as section separators, so
// STRIDE_SCHEDULER__MAX_WINDOW=5 overrides scheduler.max_window.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider("STRIDE_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "stride_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults applies fallback values for optional fields.
func (c *Config) SetDefaults() {
	c.Scheduler.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks the configuration ranges.
func (c *Config) Validate() error {
	if err := c.Scheduler.Validate(); err != nil {
		return err
	}

	if err := c.Logging.Validate(); err != nil {
		return err
	}

	if c.Monitor.Enabled && c.Monitor.Port != 0 && c.Monitor.Port < 1000 {
		return fmt.Errorf("monitor port %d is reserved", c.Monitor.Port)
	}

	return nil
}

// SetDefaults fills unset scheduler parameters from the engine defaults.
func (c *SchedulerConfig) SetDefaults() {
	def := sched.DefaultConfig()

	if c.StopTick == 0 {
		c.StopTick = def.StopTick
	}
	if c.MaxWindow == 0 {
		c.MaxWindow = def.MaxWindow
	}
	if c.StuckCheckSeconds == 0 {
		c.StuckCheckSeconds = int(def.StuckCheckEvery / time.Second)
	}
	if c.MarkStuckSeconds == 0 {
		c.MarkStuckSeconds = int(def.MarkStuckAfter / time.Second)
	}
	if c.StuckMaxRetries == 0 {
		c.StuckMaxRetries = def.StuckMaxRetries
	}
	if c.LivenessCheckSeconds == 0 {
		c.LivenessCheckSeconds = int(def.LivenessCheckEvery / time.Second)
	}
	if c.StallSeconds == 0 {
		c.StallSeconds = int(def.StallAfter / time.Second)
	}
	if c.ProgressSeconds == 0 {
		c.ProgressSeconds = int(def.ProgressEvery / time.Second)
	}
	if c.OutputDir == "" {
		c.OutputDir = def.OutputDir
	}
}

// Validate checks the scheduler parameter ranges.
func (c SchedulerConfig) Validate() error {
	if c.StopTick < 0 {
		return fmt.Errorf("stop_tick cannot be negative")
	}

	if c.MaxWindow < 1 {
		return fmt.Errorf("max_window must be at least 1")
	}

	return nil
}

// EngineConfig converts the file representation into the engine parameters.
func (c SchedulerConfig) EngineConfig() sched.Config {
	return sched.Config{
		StopTick:           c.StopTick,
		MaxWindow:          c.MaxWindow,
		StuckCheckEvery:    time.Duration(c.StuckCheckSeconds) * time.Second,
		MarkStuckAfter:     time.Duration(c.MarkStuckSeconds) * time.Second,
		StuckMaxRetries:    c.StuckMaxRetries,
		LivenessCheckEvery: time.Duration(c.LivenessCheckSeconds) * time.Second,
		StallAfter:         time.Duration(c.StallSeconds) * time.Second,
		ProgressEvery:      time.Duration(c.ProgressSeconds) * time.Second,
		OutputDir:          c.OutputDir,
	}
}

// SetDefaults applies the default log level.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate checks the log level name.
func (c LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level %s", c.Level)
	}
}
