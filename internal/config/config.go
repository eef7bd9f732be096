// Package config handles configuration file loading, validation, and
// conversion into monitor options.
//
// Every field has a default from the top-level config package, so an
// empty or partial file is valid.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	defaults "github.com/elaiviaien/smaug/config"
	"github.com/elaiviaien/smaug/internal/constants"
	"github.com/elaiviaien/smaug/internal/errors"
	"github.com/elaiviaien/smaug/internal/logging"
	"github.com/elaiviaien/smaug/internal/monitor"
	"github.com/elaiviaien/smaug/internal/storage"
	"github.com/elaiviaien/smaug/internal/storage/wal"
)

// =============================================================================
// Types
// =============================================================================

// Config is the root configuration.
type Config struct {
	Sampling SamplingConfig `yaml:"sampling"`
	Storage  StorageConfig  `yaml:"storage"`
	Target   TargetConfig   `yaml:"target"`
	Display  DisplayConfig  `yaml:"display"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SamplingConfig controls the continuous samplers.
type SamplingConfig struct {
	Tick      time.Duration `yaml:"tick"`
	CPUWindow time.Duration `yaml:"cpu_window"`
}

// StorageConfig controls the per-metric stores.
type StorageConfig struct {
	// Backend is "file" or "memory".
	Backend string `yaml:"backend"`

	// Dir holds session directories. Empty uses the system temp dir.
	Dir string `yaml:"dir"`

	// MaxSize bounds each metric's store, e.g. "1000KB".
	MaxSize datasize.ByteSize `yaml:"max_size"`

	EvictRatio   float64       `yaml:"evict_ratio"`
	RetentionAge time.Duration `yaml:"retention_age"`

	// SyncMode is "fsync" or "flush".
	SyncMode string `yaml:"sync_mode"`
}

// TargetConfig selects what is watched.
type TargetConfig struct {
	// Path of the application measured for app_size.
	Path     string `yaml:"path"`
	PID      int32  `yaml:"pid"`
	DiskPath string `yaml:"disk_path"`
}

// DisplayConfig controls the CLI output.
type DisplayConfig struct {
	Interval time.Duration `yaml:"interval"`
	JSON     bool          `yaml:"json"`
}

// ShutdownConfig bounds teardown.
type ShutdownConfig struct {
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return &Config{
		Sampling: SamplingConfig{
			Tick:      defaults.DefaultTickInterval,
			CPUWindow: defaults.DefaultCPUWindow,
		},
		Storage: StorageConfig{
			Backend:      defaults.DefaultBackend,
			MaxSize:      datasize.ByteSize(defaults.DefaultStoreMaxSize),
			EvictRatio:   defaults.DefaultEvictRatio,
			RetentionAge: defaults.DefaultRetentionAge,
			SyncMode:     wal.SyncModeFsync,
		},
		Target: TargetConfig{
			DiskPath: defaults.DefaultDiskPath,
		},
		Display: DisplayConfig{
			Interval: defaults.DefaultSnapshotInterval,
		},
		Shutdown: ShutdownConfig{
			StopTimeout: defaults.DefaultStopTimeout,
		},
		Logging: LoggingConfig{
			Level: defaults.DefaultLogLevel,
		},
	}
}

// =============================================================================
// Load
// =============================================================================

// Load reads a YAML file over the defaults. Environment variables in the
// file are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	errs := errors.NewValidationErrors()

	if c.Sampling.Tick <= 0 {
		errs.AddField("sampling.tick", "must be positive")
	}
	if c.Sampling.CPUWindow <= 0 {
		errs.AddField("sampling.cpu_window", "must be positive")
	}

	if !constants.IsValidBackend(c.Storage.Backend) {
		errs.Add(errors.NewInvalidValue("storage.backend", c.Storage.Backend, "must be file or memory"))
	}
	if c.Storage.MaxSize == 0 {
		errs.AddField("storage.max_size", "must be positive")
	}
	if c.Storage.EvictRatio < 0.1 || c.Storage.EvictRatio > 1 {
		errs.Add(errors.NewInvalidValue("storage.evict_ratio", c.Storage.EvictRatio, "must be between 0.1 and 1.0"))
	}
	if c.Storage.RetentionAge < 0 {
		errs.AddField("storage.retention_age", "cannot be negative")
	}
	switch c.Storage.SyncMode {
	case wal.SyncModeFsync, wal.SyncModeFlush:
	default:
		errs.Add(errors.NewInvalidValue("storage.sync_mode", c.Storage.SyncMode, "must be fsync or flush"))
	}

	if c.Target.PID < 0 {
		errs.AddField("target.pid", "cannot be negative")
	}
	if c.Target.DiskPath == "" {
		errs.AddMissing("target.disk_path")
	}

	if c.Display.Interval <= 0 {
		errs.AddField("display.interval", "must be positive")
	}
	if c.Shutdown.StopTimeout <= 0 {
		errs.AddField("shutdown.stop_timeout", "must be positive")
	}
	if _, err := zap.ParseAtomicLevel(c.Logging.Level); err != nil {
		errs.Add(errors.NewInvalidValue("logging.level", c.Logging.Level, "unknown level"))
	}

	return errs.Err()
}

// =============================================================================
// Conversion
// =============================================================================

// ToRegistryOptions converts the storage section.
func (c *Config) ToRegistryOptions() storage.RegistryOptions {
	return storage.RegistryOptions{
		Backend:      c.Storage.Backend,
		BaseDir:      c.Storage.Dir,
		MaxSize:      c.Storage.MaxSize,
		EvictRatio:   c.Storage.EvictRatio,
		RetentionAge: c.Storage.RetentionAge,
		SyncMode:     c.Storage.SyncMode,
		Logger:       logging.Component("registry"),
	}
}

// ToMonitorOptions converts the configuration into monitor options with
// host probes.
func (c *Config) ToMonitorOptions() monitor.Options {
	return monitor.Options{
		Registry:    c.ToRegistryOptions(),
		Tick:        c.Sampling.Tick,
		CPUWindow:   c.Sampling.CPUWindow,
		DiskPath:    c.Target.DiskPath,
		PID:         c.Target.PID,
		AppPath:     c.Target.Path,
		StopTimeout: c.Shutdown.StopTimeout,
		Logger:      logging.Component("monitor"),
	}
}
