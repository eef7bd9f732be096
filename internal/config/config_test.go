package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/elaiviaien/smaug/internal/constants"
	"github.com/elaiviaien/smaug/internal/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}

	if cfg.Sampling.Tick != 100*time.Millisecond {
		t.Errorf("expected 100ms tick, got %v", cfg.Sampling.Tick)
	}

	if cfg.Storage.MaxSize != 1000*datasize.KB {
		t.Errorf("expected 1000KB max size, got %v", cfg.Storage.MaxSize)
	}

	if cfg.Storage.Backend != constants.BackendFile {
		t.Errorf("expected file backend, got %q", cfg.Storage.Backend)
	}

	if cfg.Target.DiskPath != "/" {
		t.Errorf("expected / disk path, got %q", cfg.Target.DiskPath)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "smaug.yaml")

	t.Setenv("SMAUG_TEST_APP", "/srv/app")

	content := `
sampling:
  tick: 250ms
storage:
  backend: memory
  max_size: 64KB
  evict_ratio: 0.5
target:
  path: ${SMAUG_TEST_APP}
  pid: 1234
display:
  json: true
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Sampling.Tick != 250*time.Millisecond {
		t.Errorf("expected 250ms tick, got %v", cfg.Sampling.Tick)
	}
	if cfg.Sampling.CPUWindow != 100*time.Millisecond {
		t.Errorf("cpu_window should keep its default, got %v", cfg.Sampling.CPUWindow)
	}
	if cfg.Storage.Backend != constants.BackendMemory {
		t.Errorf("expected memory backend, got %q", cfg.Storage.Backend)
	}
	if cfg.Storage.MaxSize != 64*datasize.KB {
		t.Errorf("expected 64KB, got %v", cfg.Storage.MaxSize)
	}
	if cfg.Storage.EvictRatio != 0.5 {
		t.Errorf("expected evict ratio 0.5, got %v", cfg.Storage.EvictRatio)
	}
	if cfg.Target.Path != "/srv/app" {
		t.Errorf("expected expanded path, got %q", cfg.Target.Path)
	}
	if cfg.Target.PID != 1234 {
		t.Errorf("expected pid 1234, got %d", cfg.Target.PID)
	}
	if !cfg.Display.JSON {
		t.Error("expected json display")
	}
	if cfg.Display.Interval != 300*time.Millisecond {
		t.Errorf("display.interval should keep its default, got %v", cfg.Display.Interval)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should be valid: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	if _, err := Parse([]byte("sampling: [")); err == nil {
		t.Error("expected error for malformed yaml")
	}

	if _, err := Parse([]byte("storage:\n  max_size: lots\n")); err == nil {
		t.Error("expected error for unparsable size")
	}

	if _, err := Parse([]byte("sampling:\n  tick: soon\n")); err == nil {
		t.Error("expected error for unparsable duration")
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty file should yield a valid config: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tick", func(c *Config) { c.Sampling.Tick = 0 }},
		{"zero cpu window", func(c *Config) { c.Sampling.CPUWindow = 0 }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }},
		{"zero max size", func(c *Config) { c.Storage.MaxSize = 0 }},
		{"evict ratio too low", func(c *Config) { c.Storage.EvictRatio = 0.01 }},
		{"evict ratio too high", func(c *Config) { c.Storage.EvictRatio = 1.5 }},
		{"negative retention", func(c *Config) { c.Storage.RetentionAge = -time.Hour }},
		{"unknown sync mode", func(c *Config) { c.Storage.SyncMode = "never" }},
		{"negative pid", func(c *Config) { c.Target.PID = -1 }},
		{"empty disk path", func(c *Config) { c.Target.DiskPath = "" }},
		{"zero display interval", func(c *Config) { c.Display.Interval = 0 }},
		{"zero stop timeout", func(c *Config) { c.Shutdown.StopTimeout = 0 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.IsValidation(err) {
				t.Errorf("expected a validation error, got %v", err)
			}
		})
	}
}

func TestValidateCollectsAll(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sampling.Tick = 0
	cfg.Display.Interval = 0

	err := cfg.Validate()

	var verrs *errors.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verrs.Errors) != 2 {
		t.Errorf("expected 2 errors, got %d: %v", len(verrs.Errors), err)
	}
}

func TestToMonitorOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Backend = constants.BackendMemory
	cfg.Storage.Dir = "/var/tmp"
	cfg.Target.PID = 99
	cfg.Target.Path = "/srv/app"
	cfg.Shutdown.StopTimeout = 5 * time.Second

	opts := cfg.ToMonitorOptions()

	if opts.Registry.Backend != constants.BackendMemory {
		t.Errorf("expected memory backend, got %q", opts.Registry.Backend)
	}
	if opts.Registry.BaseDir != "/var/tmp" {
		t.Errorf("expected base dir /var/tmp, got %q", opts.Registry.BaseDir)
	}
	if opts.Registry.MaxSize != cfg.Storage.MaxSize {
		t.Errorf("max size not carried over")
	}
	if opts.PID != 99 || opts.AppPath != "/srv/app" {
		t.Errorf("target not carried over: pid=%d path=%q", opts.PID, opts.AppPath)
	}
	if opts.StopTimeout != 5*time.Second {
		t.Errorf("expected 5s stop timeout, got %v", opts.StopTimeout)
	}
	if opts.Logger == nil || opts.Registry.Logger == nil {
		t.Error("expected component loggers")
	}
}
