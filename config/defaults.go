// Package config provides configuration defaults for smaug.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or command-line flags.
package config

import "time"

// =============================================================================
// Sampling Defaults
// =============================================================================

const (
	// DefaultTickInterval is the pause between two samples of a continuous sampler.
	// Override via config: sampling.tick
	DefaultTickInterval = 100 * time.Millisecond

	// DefaultCPUWindow is the gap between the two counter reads of one CPU sample.
	// Override via config: sampling.cpu_window
	DefaultCPUWindow = 100 * time.Millisecond

	// DefaultDiskPath is the mount point whose usage is reported.
	// Override via config: target.disk_path
	DefaultDiskPath = "/"
)

// =============================================================================
// Storage Defaults
// =============================================================================

const (
	// DefaultStoreMaxSize bounds one metric's log, in bytes (1000 KiB).
	// Override via config: storage.max_size
	DefaultStoreMaxSize = 1000 * 1024

	// DefaultEvictRatio is the fill level a full store is trimmed back to.
	// Range: 0.1-1.0
	// Override via config: storage.evict_ratio
	DefaultEvictRatio = 0.75

	// DefaultRetentionAge is how old an orphaned session directory must be
	// before a new registry removes it.
	// Override via config: storage.retention_age
	DefaultRetentionAge = 24 * time.Hour

	// DefaultBackend selects the store backend.
	// Override via config: storage.backend
	DefaultBackend = "file"
)

// =============================================================================
// Display Defaults
// =============================================================================

const (
	// DefaultSnapshotInterval is how often the CLI pulls a snapshot.
	// Override via config: display.interval
	DefaultSnapshotInterval = 300 * time.Millisecond

	// DefaultAppSizeCacheTTL is how long a computed application size is reused.
	DefaultAppSizeCacheTTL = time.Second
)

// =============================================================================
// Shutdown Defaults
// =============================================================================

const (
	// DefaultStopTimeout is how long Close waits for each sampler goroutine.
	// Override via config: shutdown.stop_timeout
	DefaultStopTimeout = 2 * time.Second
)

// =============================================================================
// Logging Defaults
// =============================================================================

const (
	// DefaultLogLevel is the minimum level written.
	// Override via config: logging.level
	DefaultLogLevel = "info"
)
