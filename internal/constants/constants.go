// Package constants provides centralized domain-specific constants
// for smaug: metric names, their display units and maxima, and
// sampler lifecycle states.
package constants

// =============================================================================
// Metric Names - Raw probe output
// =============================================================================

const (
	MetricCPUUsage         = "cpu_usage"
	MetricMemoryUsage      = "memory_usage"
	MetricSwapUsage        = "swap_usage"
	MetricDiskUsage        = "disk_usage"
	MetricTotalThreadUsage = "total_thread_usage"
	MetricProcessThreads   = "process_threads"
	MetricProcessInfo      = "process_info"
	MetricExecutionTime    = "execution_time"
	MetricAppSize          = "app_size"
)

// =============================================================================
// Metric Names - Derived snapshot values
// =============================================================================

const (
	MetricCPUAverage             = "cpu_average"
	MetricMemoryAverage          = "memory_average"
	MetricSwapAverage            = "swap_average"
	MetricDiskUsageDiff          = "disk_usage_diff"
	MetricTotalThreadUsageDiff   = "total_thread_usage_diff"
	MetricCurrentThreadUsageDiff = "current_thread_usage_diff"

	// 95th percentile of the stored history
	MetricCPUP95    = "cpu_p95"
	MetricMemoryP95 = "memory_p95"
	MetricSwapP95   = "swap_p95"
)

// =============================================================================
// Probe Names
// =============================================================================

const (
	ProbeCPU     = "cpu"
	ProbeMemory  = "memory"
	ProbeDisk    = "disk"
	ProbeProcess = "process"
	ProbeAppSize = "app_size"
)

// =============================================================================
// Units and display maxima
// =============================================================================

const (
	UnitPercent = "%"
	UnitSeconds = "s"
	UnitCount   = "n"
	UnitBytes   = "B"
)

// Units maps each displayable metric to its unit.
var Units = map[string]string{
	MetricCPUUsage:               UnitPercent,
	MetricCPUAverage:             UnitPercent,
	MetricCPUP95:                 UnitPercent,
	MetricMemoryUsage:            UnitPercent,
	MetricMemoryAverage:          UnitPercent,
	MetricMemoryP95:              UnitPercent,
	MetricSwapUsage:              UnitPercent,
	MetricSwapAverage:            UnitPercent,
	MetricSwapP95:                UnitPercent,
	MetricDiskUsage:              UnitPercent,
	MetricDiskUsageDiff:          UnitPercent,
	MetricExecutionTime:          UnitSeconds,
	MetricTotalThreadUsage:       UnitCount,
	MetricProcessThreads:         UnitCount,
	MetricTotalThreadUsageDiff:   UnitCount,
	MetricCurrentThreadUsageDiff: UnitCount,
	MetricAppSize:                UnitBytes,
}

// MaxValues holds the upper bound a display gauge should scale to.
// Metrics without an entry are unbounded.
var MaxValues = map[string]float64{
	MetricCPUUsage:      100,
	MetricCPUAverage:    100,
	MetricCPUP95:        100,
	MetricMemoryUsage:   100,
	MetricMemoryAverage: 100,
	MetricMemoryP95:     100,
	MetricSwapUsage:     100,
	MetricSwapAverage:   100,
	MetricSwapP95:       100,
	MetricDiskUsage:     100,
	MetricDiskUsageDiff: 100,
}

// UnitOf returns the unit for a metric, or "" if it has none.
func UnitOf(name string) string {
	return Units[name]
}

// =============================================================================
// Sampler State
// =============================================================================

const (
	// SamplerStateCreated indicates the sampler has not been started
	SamplerStateCreated = "created"

	// SamplerStateRunning indicates the sampling loop is active
	SamplerStateRunning = "running"

	// SamplerStateStopped indicates a stop was requested or the loop exited
	SamplerStateStopped = "stopped"
)

// ValidSamplerStates contains all valid sampler state values
var ValidSamplerStates = []string{SamplerStateCreated, SamplerStateRunning, SamplerStateStopped}

// =============================================================================
// Storage Backends
// =============================================================================

const (
	// BackendFile persists each store as an append log under the session directory
	BackendFile = "file"

	// BackendMemory keeps each store in a bounded in-memory ring
	BackendMemory = "memory"
)

// ValidBackends contains all valid storage backend values
var ValidBackends = []string{BackendFile, BackendMemory}

// IsValidBackend checks if a backend name is valid
func IsValidBackend(backend string) bool {
	for _, b := range ValidBackends {
		if b == backend {
			return true
		}
	}
	return false
}

// SessionDirPrefix prefixes every session directory created by a registry.
const SessionDirPrefix = "smaug_"
