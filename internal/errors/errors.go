// Package errors provides the error definitions shared by every smaug package.
//
// This file provides:
// - Sentinel errors for all error conditions
// - Typed probe and storage failures that match their sentinels
// - Error category checking functions
// - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Not found errors
	ErrMetricNotFound = errors.New("metric not found")

	// Metric model errors
	ErrDuplicateMetricName = errors.New("all metrics should have unique names")
	ErrInvalidMetric       = errors.New("invalid metric")
	ErrNotNumeric          = errors.New("metric value is not numeric")

	// Validation errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")

	// Sampling and storage failures
	ErrProbeReadFailed    = errors.New("probe read failed")
	ErrStorageWriteFailed = errors.New("storage write failed")
	ErrCorruptRecord      = errors.New("corrupt record")

	// State errors
	ErrSamplerRunning  = errors.New("sampler is already running")
	ErrSamplerStopped  = errors.New("sampler is already stopped")
	ErrRegistryClosed  = errors.New("registry is closed")
	ErrStoreClosed     = errors.New("store is closed")
	ErrMonitorClosed   = errors.New("monitor is closed")
	ErrStopTimeout     = errors.New("timed out waiting for sampler to stop")
	ErrTargetNotExists = errors.New("target does not exist")
)

// ============================================================================
// Typed errors
// ============================================================================

// ProbeReadError reports that a probe could not read its underlying source.
// It matches ErrProbeReadFailed under errors.Is.
type ProbeReadError struct {
	Probe string
	Cause error
}

// NewProbeRead wraps cause as a ProbeReadError for the named probe.
func NewProbeRead(probe string, cause error) error {
	return &ProbeReadError{Probe: probe, Cause: cause}
}

func (e *ProbeReadError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("probe %s: %s", e.Probe, ErrProbeReadFailed)
	}
	return fmt.Sprintf("probe %s: %s: %v", e.Probe, ErrProbeReadFailed, e.Cause)
}

func (e *ProbeReadError) Unwrap() error { return e.Cause }

func (e *ProbeReadError) Is(target error) bool { return target == ErrProbeReadFailed }

// StorageWriteError reports that an entry could not be persisted.
// It matches ErrStorageWriteFailed under errors.Is.
type StorageWriteError struct {
	Metric string
	Op     string
	Cause  error
}

// NewStorageWrite wraps cause as a StorageWriteError.
func NewStorageWrite(metric, op string, cause error) error {
	return &StorageWriteError{Metric: metric, Op: op, Cause: cause}
}

func (e *StorageWriteError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("store %s: %s: %s", e.Metric, e.Op, ErrStorageWriteFailed)
	}
	return fmt.Sprintf("store %s: %s: %s: %v", e.Metric, e.Op, ErrStorageWriteFailed, e.Cause)
}

func (e *StorageWriteError) Unwrap() error { return e.Cause }

func (e *StorageWriteError) Is(target error) bool { return target == ErrStorageWriteFailed }

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMetricNotFound)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidMetric) ||
		errors.Is(err, ErrDuplicateMetricName)
}

// IsStateError returns true if err is a state-related error.
func IsStateError(err error) bool {
	return errors.Is(err, ErrSamplerRunning) ||
		errors.Is(err, ErrSamplerStopped) ||
		errors.Is(err, ErrRegistryClosed) ||
		errors.Is(err, ErrStoreClosed) ||
		errors.Is(err, ErrMonitorClosed)
}

// IsRecoverable returns true if a sampling loop may log the error and
// continue with the next tick.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrProbeReadFailed) ||
		errors.Is(err, ErrStorageWriteFailed)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewMetricNotFound creates the error returned for an absent metric.
func NewMetricNotFound(name string) error {
	return fmt.Errorf("metric %s: %w", name, ErrMetricNotFound)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
