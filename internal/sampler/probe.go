// Package sampler schedules resource probes and answers aggregate queries
// over what they recorded.
//
// A Probe produces one Series per invocation. Two wrappers decide when it
// runs:
//
//   - Continuous invokes the probe every tick on its own goroutine and
//     appends each metric to the store of the same name.
//   - Baseline invokes the probe once at construction and again on demand,
//     so callers can compare the latest reading with the first.
package sampler

import (
	"context"

	"github.com/elaiviaien/smaug/internal/metric"
)

// Probe reads one group of resource metrics. Read failures are reported as
// *errors.ProbeReadError.
type Probe interface {
	Name() string
	RecordStats(ctx context.Context) (metric.Series, error)
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc struct {
	ProbeName string
	Fn        func(ctx context.Context) (metric.Series, error)
}

// Name returns the probe name.
func (p ProbeFunc) Name() string { return p.ProbeName }

// RecordStats calls Fn.
func (p ProbeFunc) RecordStats(ctx context.Context) (metric.Series, error) {
	return p.Fn(ctx)
}
