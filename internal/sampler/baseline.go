package sampler

import (
	"context"
	"time"

	"github.com/elaiviaien/smaug/internal/errors"
	"github.com/elaiviaien/smaug/internal/metric"
)

// Baseline records a probe's first reading and compares later readings
// against it. It does not run in the background.
type Baseline struct {
	probe   Probe
	first   metric.Series
	started time.Time
}

// NewBaseline invokes the probe once. A probe failure fails construction.
func NewBaseline(ctx context.Context, probe Probe) (*Baseline, error) {
	started := time.Now()

	first, err := probe.RecordStats(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "baseline %s", probe.Name())
	}

	return &Baseline{
		probe:   probe,
		first:   first,
		started: started,
	}, nil
}

// First returns the reading taken at construction.
func (b *Baseline) First() metric.Series {
	return b.first
}

// Last takes a fresh reading. It is never cached.
func (b *Baseline) Last(ctx context.Context) (metric.Series, error) {
	return b.probe.RecordStats(ctx)
}

// Diff takes a fresh reading and returns latest minus first for the named
// metric, rounded to three decimals.
func (b *Baseline) Diff(ctx context.Context, name string) (float64, error) {
	latest, err := b.Last(ctx)
	if err != nil {
		return 0, err
	}
	return b.DiffFrom(latest, name)
}

// DiffFrom is Diff against a reading the caller already took.
func (b *Baseline) DiffFrom(latest metric.Series, name string) (float64, error) {
	first, err := b.first.Float(name)
	if err != nil {
		return 0, err
	}
	last, err := latest.Float(name)
	if err != nil {
		return 0, err
	}
	return metric.Round(last-first, 3), nil
}

// Name returns the probe name.
func (b *Baseline) Name() string {
	return b.probe.Name()
}

// Started returns when the first reading was taken.
func (b *Baseline) Started() time.Time {
	return b.started
}

// Elapsed returns the time since the first reading.
func (b *Baseline) Elapsed() time.Duration {
	return time.Since(b.started)
}
