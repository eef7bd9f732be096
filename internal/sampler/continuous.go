package sampler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/elaiviaien/smaug/config"
	"github.com/elaiviaien/smaug/internal/constants"
	"github.com/elaiviaien/smaug/internal/errors"
	"github.com/elaiviaien/smaug/internal/logging"
	"github.com/elaiviaien/smaug/internal/metric"
	"github.com/elaiviaien/smaug/internal/storage"
	"github.com/elaiviaien/smaug/internal/storage/aggregate"
)

// =============================================================================
// Types
// =============================================================================

// Options configures a Continuous sampler.
type Options struct {
	// Tick is the pause after each sample.
	// Default: 100ms
	Tick time.Duration

	Logger *zap.Logger
}

// Stats holds sampling loop statistics.
type Stats struct {
	Ticks         int64
	ProbeFailures int64
	StoreFailures int64
	Panics        int64
}

// Continuous runs a probe in a loop on its own goroutine and appends every
// metric it reports to the registry store of the same name.
//
// Lifecycle: created -> running -> stopped. Stop is cooperative and never
// blocks; use Wait to join the goroutine.
type Continuous struct {
	probe    Probe
	registry *storage.Registry
	tick     time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	state  string
	cancel context.CancelFunc
	done   chan struct{}
	names  map[string]struct{}

	// Statistics
	ticks         atomic.Int64
	probeFailures atomic.Int64
	storeFailures atomic.Int64
	panics        atomic.Int64
}

// NewContinuous creates a sampler. It does not start sampling.
func NewContinuous(probe Probe, registry *storage.Registry, opts Options) *Continuous {
	if opts.Tick <= 0 {
		opts.Tick = config.DefaultTickInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.Component("sampler")
	}

	return &Continuous{
		probe:    probe,
		registry: registry,
		tick:     opts.Tick,
		log:      opts.Logger.With(zap.String("probe", probe.Name())),
		state:    constants.SamplerStateCreated,
		names:    make(map[string]struct{}),
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start launches the sampling goroutine. The loop runs until ctx is
// cancelled or Stop is called.
func (c *Continuous) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case constants.SamplerStateRunning:
		return errors.ErrSamplerRunning
	case constants.SamplerStateStopped:
		return errors.ErrSamplerStopped
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.state = constants.SamplerStateRunning

	go c.loop(loopCtx, c.done)

	c.log.Info("sampler started", zap.Duration("tick", c.tick))
	return nil
}

// Stop requests the loop to exit. It returns immediately and is safe to
// call any number of times, including before Start.
func (c *Continuous) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == constants.SamplerStateStopped {
		return
	}
	c.state = constants.SamplerStateStopped
	if c.cancel != nil {
		c.cancel()
	}
	c.log.Debug("sampler stop requested")
}

// State returns the lifecycle state.
func (c *Continuous) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Alive reports whether the sampling goroutine is still running.
func (c *Continuous) Alive() bool {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Wait blocks until the sampling goroutine exits or ctx is done.
// It returns nil immediately if the sampler was never started.
func (c *Continuous) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.log.Warn("sampler did not stop in time")
		return fmt.Errorf("probe %s: %w", c.probe.Name(), errors.ErrStopTimeout)
	}
}

// WaitTimeout is Wait bounded by d.
func (c *Continuous) WaitTimeout(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return c.Wait(ctx)
}

// =============================================================================
// Sampling loop
// =============================================================================

func (c *Continuous) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer c.log.Info("sampler stopped", zap.Int64("ticks", c.ticks.Load()))

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		c.sampleWithRecovery(ctx)

		timer.Reset(c.tick)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// sampleWithRecovery runs one tick. Failures are logged and the tick is
// skipped; they never end the loop.
func (c *Continuous) sampleWithRecovery(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.panics.Add(1)
			c.log.Error("panic in probe", zap.Any("panic", r))
		}
	}()

	series, err := c.probe.RecordStats(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.probeFailures.Add(1)
		c.logFailure("probe read failed", err)
		return
	}

	for _, m := range series.Metrics() {
		err := c.store(m)
		switch {
		case err == nil:
		case errors.IsStateError(err):
			// registry closed under a running tick
			c.log.Debug("store unavailable, dropping tick", zap.Error(err))
			return
		default:
			c.storeFailures.Add(1)
			c.logFailure("store append failed", err, zap.String("metric", m.Name))
		}
	}
	c.ticks.Add(1)
}

// logFailure logs transient read and write failures as warnings and
// anything else as an error.
func (c *Continuous) logFailure(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if errors.IsRecoverable(err) {
		c.log.Warn(msg, fields...)
		return
	}
	c.log.Error(msg, fields...)
}

func (c *Continuous) store(m metric.Metric) error {
	s, err := c.registry.Get(m.Name)
	if err != nil {
		return err
	}
	if err := s.Append(m); err != nil {
		return err
	}

	c.mu.Lock()
	c.names[m.Name] = struct{}{}
	c.mu.Unlock()
	return nil
}

// =============================================================================
// Queries
// =============================================================================

// Average returns the mean of every stored value of the named metric,
// rounded to three decimals. It is 0 when nothing was stored yet.
func (c *Continuous) Average(name string) (float64, error) {
	s, ok := c.registry.Lookup(name)
	if !ok {
		return 0, nil
	}

	entries, err := s.Tail(0)
	if err != nil {
		return 0, err
	}
	return aggregate.Average(entries), nil
}

// Summary returns count, extremes, mean and percentiles of the named metric.
func (c *Continuous) Summary(name string) (aggregate.Result, error) {
	s, ok := c.registry.Lookup(name)
	if !ok {
		return aggregate.Result{Name: name}, nil
	}

	entries, err := s.Tail(0)
	if err != nil {
		return aggregate.Result{}, err
	}
	return aggregate.Summarize(name, entries), nil
}

// Latest returns the newest stored value of the named metric.
func (c *Continuous) Latest(name string) (metric.Metric, error) {
	s, ok := c.registry.Lookup(name)
	if !ok {
		return metric.Metric{}, errors.NewMetricNotFound(name)
	}
	return s.Latest()
}

// Metrics returns the names this sampler has written, sorted.
func (c *Continuous) Metrics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.names))
	for name := range c.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Name returns the probe name.
func (c *Continuous) Name() string {
	return c.probe.Name()
}

// Stats returns sampling loop statistics.
func (c *Continuous) Stats() Stats {
	return Stats{
		Ticks:         c.ticks.Load(),
		ProbeFailures: c.probeFailures.Load(),
		StoreFailures: c.storeFailures.Load(),
		Panics:        c.panics.Load(),
	}
}
