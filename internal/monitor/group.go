// Package monitor composes the resource samplers into one unit with a
// single lifetime and answers pull-based snapshot requests.
//
// CPU and memory are sampled continuously into the store registry. Disk
// and process usage are read on demand and compared against the reading
// taken when the group was created.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/elaiviaien/smaug/config"
	"github.com/elaiviaien/smaug/internal/errors"
	"github.com/elaiviaien/smaug/internal/logging"
	"github.com/elaiviaien/smaug/internal/probe"
	"github.com/elaiviaien/smaug/internal/sampler"
	"github.com/elaiviaien/smaug/internal/storage"
)

// =============================================================================
// Options
// =============================================================================

// Options configures a Group.
type Options struct {
	Registry storage.RegistryOptions

	// Tick is the pause between continuous samples.
	// Default: 100ms
	Tick time.Duration

	// CPUWindow is the gap between the two CPU counter reads.
	// Default: 100ms
	CPUWindow time.Duration

	// DiskPath selects the filesystem reported as disk usage.
	// Default: "/"
	DiskPath string

	// PID is the watched process. Zero watches the host only.
	PID int32

	// AppPath is measured for app_size. Empty omits app_size.
	AppPath string

	// AppSizeTTL is how long a measured app size is reused.
	// Default: 1s
	AppSizeTTL time.Duration

	// StopTimeout bounds how long Close waits for each sampler.
	// Default: 2s
	StopTimeout time.Duration

	Logger *zap.Logger

	// Probe overrides. Nil selects the host probe.
	CPUProbe     sampler.Probe
	MemoryProbe  sampler.Probe
	DiskProbe    sampler.Probe
	ProcessProbe *probe.Process
	AppSizeProbe sampler.Probe
}

func (o Options) withDefaults() Options {
	if o.Tick <= 0 {
		o.Tick = config.DefaultTickInterval
	}
	if o.CPUWindow <= 0 {
		o.CPUWindow = config.DefaultCPUWindow
	}
	if o.DiskPath == "" {
		o.DiskPath = config.DefaultDiskPath
	}
	if o.AppSizeTTL <= 0 {
		o.AppSizeTTL = config.DefaultAppSizeCacheTTL
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = config.DefaultStopTimeout
	}
	if o.Logger == nil {
		o.Logger = logging.Component("monitor")
	}
	if o.Registry.Logger == nil {
		o.Registry.Logger = o.Logger.With(zap.String("component", "registry"))
	}

	if o.CPUProbe == nil {
		o.CPUProbe = probe.NewCPU(probe.CPUOptions{Window: o.CPUWindow})
	}
	if o.MemoryProbe == nil {
		o.MemoryProbe = probe.NewMemory(probe.MemoryOptions{})
	}
	if o.DiskProbe == nil {
		o.DiskProbe = probe.NewDisk(probe.DiskOptions{Path: o.DiskPath})
	}
	if o.ProcessProbe == nil {
		o.ProcessProbe = probe.NewProcess(probe.ProcessOptions{PID: o.PID})
	}
	if o.AppSizeProbe == nil && o.AppPath != "" {
		o.AppSizeProbe = probe.NewAppSize(o.AppPath)
	}
	return o
}

// =============================================================================
// Group
// =============================================================================

// Group owns the store registry and every sampler for one monitoring
// session. Create it with New or Run; release it with Close.
type Group struct {
	registry *storage.Registry
	cpu      *sampler.Continuous
	memory   *sampler.Continuous
	disk     *sampler.Baseline
	process  *sampler.Baseline
	proc     *probe.Process
	appSize  sampler.Probe
	appCache *ttlcache.Cache[string, float64]

	stopTimeout time.Duration
	log         *zap.Logger

	stopOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

// New creates the registry and samplers, takes the disk and process
// baselines, and starts continuous sampling. If any step fails, what was
// already acquired is released.
func New(ctx context.Context, opts Options) (*Group, error) {
	opts = opts.withDefaults()

	registry, err := storage.NewRegistry(opts.Registry)
	if err != nil {
		return nil, errors.Wrap(err, "create registry")
	}

	samplerOpts := sampler.Options{
		Tick:   opts.Tick,
		Logger: opts.Logger.With(zap.String("component", "sampler")),
	}

	g := &Group{
		registry:    registry,
		cpu:         sampler.NewContinuous(opts.CPUProbe, registry, samplerOpts),
		memory:      sampler.NewContinuous(opts.MemoryProbe, registry, samplerOpts),
		proc:        opts.ProcessProbe,
		appSize:     opts.AppSizeProbe,
		stopTimeout: opts.StopTimeout,
		log:         opts.Logger,
		appCache: ttlcache.New[string, float64](
			ttlcache.WithTTL[string, float64](opts.AppSizeTTL),
			ttlcache.WithDisableTouchOnHit[string, float64](),
		),
	}

	g.disk, err = sampler.NewBaseline(ctx, opts.DiskProbe)
	if err != nil {
		registry.Close()
		return nil, err
	}
	g.process, err = sampler.NewBaseline(ctx, opts.ProcessProbe)
	if err != nil {
		registry.Close()
		return nil, err
	}

	for _, c := range []*sampler.Continuous{g.cpu, g.memory} {
		if err := c.Start(ctx); err != nil {
			g.Close(context.Background())
			return nil, errors.Wrapf(err, "start %s sampler", c.Name())
		}
	}

	g.log.Info("monitor started",
		zap.Int32("pid", opts.PID),
		zap.String("app_path", opts.AppPath),
		zap.String("disk_path", opts.DiskPath),
		zap.Duration("tick", opts.Tick))
	return g, nil
}

// Stop asks every continuous sampler to stop. It does not block and is
// safe to call any number of times.
func (g *Group) Stop() {
	g.stopOnce.Do(func() {
		g.cpu.Stop()
		g.memory.Stop()
		g.log.Debug("monitor stop requested")
	})
}

// Close stops the samplers, waits for each of them up to the stop timeout,
// then releases the store registry. The registry is released even when a
// sampler did not stop in time. Safe to call any number of times.
func (g *Group) Close(ctx context.Context) error {
	g.closeOnce.Do(func() {
		g.Stop()

		waitCtx, cancel := context.WithTimeout(ctx, g.stopTimeout)
		defer cancel()

		var eg errgroup.Group
		for _, c := range []*sampler.Continuous{g.cpu, g.memory} {
			c := c // per-iteration copy (pre-Go 1.22 loop semantics)
			eg.Go(func() error { return c.Wait(waitCtx) })
		}
		waitErr := eg.Wait()

		g.closed.Store(true)
		g.appCache.DeleteAll()
		regErr := g.registry.Close()

		g.closeErr = errors.Join(waitErr, regErr)
		if g.closeErr != nil {
			g.log.Warn("monitor closed with errors", zap.Error(g.closeErr))
		} else {
			g.log.Info("monitor closed")
		}
	})
	return g.closeErr
}

// Run creates a Group, passes it to fn and always releases it, whether fn
// returns, fails or panics.
func Run(ctx context.Context, opts Options, fn func(*Group) error) (err error) {
	g, err := New(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			g.Close(context.Background())
			panic(r)
		}
		if cerr := g.Close(context.Background()); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	return fn(g)
}

// Alive reports whether any continuous sampler is still running.
func (g *Group) Alive() bool {
	return g.cpu.Alive() || g.memory.Alive()
}

// CPU returns the continuous CPU sampler.
func (g *Group) CPU() *sampler.Continuous { return g.cpu }

// Memory returns the continuous memory sampler.
func (g *Group) Memory() *sampler.Continuous { return g.memory }

// Disk returns the disk baseline.
func (g *Group) Disk() *sampler.Baseline { return g.disk }

// Process returns the process baseline.
func (g *Group) Process() *sampler.Baseline { return g.process }

// ProcessProbe returns the process probe, for direct thread queries.
func (g *Group) ProcessProbe() *probe.Process { return g.proc }

// Registry returns the store registry.
func (g *Group) Registry() *storage.Registry { return g.registry }

func (g *Group) String() string {
	return fmt.Sprintf("monitor(session=%s)", g.registry.ID())
}
