package probe

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/elaiviaien/smaug/internal/constants"
	"github.com/elaiviaien/smaug/internal/errors"
	"github.com/elaiviaien/smaug/internal/metric"
)

// VirtualMemoryFunc returns physical memory counters.
type VirtualMemoryFunc func(ctx context.Context) (*mem.VirtualMemoryStat, error)

// SwapMemoryFunc returns swap counters.
type SwapMemoryFunc func(ctx context.Context) (*mem.SwapMemoryStat, error)

// MemoryOptions configures a Memory probe.
type MemoryOptions struct {
	Virtual VirtualMemoryFunc
	Swap    SwapMemoryFunc
	Now     func() time.Time
}

// Memory reports memory and swap utilisation.
type Memory struct {
	virtual VirtualMemoryFunc
	swap    SwapMemoryFunc
	now     func() time.Time
}

// NewMemory creates a Memory probe.
func NewMemory(opts MemoryOptions) *Memory {
	if opts.Virtual == nil {
		opts.Virtual = mem.VirtualMemoryWithContext
	}
	if opts.Swap == nil {
		opts.Swap = mem.SwapMemoryWithContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Memory{virtual: opts.Virtual, swap: opts.Swap, now: opts.Now}
}

// Name returns the probe name.
func (p *Memory) Name() string { return constants.ProbeMemory }

// RecordStats reports memory_usage and swap_usage in percent.
func (p *Memory) RecordStats(ctx context.Context) (metric.Series, error) {
	vm, err := p.virtual(ctx)
	if err != nil {
		return metric.Series{}, errors.NewProbeRead(p.Name(), err)
	}
	sw, err := p.swap(ctx)
	if err != nil {
		return metric.Series{}, errors.NewProbeRead(p.Name(), err)
	}

	epoch := p.now().Unix()
	return metric.NewSeries(
		metric.New(constants.MetricMemoryUsage, MemoryUsage(vm), epoch),
		metric.New(constants.MetricSwapUsage, SwapUsage(sw), epoch),
	)
}

// MemoryUsage returns the share of physical memory that is neither free
// nor reclaimable as buffers or page cache, in percent rounded to three
// decimals. It is 0 when total is 0.
func MemoryUsage(vm *mem.VirtualMemoryStat) float64 {
	if vm == nil || vm.Total == 0 {
		return 0
	}
	total := float64(vm.Total)
	used := total - float64(vm.Free) - float64(vm.Buffers) - float64(pageCache(vm))
	return metric.Round(used/total*100, 3)
}

// pageCache returns the Cached line of /proc/meminfo. On Linux gopsutil
// folds SReclaimable into Cached; other platforms leave Sreclaimable at 0.
func pageCache(vm *mem.VirtualMemoryStat) uint64 {
	if vm.Sreclaimable > vm.Cached {
		return vm.Cached
	}
	return vm.Cached - vm.Sreclaimable
}

// SwapUsage returns the used share of swap in percent rounded to three
// decimals. It is 0 when no swap is configured.
func SwapUsage(sw *mem.SwapMemoryStat) float64 {
	if sw == nil || sw.Total == 0 {
		return 0
	}
	total := float64(sw.Total)
	return metric.Round((total-float64(sw.Free))/total*100, 3)
}
