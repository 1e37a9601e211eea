// Package hostmon samples host memory and CPU usage for snapshot ticks.
package hostmon

import (
	"context"

	"codeberg.org/mutker/metricsd/internal/errors"
	"codeberg.org/mutker/metricsd/internal/metrics"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const bytesPerMb = 1024 * 1024

type sampler struct{}

// NewSampler returns a metrics.ResourceProvider backed by the host's
// memory and CPU counters.
func NewSampler() metrics.ResourceProvider {
	return sampler{}
}

// Sample returns used memory in MB and the global CPU percentage since
// the previous call. Per-core accounting can push the percentage
// slightly past 100; callers treat the reading as opaque.
func (sampler) Sample(ctx context.Context) (metrics.ResourceUsage, error) {
	errFactory := errors.New()

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return metrics.ResourceUsage{}, errFactory.Wrap(ErrSampleFailed, err)
	}

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return metrics.ResourceUsage{}, errFactory.Wrap(ErrSampleFailed, err)
	}

	usage := metrics.ResourceUsage{
		MemoryUsageMb: float64(vm.Used) / bytesPerMb,
	}
	if len(percents) > 0 {
		usage.CPUUsagePercent = percents[0]
	}

	return usage, nil
}
