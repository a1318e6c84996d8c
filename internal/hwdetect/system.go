package hwdetect

import (
	"context"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// SystemResources is a snapshot of host capacity used to size the job
// orchestrator's concurrent-reencode worker pool.
type SystemResources struct {
	CPUCores        int
	CPUPercent      float64
	LoadAvg1m       float64
	MemoryTotal     uint64
	MemoryAvailable uint64
	MemoryPercent   float64
}

// ProbeSystemResources reads current CPU, load, and memory figures from
// the host.
func ProbeSystemResources(ctx context.Context) (SystemResources, error) {
	var res SystemResources

	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		res.CPUCores = cores
	}
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		res.CPUPercent = percents[0]
	}
	if loadAvg, err := load.AvgWithContext(ctx); err == nil {
		res.LoadAvg1m = loadAvg.Load1
	}
	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		res.MemoryTotal = memInfo.Total
		res.MemoryAvailable = memInfo.Available
		res.MemoryPercent = memInfo.UsedPercent
	}

	return res, nil
}

// RecommendedWorkerCount returns a concurrent-reencode worker count that
// leaves headroom for the host's other load: one worker per two idle
// cores, at least one, capped to avoid oversubscribing during high
// existing load.
func RecommendedWorkerCount(res SystemResources) int {
	if res.CPUCores <= 0 {
		return 1
	}
	idleFactor := 1.0 - res.LoadAvg1m/float64(res.CPUCores)
	if idleFactor < 0.25 {
		idleFactor = 0.25
	}
	workers := int(float64(res.CPUCores) * idleFactor / 2)
	if workers < 1 {
		workers = 1
	}
	if workers > res.CPUCores {
		workers = res.CPUCores
	}
	return workers
}
