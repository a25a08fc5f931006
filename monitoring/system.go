package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spacedata/sdchain/logx"
)

type SystemMetrics struct {
	CPUPercent    float64
	MemoryPercent float64
}

// CollectSystemMetrics samples host CPU and memory usage and exports them.
func CollectSystemMetrics() (*SystemMetrics, error) {
	metrics := &SystemMetrics{}

	cpuPercent, err := cpu.Percent(0, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get CPU metrics: %w", err)
	}
	if len(cpuPercent) > 0 {
		metrics.CPUPercent = cpuPercent[0]
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to get memory metrics: %w", err)
	}
	metrics.MemoryPercent = memInfo.UsedPercent

	nodeMetrics.systemCPUPercent.Set(metrics.CPUPercent)
	nodeMetrics.systemMemPercent.Set(metrics.MemoryPercent)
	return metrics, nil
}

// RunSystemCollector samples every interval until ctx is done.
func RunSystemCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := CollectSystemMetrics(); err != nil {
				logx.Warn("MONITORING", "System metrics unavailable: ", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
