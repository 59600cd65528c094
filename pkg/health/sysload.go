package health

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemLoad is a point-in-time snapshot of host resource usage, included
// in the health summary so operators can correlate source degradation with
// local pressure.
type SystemLoad struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
}

// ReadSystemLoad samples CPU and memory usage. Sampling failures leave the
// corresponding fields zero rather than failing the summary.
func ReadSystemLoad() SystemLoad {
	var load SystemLoad

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		load.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		load.MemoryPercent = vm.UsedPercent
		load.MemoryUsedMB = vm.Used / (1 << 20)
	}
	return load
}
