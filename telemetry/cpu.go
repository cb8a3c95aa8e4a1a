// This file contains the CPU/RAM sampling path, which is always attempted
// independently of accelerator backend health.
package telemetry

import (
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// UnknownCPU is the fallback CPU model string when detection fails.
const UnknownCPU = "Unknown CPU"

// CPUModel returns the host CPU model name, or UnknownCPU when the platform
// source cannot be read. Failures never propagate.
func CPUModel() string {
	infos, err := cpu.Info()
	if err != nil || len(infos) == 0 {
		return UnknownCPU
	}
	model := strings.TrimSpace(infos[0].ModelName)
	if model == "" {
		return UnknownCPU
	}
	return model
}

// sampleSystem reads CPU utilization, memory usage, and hostname.
// Any individual read failure yields that field's fallback value; the
// function itself never fails, so an accelerator-side problem can never
// suppress CPU/RAM reporting.
//
// cpuModel is passed in by the Collector, which resolves it once; detection
// is comparatively expensive and the model does not change mid-process.
func sampleSystem(cpuModel string) SystemStats {
	stats := SystemStats{
		CPUModel: cpuModel,
		Hostname: "Unknown",
	}
	if stats.CPUModel == "" {
		stats.CPUModel = UnknownCPU
	}

	// Percent with a zero interval reports usage since the previous call,
	// which matches the 1 Hz poll cadence without blocking the poll.
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		stats.CPUUtilPct = pcts[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats.RAMUsedGB = bytesToGiB(vm.Used)
		stats.RAMTotalGB = bytesToGiB(vm.Total)
		stats.RAMPct = vm.UsedPercent
	}

	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		stats.Hostname = hostname
	}

	return stats
}
