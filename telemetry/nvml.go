// This file contains the NVML backend for NVIDIA accelerators
// (desktop, DGX, and Jetson devices with full NVML support).
package telemetry

import (
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"go.uber.org/zap"
)

// nvmlBackend reads accelerator stats through the NVIDIA Management Library.
// The library handle is owned exclusively by this backend and released once
// via Close.
type nvmlBackend struct {
	device      nvml.Device
	deviceName  string
	initialized bool
	closed      bool
	logger      *zap.Logger
}

// nvmlUsable is the selection probe: it reports whether NVML initializes on
// this host. The probe shuts NVML down again so the backend owns the only
// long-lived handle.
func nvmlUsable() bool {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return false
	}
	defer nvml.Shutdown()
	_, ret := nvml.DeviceGetHandleByIndex(0)
	return ret == nvml.SUCCESS
}

// newNVMLBackend initializes NVML and resolves the device handle for the
// given index. On error the returned backend is still usable for labeling
// and Close; the caller records it as unavailable.
func newNVMLBackend(deviceIndex int, logger *zap.Logger) (*nvmlBackend, error) {
	b := &nvmlBackend{deviceName: "unknown", logger: logger}

	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return b, fmt.Errorf("telemetry: nvml init: %s", nvml.ErrorString(ret))
	}
	b.initialized = true

	device, ret := nvml.DeviceGetHandleByIndex(deviceIndex)
	if ret != nvml.SUCCESS {
		return b, fmt.Errorf("telemetry: nvml device %d: %s", deviceIndex, nvml.ErrorString(ret))
	}
	b.device = device

	if name, ret := device.GetName(); ret == nvml.SUCCESS {
		b.deviceName = name
	}
	logger.Info("NVML initialized", zap.String("gpu", b.deviceName), zap.Int("device_index", deviceIndex))

	return b, nil
}

func (b *nvmlBackend) Variant() Variant { return VariantNVML }

func (b *nvmlBackend) DeviceName() string { return b.deviceName }

func (b *nvmlBackend) Query() (AcceleratorStats, error) {
	stats := AcceleratorStats{
		Label: "NVIDIA (NVML)",
		Name:  b.deviceName,
	}

	util, ret := b.device.GetUtilizationRates()
	if ret != nvml.SUCCESS {
		return stats, fmt.Errorf("telemetry: nvml utilization: %s", nvml.ErrorString(ret))
	}
	stats.UtilPct = float64(util.Gpu)

	memInfo, ret := b.device.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return stats, fmt.Errorf("telemetry: nvml memory: %s", nvml.ErrorString(ret))
	}
	stats.MemUsedGB = bytesToGiB(memInfo.Used)
	stats.MemTotalGB = bytesToGiB(memInfo.Total)
	if memInfo.Total > 0 {
		stats.MemPct = float64(memInfo.Used) / float64(memInfo.Total) * 100
	}

	// Temperature and power are optional: some devices (and some Jetson
	// modules behind NVML) do not expose them. Absence is not an error.
	if temp, ret := b.device.GetTemperature(nvml.TEMPERATURE_GPU); ret == nvml.SUCCESS {
		stats.TemperatureC = float64Ptr(float64(temp))
	}
	if powerMW, ret := b.device.GetPowerUsage(); ret == nvml.SUCCESS {
		stats.PowerW = float64Ptr(float64(powerMW) / 1000)
	}

	return stats, nil
}

func (b *nvmlBackend) Close() error {
	if !b.initialized || b.closed {
		return nil
	}
	b.closed = true
	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return fmt.Errorf("telemetry: nvml shutdown: %s", nvml.ErrorString(ret))
	}
	b.logger.Info("NVML shutdown complete")
	return nil
}
