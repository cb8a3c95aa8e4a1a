// This file contains the tiered Jetson backend. The full-stats tier reads
// the devfreq load node plus thermal/power sysfs entries; the degraded tier
// reads only the nvhost_podgov load counters. A full-tier read failure falls
// back to the counter tier for that call only; the backend is disabled
// permanently only when the counter tier itself fails.
package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

const defaultSysfsRoot = "/sys"

// Sysfs nodes relative to the sysfs root.
const (
	// jetsonLoadPath reports iGPU load in tenths of a percent (0-1000).
	jetsonLoadPath = "devices/gpu.0/load"

	// Thor-style podgov counters (JetPack 7 / L4T r38.2 layout).
	thorGPUBase       = "devices/platform/bus@0/d0b0000000.pcie/pci0000:00/0000:00:00.0/0000:01:00.0"
	thorGPCLoadTarget = thorGPUBase + "/gpu-gpc-0/devfreq/gpu-gpc-0/nvhost_podgov/load_target"
	thorGPCLoadMax    = thorGPUBase + "/gpu-gpc-0/devfreq/gpu-gpc-0/nvhost_podgov/load_max"
	thorNVDLoadTarget = thorGPUBase + "/gpu-nvd-0/devfreq/gpu-nvd-0/nvhost_podgov/load_target"
	thorNVDLoadMax    = thorGPUBase + "/gpu-nvd-0/devfreq/gpu-nvd-0/nvhost_podgov/load_max"

	thermalZoneGlob = "class/thermal/thermal_zone*"
	hwmonGlob       = "class/hwmon/hwmon*"
)

// jetsonSysfsPresent is the selection probe for Jetson devices.
func jetsonSysfsPresent() bool {
	return jetsonMarkersPresent(defaultSysfsRoot)
}

func jetsonMarkersPresent(root string) bool {
	for _, rel := range []string{jetsonLoadPath, thorGPCLoadTarget} {
		if _, err := os.Stat(filepath.Join(root, rel)); err == nil {
			return true
		}
	}
	return false
}

// jetsonBackend owns no device handle; both tiers are plain sysfs reads.
// The sysfs root is injectable for tests.
type jetsonBackend struct {
	root       string
	deviceName string
	logger     *zap.Logger

	// fullTier is fixed at init; a mid-life full-tier read failure falls
	// back per call without clearing it.
	fullTier bool

	// fellBack tracks the one-time fallback note.
	fellBack bool
}

func newJetsonBackend(logger *zap.Logger) (*jetsonBackend, error) {
	return newJetsonBackendAt(defaultSysfsRoot, logger)
}

func newJetsonBackendAt(root string, logger *zap.Logger) (*jetsonBackend, error) {
	b := &jetsonBackend{
		root:       root,
		deviceName: "NVIDIA Jetson",
		logger:     logger,
	}

	if b.readableRel(jetsonLoadPath) {
		b.fullTier = true
		logger.Info("Jetson monitoring initialized", zap.String("mode", "sysfs full stats"))
		return b, nil
	}
	if b.readableRel(thorGPCLoadTarget) {
		logger.Info("Jetson monitoring initialized", zap.String("mode", "nvhost_podgov counters"))
		return b, nil
	}
	return b, fmt.Errorf("telemetry: jetson sysfs nodes not accessible under %s", root)
}

func (b *jetsonBackend) Variant() Variant { return VariantJetson }

func (b *jetsonBackend) DeviceName() string { return b.deviceName }

func (b *jetsonBackend) Query() (AcceleratorStats, error) {
	if b.fullTier {
		stats, err := b.queryFull()
		if err == nil {
			return stats, nil
		}
		if !b.fellBack {
			b.fellBack = true
			b.logger.Info("Jetson full-stats tier read failed, using podgov counters",
				zap.Error(err))
		}
	}
	return b.queryPodgov()
}

// queryFull reads the devfreq load node plus thermal and power sensors.
// Jetson devices use unified memory, so accelerator memory is the host RAM.
func (b *jetsonBackend) queryFull() (AcceleratorStats, error) {
	load, err := b.readIntRel(jetsonLoadPath)
	if err != nil {
		return AcceleratorStats{}, err
	}

	stats := AcceleratorStats{
		Label:   "Jetson (sysfs)",
		Name:    b.deviceName,
		UtilPct: float64(load) / 10,
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemUsedGB = bytesToGiB(vm.Used)
		stats.MemTotalGB = bytesToGiB(vm.Total)
		stats.MemPct = vm.UsedPercent
	}

	// Thermal and power nodes vary across modules; absence leaves the
	// fields nil rather than failing the read.
	if temp, ok := b.readGPUTemp(); ok {
		stats.TemperatureC = float64Ptr(temp)
	}
	if power, ok := b.readPower(); ok {
		stats.PowerW = float64Ptr(power)
	}

	return stats, nil
}

// queryPodgov derives utilization from the podgov load counters only.
// Memory, temperature, and power are not available in this tier.
func (b *jetsonBackend) queryPodgov() (AcceleratorStats, error) {
	gpcLoad, err := b.readIntRel(thorGPCLoadTarget)
	if err != nil {
		return AcceleratorStats{}, err
	}
	gpcMax, err := b.readIntRel(thorGPCLoadMax)
	if err != nil {
		return AcceleratorStats{}, err
	}

	var utilPct float64
	if gpcMax > 0 {
		utilPct = float64(gpcLoad) / float64(gpcMax) * 100
	}

	// The display cluster counters are best-effort: use the larger of the
	// two loads when both are readable.
	if nvdLoad, err := b.readIntRel(thorNVDLoadTarget); err == nil {
		if nvdMax, err := b.readIntRel(thorNVDLoadMax); err == nil && nvdMax > 0 {
			if nvdPct := float64(nvdLoad) / float64(nvdMax) * 100; nvdPct > utilPct {
				utilPct = nvdPct
			}
		}
	}

	return AcceleratorStats{
		Label:   "Jetson (podgov)",
		Name:    b.deviceName,
		UtilPct: utilPct,
	}, nil
}

// readGPUTemp scans thermal zones for a GPU sensor. Values are in
// millidegrees Celsius.
func (b *jetsonBackend) readGPUTemp() (float64, bool) {
	zones, _ := filepath.Glob(filepath.Join(b.root, thermalZoneGlob))
	for _, zone := range zones {
		zoneType, err := os.ReadFile(filepath.Join(zone, "type"))
		if err != nil {
			continue
		}
		if !strings.Contains(strings.ToLower(string(zoneType)), "gpu") {
			continue
		}
		milli, err := readIntFile(filepath.Join(zone, "temp"))
		if err != nil {
			continue
		}
		return float64(milli) / 1000, true
	}
	return 0, false
}

// readPower scans hwmon devices for an INA3221 rail monitor. Values are in
// microwatts.
func (b *jetsonBackend) readPower() (float64, bool) {
	monitors, _ := filepath.Glob(filepath.Join(b.root, hwmonGlob))
	for _, monitor := range monitors {
		name, err := os.ReadFile(filepath.Join(monitor, "name"))
		if err != nil || !strings.Contains(strings.ToLower(string(name)), "ina3221") {
			continue
		}
		micro, err := readIntFile(filepath.Join(monitor, "power1_input"))
		if err != nil {
			continue
		}
		return float64(micro) / 1e6, true
	}
	return 0, false
}

func (b *jetsonBackend) Close() error { return nil }

func (b *jetsonBackend) readableRel(rel string) bool {
	_, err := os.ReadFile(filepath.Join(b.root, rel))
	return err == nil
}

func (b *jetsonBackend) readIntRel(rel string) (int64, error) {
	return readIntFile(filepath.Join(b.root, rel))
}

func readIntFile(path string) (int64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telemetry: parse %s: %w", path, err)
	}
	return v, nil
}
