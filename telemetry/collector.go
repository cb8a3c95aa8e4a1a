// This file contains the Collector, which wraps a platform backend with
// fail-fast disabling, rate-limited unavailability logging, and the rolling
// history. All mutable state is scoped to the instance; multiple collectors
// do not interfere.
package telemetry

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// unavailableRelogEvery throttles the "still unavailable" summary log to one
// line per minute at the expected 1 Hz poll cadence.
const unavailableRelogEvery = 60

// Config controls collector construction.
type Config struct {
	// HistoryCapacity is the per-series rolling history size.
	// Values below 1 fall back to DefaultHistoryCapacity.
	HistoryCapacity int

	// BackendOverride forces a specific backend variant.
	// VariantAuto (or empty) enables runtime detection.
	BackendOverride Variant

	// DeviceIndex selects the accelerator on multi-device hosts.
	DeviceIndex int
}

// Collector produces hardware snapshots on demand while isolating backend
// failures from the rest of the system. Stats, HistorySeries, and Close
// never panic and never return errors; degradation is value-level.
//
// Stats performs blocking I/O and is meant to be driven by a single periodic
// poll loop per collector (see Sampler); it is serialized internally.
type Collector struct {
	mu      sync.Mutex
	backend Backend
	history *History
	logger  *zap.Logger

	cpuModel string

	available bool
	// unavailablePolls counts polls taken on the unavailable path, for the
	// rate-limited re-log.
	unavailablePolls int
	closed           bool
}

// New detects and initializes a backend per cfg and returns a ready
// collector. Backend init failure is non-fatal: the collector is still
// constructed and reports CPU/RAM-only snapshots.
func New(cfg Config, logger *zap.Logger) *Collector {
	variant := SelectVariant(cfg.BackendOverride, DefaultProbes())
	backend, err := newBackend(variant, cfg.DeviceIndex, logger)
	return NewWithBackend(backend, err, cfg.HistoryCapacity, logger)
}

// NewWithBackend wraps an already-constructed backend. initErr is the
// backend's init failure, if any; it is logged once and the collector starts
// in the unavailable state. Used by New and by tests injecting stub backends.
func NewWithBackend(backend Backend, initErr error, historyCapacity int, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		backend:   backend,
		history:   NewHistory(historyCapacity),
		logger:    logger,
		cpuModel:  CPUModel(),
		available: initErr == nil,
	}
	if initErr != nil {
		logger.Warn("telemetry backend unavailable at init",
			zap.String("variant", string(backend.Variant())),
			zap.Error(initErr))
	}
	return c
}

// Variant returns the wrapped backend's variant.
func (c *Collector) Variant() Variant {
	return c.backend.Variant()
}

// Available reports whether the backend is currently serving accelerator
// stats.
func (c *Collector) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

// Stats samples the host and returns a fully populated snapshot. The CPU/RAM
// portion is always sampled; accelerator fields are zeroed when the backend
// is unavailable. The snapshot is appended to history before returning, so
// the dashboard sees continuity across backend failures.
//
// The first query failure after a healthy init is logged once and disables
// the backend for the remainder of the process; subsequent polls skip the
// backend entirely, with a summary line every 60th unavailable poll.
func (c *Collector) Stats() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	sys := sampleSystem(c.cpuModel)

	if !c.available {
		c.unavailablePolls++
		if c.unavailablePolls%unavailableRelogEvery == 0 {
			c.logger.Warn("accelerator monitoring still unavailable",
				zap.String("variant", string(c.backend.Variant())),
				zap.Int("polls", c.unavailablePolls))
		}
		snap := c.fallbackSnapshot(sys)
		c.history.Append(snap)
		return snap
	}

	acc, err := c.backend.Query()
	if err != nil {
		c.available = false
		c.unavailablePolls = 1
		c.logger.Error("accelerator stats query failed", zap.Error(err))
		c.logger.Warn("accelerator monitoring disabled, reporting CPU/RAM only",
			zap.String("variant", string(c.backend.Variant())))
		snap := c.fallbackSnapshot(sys)
		c.history.Append(snap)
		return snap
	}

	snap := Snapshot{
		PlatformLabel:         acc.Label,
		AcceleratorName:       acc.Name,
		AcceleratorUtilPct:    acc.UtilPct,
		AcceleratorMemUsedGB:  acc.MemUsedGB,
		AcceleratorMemTotalGB: acc.MemTotalGB,
		AcceleratorMemPct:     acc.MemPct,
		TemperatureC:          acc.TemperatureC,
		PowerW:                acc.PowerW,
		CPUModel:              sys.CPUModel,
		CPUUtilPct:            sys.CPUUtilPct,
		RAMUsedGB:             sys.RAMUsedGB,
		RAMTotalGB:            sys.RAMTotalGB,
		RAMPct:                sys.RAMPct,
		Hostname:              sys.Hostname,
	}
	c.history.Append(snap)
	return snap
}

// fallbackSnapshot builds the CPU/RAM-only snapshot served while the
// accelerator backend is unavailable.
func (c *Collector) fallbackSnapshot(sys SystemStats) Snapshot {
	return Snapshot{
		PlatformLabel:   c.unavailableLabel(),
		AcceleratorName: c.backend.DeviceName(),
		CPUModel:        sys.CPUModel,
		CPUUtilPct:      sys.CPUUtilPct,
		RAMUsedGB:       sys.RAMUsedGB,
		RAMTotalGB:      sys.RAMTotalGB,
		RAMPct:          sys.RAMPct,
		Hostname:        sys.Hostname,
	}
}

func (c *Collector) unavailableLabel() string {
	if name := c.backend.DeviceName(); name != "" && name != "unknown" {
		return fmt.Sprintf("%s (monitoring unavailable)", name)
	}
	switch c.backend.Variant() {
	case VariantNVML:
		return "NVIDIA (NVML unavailable)"
	case VariantJetson:
		return "Jetson (monitoring unavailable)"
	default:
		return "no accelerator detected"
	}
}

// HistorySeries returns oldest-first copies of the four rolling series.
// Callers never observe later appends through the returned slices.
func (c *Collector) HistorySeries() Series {
	return c.history.Series()
}

// Close releases the backend handle. Idempotent, tolerant of a backend that
// never initialized, and never escalates a cleanup failure beyond a log line.
func (c *Collector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if err := c.backend.Close(); err != nil {
		c.logger.Error("telemetry backend cleanup failed", zap.Error(err))
	}
}
