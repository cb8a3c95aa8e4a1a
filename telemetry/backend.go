// This file contains the Backend interface and the backend selection logic.
package telemetry

import (
	"fmt"

	"go.uber.org/zap"
)

// Backend is one concrete strategy for obtaining accelerator stats from a
// hardware/software platform. Implementations are initialized by their
// constructor; a constructor error is non-fatal to the Collector, which
// simply records the backend as unavailable.
type Backend interface {
	// Variant identifies the backend implementation.
	Variant() Variant

	// DeviceName returns the accelerator name learned at init,
	// or "unknown" when detection failed.
	DeviceName() string

	// Query reads current accelerator stats. An error from Query while the
	// backend was previously healthy causes the Collector to disable it
	// for the remainder of the process lifetime.
	Query() (AcceleratorStats, error)

	// Close releases the underlying handle. It must be idempotent and
	// tolerate a backend that never initialized successfully.
	Close() error
}

// Variant names a backend implementation.
type Variant string

const (
	// VariantAuto requests runtime detection.
	VariantAuto Variant = "auto"

	// VariantNVML is the generic NVIDIA accelerator API backend.
	VariantNVML Variant = "nvml"

	// VariantJetson is the tiered Jetson backend (sysfs full stats with a
	// podgov counter fallback tier).
	VariantJetson Variant = "jetson"

	// VariantNone is the CPU/RAM-only fallback with no accelerator.
	VariantNone Variant = "none"
)

// ParseVariant converts a configuration string to a Variant.
// An empty string means auto-detect.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case "", VariantAuto:
		return VariantAuto, nil
	case VariantNVML, VariantJetson, VariantNone:
		return Variant(s), nil
	default:
		return VariantAuto, fmt.Errorf("telemetry: unknown backend variant %q", s)
	}
}

// Probes are the runtime checks used by backend selection. They are
// injectable so selection is testable without real hardware.
type Probes struct {
	// JetsonSysfs reports whether Jetson-specific devfreq/podgov
	// filesystem markers are present.
	JetsonSysfs func() bool

	// NVML reports whether the NVML library can be initialized.
	NVML func() bool
}

// DefaultProbes returns probes that check the live host.
func DefaultProbes() Probes {
	return Probes{
		JetsonSysfs: jetsonSysfsPresent,
		NVML:        nvmlUsable,
	}
}

// SelectVariant resolves the backend variant to construct. An explicit
// override wins; otherwise device-specific filesystem markers are probed,
// then the generic accelerator API, and finally the CPU-only fallback.
// Pure function over the injected probes.
func SelectVariant(override Variant, probes Probes) Variant {
	if override != "" && override != VariantAuto {
		return override
	}
	if probes.JetsonSysfs != nil && probes.JetsonSysfs() {
		return VariantJetson
	}
	if probes.NVML != nil && probes.NVML() {
		return VariantNVML
	}
	return VariantNone
}

// newBackend constructs the selected backend variant. The returned error
// reports an init failure; the backend value is still usable for labeling
// and Close, and the Collector records it as unavailable.
func newBackend(variant Variant, deviceIndex int, logger *zap.Logger) (Backend, error) {
	switch variant {
	case VariantNVML:
		return newNVMLBackend(deviceIndex, logger)
	case VariantJetson:
		return newJetsonBackend(logger)
	default:
		return newNoneBackend(), nil
	}
}
