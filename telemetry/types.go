// Package telemetry provides hardware telemetry collection for machines
// running an interactive vision workload. It samples accelerator, CPU, and
// RAM state through a platform-specific backend and keeps a bounded rolling
// history for the dashboard.
package telemetry

// Snapshot is one immutable reading of accelerator, CPU, and RAM state.
// Every field has a defined fallback value, so a Snapshot is always
// constructible even when the accelerator backend is unavailable;
// unavailability is communicated through PlatformLabel and zeroed
// accelerator fields, never by omitting the snapshot.
type Snapshot struct {
	// PlatformLabel describes the detected backend and its health,
	// e.g. "NVIDIA (NVML)" or "Jetson (monitoring unavailable)".
	PlatformLabel string `json:"platform"`

	// AcceleratorName is the device name, "unknown" when undetected.
	AcceleratorName string `json:"gpu_name"`

	// AcceleratorUtilPct is the accelerator utilization percentage (0-100).
	AcceleratorUtilPct float64 `json:"gpu_percent"`

	// AcceleratorMemUsedGB is accelerator memory in use, in GiB.
	AcceleratorMemUsedGB float64 `json:"vram_used_gb"`

	// AcceleratorMemTotalGB is total accelerator memory, in GiB.
	AcceleratorMemTotalGB float64 `json:"vram_total_gb"`

	// AcceleratorMemPct is accelerator memory usage percentage (0-100).
	AcceleratorMemPct float64 `json:"vram_percent"`

	// TemperatureC is the accelerator temperature in Celsius.
	// Nil means the backend cannot supply it; zero is a valid reading.
	TemperatureC *float64 `json:"temp_c,omitempty"`

	// PowerW is the accelerator power draw in watts.
	// Nil means the backend cannot supply it; zero is a valid reading.
	PowerW *float64 `json:"power_w,omitempty"`

	// CPUModel is the host CPU model string, "Unknown CPU" fallback.
	CPUModel string `json:"cpu_model"`

	// CPUUtilPct is the host CPU utilization percentage (0-100).
	CPUUtilPct float64 `json:"cpu_percent"`

	// RAMUsedGB is host memory in use, in GiB.
	RAMUsedGB float64 `json:"ram_used_gb"`

	// RAMTotalGB is total host memory, in GiB.
	RAMTotalGB float64 `json:"ram_total_gb"`

	// RAMPct is host memory usage percentage (0-100).
	RAMPct float64 `json:"ram_percent"`

	// Hostname identifies the sampled machine.
	Hostname string `json:"hostname"`
}

// AcceleratorStats is the backend-facing portion of a Snapshot: everything a
// platform backend can report about the accelerator in one query.
type AcceleratorStats struct {
	// Label is the platform label fragment for this backend and mode,
	// e.g. "NVIDIA (NVML)" or "Jetson (podgov)".
	Label string

	// Name is the accelerator device name.
	Name string

	UtilPct    float64
	MemUsedGB  float64
	MemTotalGB float64
	MemPct     float64

	// TemperatureC and PowerW are nil when the backend (or its current
	// sub-mode) cannot supply them.
	TemperatureC *float64
	PowerW       *float64
}

// SystemStats is the CPU/RAM/host portion of a Snapshot, sampled
// independently of the accelerator backend.
type SystemStats struct {
	CPUModel   string
	CPUUtilPct float64
	RAMUsedGB  float64
	RAMTotalGB float64
	RAMPct     float64
	Hostname   string
}

const gib = 1024 * 1024 * 1024

// bytesToGiB converts a byte count to GiB.
func bytesToGiB(b uint64) float64 {
	return float64(b) / gib
}

// float64Ptr returns a pointer to v. Used for optional snapshot fields
// where nil means "not supplied" and zero is a valid reading.
func float64Ptr(v float64) *float64 {
	return &v
}
