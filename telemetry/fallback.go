// This file contains the CPU/RAM-only backend used when no accelerator is
// detected or the caller explicitly disables accelerator monitoring.
package telemetry

// noneBackend reports no accelerator. It always "succeeds" with zeroed
// accelerator fields so the CPU/RAM portion of the snapshot keeps flowing.
type noneBackend struct{}

func newNoneBackend() *noneBackend { return &noneBackend{} }

func (*noneBackend) Variant() Variant { return VariantNone }

func (*noneBackend) DeviceName() string { return "unknown" }

func (*noneBackend) Query() (AcceleratorStats, error) {
	return AcceleratorStats{
		Label: "no accelerator detected",
		Name:  "unknown",
	}, nil
}

func (*noneBackend) Close() error { return nil }
