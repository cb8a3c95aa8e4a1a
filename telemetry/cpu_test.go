package telemetry

import "testing"

func TestCPUModelNeverEmpty(t *testing.T) {
	if got := CPUModel(); got == "" {
		t.Error("CPUModel() empty, want model name or fallback")
	}
}

func TestSampleSystemFallbacks(t *testing.T) {
	stats := sampleSystem("")
	if stats.CPUModel != UnknownCPU {
		t.Errorf("CPUModel = %q, want %q for empty input", stats.CPUModel, UnknownCPU)
	}
	if stats.Hostname == "" {
		t.Error("Hostname empty, want value or fallback")
	}
	if stats.CPUUtilPct < 0 || stats.RAMPct < 0 {
		t.Error("negative utilization values")
	}
	if stats.RAMTotalGB <= 0 {
		t.Errorf("RAMTotalGB = %v, want host memory", stats.RAMTotalGB)
	}
}
