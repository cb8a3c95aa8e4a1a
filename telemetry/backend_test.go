package telemetry

import "testing"

func probesReturning(jetson, nvml bool) Probes {
	return Probes{
		JetsonSysfs: func() bool { return jetson },
		NVML:        func() bool { return nvml },
	}
}

func TestSelectVariant(t *testing.T) {
	tests := []struct {
		name     string
		override Variant
		jetson   bool
		nvml     bool
		want     Variant
	}{
		{"override wins over probes", VariantNone, true, true, VariantNone},
		{"explicit nvml", VariantNVML, true, false, VariantNVML},
		{"jetson markers probed first", VariantAuto, true, true, VariantJetson},
		{"nvml when no jetson markers", VariantAuto, false, true, VariantNVML},
		{"cpu-only fallback", VariantAuto, false, false, VariantNone},
		{"empty override means auto", "", false, true, VariantNVML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectVariant(tt.override, probesReturning(tt.jetson, tt.nvml))
			if got != tt.want {
				t.Errorf("SelectVariant(%q) = %q, want %q", tt.override, got, tt.want)
			}
		})
	}
}

func TestSelectVariantNilProbes(t *testing.T) {
	if got := SelectVariant(VariantAuto, Probes{}); got != VariantNone {
		t.Errorf("SelectVariant with nil probes = %q, want %q", got, VariantNone)
	}
}

func TestParseVariant(t *testing.T) {
	tests := []struct {
		input   string
		want    Variant
		wantErr bool
	}{
		{"", VariantAuto, false},
		{"auto", VariantAuto, false},
		{"nvml", VariantNVML, false},
		{"jetson", VariantJetson, false},
		{"none", VariantNone, false},
		{"tegra", VariantAuto, true},
	}

	for _, tt := range tests {
		t.Run("input="+tt.input, func(t *testing.T) {
			got, err := ParseVariant(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVariant(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseVariant(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNoneBackendAlwaysSucceeds(t *testing.T) {
	b := newNoneBackend()
	stats, err := b.Query()
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if stats.UtilPct != 0 || stats.MemTotalGB != 0 {
		t.Errorf("Query() = %+v, want zeroed accelerator fields", stats)
	}
	if stats.TemperatureC != nil || stats.PowerW != nil {
		t.Error("Query() supplied temperature/power, want nil")
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
