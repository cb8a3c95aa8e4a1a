package telemetry

import "testing"

func TestRingOldestFirst(t *testing.T) {
	r := newRing(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		r.push(v)
	}

	got := r.values()
	want := []float64{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("values() length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("values()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRingPartialFill(t *testing.T) {
	r := newRing(5)
	r.push(7)
	r.push(8)

	got := r.values()
	if len(got) != 2 {
		t.Fatalf("values() length = %d, want 2", len(got))
	}
	if got[0] != 7 || got[1] != 8 {
		t.Errorf("values() = %v, want [7 8]", got)
	}
}

func TestNewRingRejectsBadCapacity(t *testing.T) {
	r := newRing(0)
	if len(r.data) != DefaultHistoryCapacity {
		t.Errorf("capacity = %d, want default %d", len(r.data), DefaultHistoryCapacity)
	}
}

func TestHistoryLengthBounded(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		appends  int
		wantLen  int
	}{
		{"under capacity", 10, 4, 4},
		{"at capacity", 10, 10, 10},
		{"over capacity", 10, 25, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHistory(tt.capacity)
			for i := 0; i < tt.appends; i++ {
				h.Append(Snapshot{CPUUtilPct: float64(i)})
			}
			series := h.Series()
			if len(series.CPUUtil) != tt.wantLen {
				t.Errorf("CPUUtil length = %d, want %d", len(series.CPUUtil), tt.wantLen)
			}
			if h.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", h.Len(), tt.wantLen)
			}
		})
	}
}

func TestHistoryTracksAllFourSeries(t *testing.T) {
	h := NewHistory(4)
	h.Append(Snapshot{
		AcceleratorUtilPct:   55,
		AcceleratorMemUsedGB: 3.5,
		CPUUtilPct:           21,
		RAMUsedGB:            12,
	})

	series := h.Series()
	if got := series.AcceleratorUtil[0]; got != 55 {
		t.Errorf("AcceleratorUtil[0] = %v, want 55", got)
	}
	if got := series.AcceleratorMemUsed[0]; got != 3.5 {
		t.Errorf("AcceleratorMemUsed[0] = %v, want 3.5", got)
	}
	if got := series.CPUUtil[0]; got != 21 {
		t.Errorf("CPUUtil[0] = %v, want 21", got)
	}
	if got := series.RAMUsed[0]; got != 12 {
		t.Errorf("RAMUsed[0] = %v, want 12", got)
	}
}

func TestHistorySeriesIsACopy(t *testing.T) {
	h := NewHistory(4)
	h.Append(Snapshot{CPUUtilPct: 1})

	before := h.Series()
	h.Append(Snapshot{CPUUtilPct: 2})

	if len(before.CPUUtil) != 1 {
		t.Fatalf("earlier Series() grew to length %d after append", len(before.CPUUtil))
	}
	if before.CPUUtil[0] != 1 {
		t.Errorf("earlier Series() mutated: CPUUtil[0] = %v, want 1", before.CPUUtil[0])
	}
}
