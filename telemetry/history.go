// This file contains the fixed-capacity ring buffer and the four-series
// rolling history kept by the Collector.
package telemetry

import "sync"

// DefaultHistoryCapacity is one minute of samples at a 1 Hz poll cadence.
const DefaultHistoryCapacity = 60

// ring is a fixed-capacity float64 buffer that silently evicts the oldest
// sample once full. Append is O(1). Not safe for concurrent use on its own;
// History serializes access.
type ring struct {
	data []float64
	head int // index where the next value is written
	size int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	return &ring{data: make([]float64, capacity)}
}

func (r *ring) push(v float64) {
	r.data[r.head] = v
	r.head = (r.head + 1) % len(r.data)
	if r.size < len(r.data) {
		r.size++
	}
}

// values returns the buffered samples oldest-first as a fresh slice.
func (r *ring) values() []float64 {
	out := make([]float64, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.data[(r.head-r.size+i+len(r.data))%len(r.data)]
	}
	return out
}

// Series is a point-in-time copy of the rolling history, oldest-first.
// It is returned by value and never reflects later appends.
type Series struct {
	AcceleratorUtil    []float64 `json:"gpu_util"`
	AcceleratorMemUsed []float64 `json:"vram_used"`
	CPUUtil            []float64 `json:"cpu_util"`
	RAMUsed            []float64 `json:"ram_used"`
}

// History keeps the four rolling sample series behind a single mutex.
// It lives for the lifetime of its Collector.
type History struct {
	mu                 sync.Mutex
	acceleratorUtil    *ring
	acceleratorMemUsed *ring
	cpuUtil            *ring
	ramUsed            *ring
}

// NewHistory creates a History holding up to capacity samples per series.
// A capacity below 1 falls back to DefaultHistoryCapacity.
func NewHistory(capacity int) *History {
	return &History{
		acceleratorUtil:    newRing(capacity),
		acceleratorMemUsed: newRing(capacity),
		cpuUtil:            newRing(capacity),
		ramUsed:            newRing(capacity),
	}
}

// Append records one snapshot into all four series.
func (h *History) Append(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.acceleratorUtil.push(s.AcceleratorUtilPct)
	h.acceleratorMemUsed.push(s.AcceleratorMemUsedGB)
	h.cpuUtil.push(s.CPUUtilPct)
	h.ramUsed.push(s.RAMUsedGB)
}

// Series returns copies of all four series, oldest-first.
func (h *History) Series() Series {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Series{
		AcceleratorUtil:    h.acceleratorUtil.values(),
		AcceleratorMemUsed: h.acceleratorMemUsed.values(),
		CPUUtil:            h.cpuUtil.values(),
		RAMUsed:            h.ramUsed.values(),
	}
}

// Len returns the number of samples currently buffered.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cpuUtil.size
}
