// This file contains the Sampler, the single periodic poll loop that drives
// a Collector and caches the most recent snapshot for non-blocking readers.
package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval is the expected sampling cadence.
const DefaultPollInterval = time.Second

// Sampler drives Collector.Stats at a fixed cadence from one background
// goroutine, satisfying the collector's single-poll-loop contract. Consumers
// (the broadcaster, the HTTP surface) drain Latest at their own cadence and
// never trigger sampling themselves.
type Sampler struct {
	collector *Collector
	interval  time.Duration
	logger    *zap.Logger

	latest atomic.Pointer[Snapshot]

	// onSnapshot, when set, is invoked after each poll outside the
	// collector lock (persistence hook).
	onSnapshot func(Snapshot)

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewSampler creates a sampler polling collector every interval.
// An interval below 100ms falls back to DefaultPollInterval.
func NewSampler(collector *Collector, interval time.Duration, logger *zap.Logger) *Sampler {
	if interval < 100*time.Millisecond {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{
		collector: collector,
		interval:  interval,
		logger:    logger,
	}
}

// OnSnapshot registers a callback invoked with every polled snapshot.
// Must be called before Start.
func (s *Sampler) OnSnapshot(fn func(Snapshot)) {
	s.onSnapshot = fn
}

// Start begins polling in a background goroutine. A first sample is taken
// immediately so Latest is populated before the first tick.
func (s *Sampler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop halts polling and waits for the loop to exit. Safe to call more than
// once.
func (s *Sampler) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

// Latest returns the most recent snapshot without blocking. The second
// return is false until the first poll completes.
func (s *Sampler) Latest() (Snapshot, bool) {
	snap := s.latest.Load()
	if snap == nil {
		return Snapshot{}, false
	}
	return *snap, true
}

func (s *Sampler) run(ctx context.Context) {
	defer s.wg.Done()

	s.poll()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

func (s *Sampler) poll() {
	snap := s.collector.Stats()
	s.latest.Store(&snap)
	if s.onSnapshot != nil {
		s.onSnapshot(snap)
	}
}
