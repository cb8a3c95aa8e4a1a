package webui

import (
	"context"
	"time"

	"go.uber.org/zap"

	"livevlm/inference"
	"livevlm/telemetry"
)

// StatsSource yields the most recent cached telemetry snapshot.
// It must not trigger new hardware queries.
type StatsSource interface {
	Latest() (telemetry.Snapshot, bool)
}

// ResultSource yields the current inference result.
type ResultSource interface {
	CurrentResult() inference.Result
}

// DefaultPushInterval is how often the poller pushes cached state to
// connected clients.
const DefaultPushInterval = time.Second

// Poller reads cached telemetry and inference state on a fixed cadence
// and pushes it through the broadcaster. It never blocks on hardware or
// the inference backend: both sources return cached values.
type Poller struct {
	stats       StatsSource
	results     ResultSource
	broadcaster *Broadcaster
	interval    time.Duration
	logger      *zap.Logger

	lastResult inference.Result
	pushed     bool
}

// NewPoller creates a Poller. A non-positive interval falls back to
// DefaultPushInterval.
func NewPoller(stats StatsSource, results ResultSource, b *Broadcaster, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPushInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		stats:       stats,
		results:     results,
		broadcaster: b,
		interval:    interval,
		logger:      logger.Named("poller"),
	}
}

// Run pushes updates until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("push loop started", zap.Duration("interval", p.interval))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("push loop stopped")
			return
		case <-ticker.C:
			p.pushOnce()
		}
	}
}

// pushOnce broadcasts the latest snapshot and, when it changed since the
// previous tick, the current inference result. Snapshots go out every
// tick so clients see live utilization; VLM text changes far less often
// and is only sent on transitions.
func (p *Poller) pushOnce() {
	if snap, ok := p.stats.Latest(); ok {
		p.broadcaster.BroadcastStats(snap)
	}

	res := p.results.CurrentResult()
	if !p.pushed || res != p.lastResult {
		p.broadcaster.BroadcastVLMResponse(res)
		p.lastResult = res
		p.pushed = true
	}
}
