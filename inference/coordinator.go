// Package inference provides the frame-throttled coordination layer between
// a high-rate video frame producer and a slow, latency-variable
// vision-language backend. The hot frame path never waits on inference;
// callers always read the most recent completed description instead.
package inference

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"livevlm/vision"
)

// Describer is the contract this layer requires from the inference backend:
// one logical network-bound call that accepts an image and a prompt and
// returns text. It is assumed to fail independently and intermittently.
type Describer interface {
	Infer(ctx context.Context, imageJPEG []byte, prompt string) (string, error)
}

// Result is the (text, busy) pair served to readers. It is replaced as a
// whole through an atomic pointer swap, so readers see either the previous
// or the new complete value, never a partial write.
type Result struct {
	// Text is the latest completed description. It may be stale (from
	// several sampling intervals ago) and is empty until the first call
	// completes.
	Text string `json:"text"`

	// IsProcessing reports whether a call is currently outstanding.
	IsProcessing bool `json:"is_processing"`
}

// DefaultSamplingInterval dispatches one inference call per 30 frames,
// bounding backend call rate independent of the video frame rate.
const DefaultSamplingInterval = 30

// defaultCallTimeout bounds a single backend call. There is no mid-call
// cancellation beyond this; a slow call keeps the coordinator busy and
// simply delays the next dispatch.
const defaultCallTimeout = 60 * time.Second

// Config controls coordinator behavior.
type Config struct {
	// SamplingInterval is the number of incoming frames between two
	// dispatched calls (K). Values below 1 fall back to the default.
	SamplingInterval int

	// Prompt is sent with every frame.
	Prompt string

	// MaxImageDimension bounds the dispatched frame's longest side.
	MaxImageDimension int

	// CallTimeout bounds a single backend call.
	CallTimeout time.Duration
}

// Coordinator throttles inference dispatch to every Kth frame and at most
// one outstanding call, while serving the last completed result without
// blocking. It exclusively owns the in-flight call slot and the result.
type Coordinator struct {
	backend Describer
	cfg     Config
	logger  *zap.Logger

	// busy gates dispatch: at most one call is ever outstanding.
	busy atomic.Bool

	// result holds the current (text, busy-flag) pair, replaced whole.
	result atomic.Pointer[Result]

	// lastFrame keeps the single most recent raw frame for potential
	// reuse; no frame backlog is retained.
	lastFrame atomic.Pointer[image.Image]

	dispatches atomic.Uint64

	inflight sync.WaitGroup
}

// NewCoordinator creates a coordinator dispatching to backend.
func NewCoordinator(backend Describer, cfg Config, logger *zap.Logger) *Coordinator {
	if cfg.SamplingInterval < 1 {
		cfg.SamplingInterval = DefaultSamplingInterval
	}
	if cfg.MaxImageDimension < 1 {
		cfg.MaxImageDimension = vision.DefaultMaxDimension
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		backend: backend,
		cfg:     cfg,
		logger:  logger,
	}
	c.result.Store(&Result{})
	return c
}

// SubmitFrame is the producer call on the hot path. It decides
// dispatch-or-skip in O(1) and returns immediately; frame encoding and the
// backend call run in a background goroutine. A frame is dispatched only
// when its index is a multiple of the sampling interval and no call is
// outstanding. Nil frames are ignored.
func (c *Coordinator) SubmitFrame(frame image.Image, index uint64) {
	if frame == nil {
		return
	}
	c.lastFrame.Store(&frame)

	if index%uint64(c.cfg.SamplingInterval) != 0 {
		return
	}
	if !c.busy.CompareAndSwap(false, true) {
		// A call is outstanding; skip regardless of index.
		return
	}

	prev := c.result.Load()
	c.result.Store(&Result{Text: prev.Text, IsProcessing: true})
	c.dispatches.Add(1)

	c.inflight.Add(1)
	go c.dispatch(frame, index)
}

// dispatch runs one backend call and completes it into the result slot.
// Completion is a single pointer swap of the full (text, flag) pair.
func (c *Coordinator) dispatch(frame image.Image, index uint64) {
	defer c.inflight.Done()

	text, err := c.describe(frame)

	prev := c.result.Load()
	if err != nil {
		// Keep the previous text; an error never overwrites it.
		c.result.Store(&Result{Text: prev.Text, IsProcessing: false})
		c.busy.Store(false)
		c.logger.Warn("inference call failed",
			zap.Uint64("frame_index", index),
			zap.Error(err))
		return
	}

	c.result.Store(&Result{Text: text, IsProcessing: false})
	c.busy.Store(false)
	c.logger.Debug("inference call completed",
		zap.Uint64("frame_index", index),
		zap.Int("text_len", len(text)))
}

func (c *Coordinator) describe(frame image.Image) (string, error) {
	payload, err := vision.PrepareFrame(frame, c.cfg.MaxImageDimension)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
	defer cancel()
	return c.backend.Infer(ctx, payload, c.cfg.Prompt)
}

// CurrentResponse returns the latest completed text (possibly stale) and
// whether a call is outstanding. It always returns immediately and is safe
// for any number of concurrent callers.
func (c *Coordinator) CurrentResponse() (string, bool) {
	r := c.result.Load()
	return r.Text, r.IsProcessing
}

// CurrentResult returns the latest (text, busy) pair as one value.
func (c *Coordinator) CurrentResult() Result {
	return *c.result.Load()
}

// LastFrame returns the most recently submitted frame, if any.
func (c *Coordinator) LastFrame() (image.Image, bool) {
	frame := c.lastFrame.Load()
	if frame == nil {
		return nil, false
	}
	return *frame, true
}

// Dispatches returns how many backend calls have been started.
func (c *Coordinator) Dispatches() uint64 {
	return c.dispatches.Load()
}

// waitIdle blocks until no call is in flight. Test hook.
func (c *Coordinator) waitIdle() {
	c.inflight.Wait()
}
