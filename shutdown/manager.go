package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Manager coordinates graceful shutdown: it cancels a shared context on
// SIGINT/SIGTERM, runs registered cleanup functions in priority order,
// and force-exits on a second signal.
//
// Usage:
//
//	manager := shutdown.NewManager(logger)
//	manager.Register("sampler", 20, func(ctx context.Context) error {
//	    sampler.Stop()
//	    return nil
//	})
//	manager.Start()
//	manager.Wait()
//	manager.Shutdown()
type Manager struct {
	logger   *zap.Logger
	timeout  time.Duration
	mu       sync.Mutex
	started  bool
	shutdown bool

	ctx    context.Context
	cancel context.CancelFunc

	registry *Registry
	signals  *SignalCounter
	sigChan  chan os.Signal
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout sets the shutdown timeout. Default is 30 seconds.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// NewManager creates a Manager ready to coordinate graceful shutdown.
func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:   logger,
		timeout:  30 * time.Second,
		ctx:      ctx,
		cancel:   cancel,
		registry: NewRegistry(),
		sigChan:  make(chan os.Signal, 1),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.signals = NewSignalCounter(2, func() {
		m.logger.Warn("second signal received, forcing immediate exit")
		os.Exit(1)
	})

	return m
}

// Context returns the context cancelled when shutdown begins.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup function. Lower priority runs first.
func (m *Manager) Register(name string, priority int, fn ShutdownFunc) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority))
}

// Start begins listening for SIGINT and SIGTERM. The first signal
// cancels the managed context; the second forces os.Exit(1).
// Safe to call more than once.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range m.sigChan {
			if m.signals.Increment() == 1 {
				m.logger.Info("shutdown signal received",
					zap.String("signal", sig.String()))
				m.cancel()
			}
		}
	}()
}

// Shutdown runs all registered cleanup functions within the timeout.
// Idempotent; repeat calls return nil.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	m.mu.Unlock()

	start := time.Now()
	m.cancel()
	m.logger.Info("shutting down",
		zap.Duration("timeout", m.timeout),
		zap.Strings("handlers", m.registry.Names()))

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	errs := m.registry.Shutdown(ctx)
	for _, err := range errs {
		m.logger.Error("cleanup failed", zap.Error(err))
	}

	signal.Stop(m.sigChan)
	close(m.sigChan)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown had %d errors", len(errs))
	}
	m.logger.Info("shutdown complete", zap.Duration("duration", time.Since(start)))
	return nil
}

// Wait blocks until the managed context is cancelled.
func (m *Manager) Wait() {
	<-m.ctx.Done()
}

// IsShuttingDown reports whether shutdown has been initiated.
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}
