// Package shutdown coordinates graceful teardown of coordinator components.
// It listens for SIGTERM/SIGINT, stops accepting new work, waits for in-flight
// operations to finish, and closes resources before the process exits.
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// DefaultTimeout bounds how long a graceful shutdown may take before the
// process is forced down.
const DefaultTimeout = 30 * time.Second

// Component is anything that can be shut down cleanly. Shutdown should
// return before the context deadline expires.
type Component interface {
	Name() string
	Shutdown(ctx context.Context) error
}

// Coordinator tracks registered components and tears them down together
// when a termination signal arrives.
type Coordinator struct {
	components []Component
	timeout    time.Duration
	logger     *slog.Logger
	mu         sync.Mutex

	// signalCh lets tests inject signals instead of sending real ones.
	signalCh chan os.Signal

	once     sync.Once
	done     chan struct{}
	exitCode int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout sets the shutdown deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) { c.timeout = timeout }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithSignalChannel sets a custom signal channel. Intended for tests.
func WithSignalChannel(ch chan os.Signal) Option {
	return func(c *Coordinator) { c.signalCh = ch }
}

// NewCoordinator creates a shutdown coordinator.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a component to the teardown set.
func (c *Coordinator) Register(component Component) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components = append(c.components, component)
	c.logger.Debug("registered shutdown component", "name", component.Name())
}

// WaitForSignal blocks until SIGTERM or SIGINT is received, then runs
// Shutdown.
func (c *Coordinator) WaitForSignal() {
	sigCh := c.signalCh
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}

	sig := <-sigCh
	c.logger.Info("received shutdown signal", "signal", sig)

	c.Shutdown()
}

// Shutdown tears down every registered component concurrently, waiting up
// to the configured timeout. It is safe to call more than once; only the
// first call does work.
func (c *Coordinator) Shutdown() {
	c.once.Do(func() {
		c.logger.Info("initiating graceful shutdown", "timeout", c.timeout)

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		c.mu.Lock()
		components := make([]Component, len(c.components))
		copy(components, c.components)
		c.mu.Unlock()

		var wg sync.WaitGroup
		for _, component := range components {
			wg.Add(1)
			go func(comp Component) {
				defer wg.Done()
				if err := comp.Shutdown(ctx); err != nil {
					c.logger.Error("component shutdown error", "name", comp.Name(), "error", err)
					return
				}
				c.logger.Info("component shutdown complete", "name", comp.Name())
			}(component)
		}

		finished := make(chan struct{})
		go func() {
			wg.Wait()
			close(finished)
		}()

		select {
		case <-finished:
			c.logger.Info("all components shut down")
			c.exitCode = 0
		case <-ctx.Done():
			c.logger.Warn("shutdown timeout exceeded, forcing termination")
			c.exitCode = 1
		}

		close(c.done)
	})
}

// Wait blocks until Shutdown has finished.
func (c *Coordinator) Wait() {
	<-c.done
}

// ExitCode reports 0 for a clean shutdown, 1 if the timeout forced it.
func (c *Coordinator) ExitCode() int {
	return c.exitCode
}
