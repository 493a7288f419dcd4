package shutdown

import (
	"context"
	"io"
	"net/http"
)

// HTTPServerComponent wraps an http.Server. Its shutdown stops accepting
// new connections and drains in-flight requests.
type HTTPServerComponent struct {
	name   string
	server *http.Server
}

// NewHTTPServerComponent creates an HTTP server shutdown component.
func NewHTTPServerComponent(name string, server *http.Server) *HTTPServerComponent {
	return &HTTPServerComponent{name: name, server: server}
}

func (c *HTTPServerComponent) Name() string { return c.name }

func (c *HTTPServerComponent) Shutdown(ctx context.Context) error {
	return c.server.Shutdown(ctx)
}

// CloserComponent wraps an io.Closer, such as a database store.
type CloserComponent struct {
	name   string
	closer io.Closer
}

// NewCloserComponent creates a closer shutdown component.
func NewCloserComponent(name string, closer io.Closer) *CloserComponent {
	return &CloserComponent{name: name, closer: closer}
}

func (c *CloserComponent) Name() string { return c.name }

func (c *CloserComponent) Shutdown(ctx context.Context) error {
	return c.closer.Close()
}

// Stopper is the interface for components with a blocking Stop, such as
// the network engine's maintenance loop.
type Stopper interface {
	Stop()
}

// StopperComponent wraps a Stopper. Stop blocks until in-flight work
// settles, so the call is raced against the shutdown deadline.
type StopperComponent struct {
	name    string
	stopper Stopper
}

// NewStopperComponent creates a stopper shutdown component.
func NewStopperComponent(name string, stopper Stopper) *StopperComponent {
	return &StopperComponent{name: name, stopper: stopper}
}

func (c *StopperComponent) Name() string { return c.name }

func (c *StopperComponent) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.stopper.Stop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FuncComponent wraps a plain function as a component.
type FuncComponent struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFuncComponent creates a function-based shutdown component.
func NewFuncComponent(name string, fn func(ctx context.Context) error) *FuncComponent {
	return &FuncComponent{name: name, fn: fn}
}

func (c *FuncComponent) Name() string { return c.name }

func (c *FuncComponent) Shutdown(ctx context.Context) error {
	return c.fn(ctx)
}
