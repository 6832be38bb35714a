package gpu

import (
	"context"
	"fmt"
	"sync"
)

// Status is the lifecycle state of a Context.
//
// State machine:
//
//	Uninitialized --Init--> Ready --MarkLost--> Lost
//	Ready|Lost --Release--> Released
//
// Lost is terminal for the instance; recovery requires a new Context.
type Status int

const (
	// StatusUninitialized is the state before Init.
	StatusUninitialized Status = iota

	// StatusReady means the device and queue are negotiated and usable.
	StatusReady

	// StatusLost means the device was lost. Terminal.
	StatusLost

	// StatusReleased means the device was destroyed. Terminal.
	StatusReleased
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "Uninitialized"
	case StatusReady:
		return "Ready"
	case StatusLost:
		return "Lost"
	case StatusReleased:
		return "Released"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Context owns the compute device and queue. It is an explicit value
// threaded into every dependent component; there is no hidden process
// global. One top-level orchestrator owns its lifecycle, and a single
// goroutine drives all submissions against it.
type Context struct {
	mu      sync.Mutex
	status  Status
	adapter Adapter
}

// NewContext creates an uninitialized context.
func NewContext() *Context {
	return &Context{status: StatusUninitialized}
}

// Init negotiates an adapter and device, trying registered backends in
// priority order. It returns ErrUnsupported when no backend is registered
// or available, and ErrDeviceRequestFailed when every backend's device
// negotiation failed. Init on an already-Ready context is a no-op.
func (c *Context) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case StatusReady:
		return nil
	case StatusReleased:
		return ErrContextReleased
	case StatusLost:
		return ErrContextLost
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	names := RegisteredBackends()
	if len(names) == 0 {
		return ErrUnsupported
	}

	var lastErr error
	for _, name := range names {
		factory := backendFactory(name)
		if factory == nil {
			continue
		}
		adapter, err := factory()
		if err != nil {
			lastErr = err
			slogger().Debug("gpu: backend unavailable", "backend", name, "error", err)
			continue
		}
		c.adapter = adapter
		c.status = StatusReady
		slogger().Info("gpu: context ready", "backend", adapter.Name())
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrDeviceRequestFailed, lastErr)
	}
	return ErrUnsupported
}

// InitBackend is like Init but pins a specific backend by name.
func (c *Context) InitBackend(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case StatusReady:
		return nil
	case StatusReleased:
		return ErrContextReleased
	case StatusLost:
		return ErrContextLost
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	factory := backendFactory(name)
	if factory == nil {
		return fmt.Errorf("%w: backend %q not registered", ErrUnsupported, name)
	}
	adapter, err := factory()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceRequestFailed, err)
	}
	c.adapter = adapter
	c.status = StatusReady
	slogger().Info("gpu: context ready", "backend", adapter.Name())
	return nil
}

// Status returns the current lifecycle state.
func (c *Context) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Backend returns the active backend name, or "" before Init.
func (c *Context) Backend() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.adapter == nil {
		return ""
	}
	return c.adapter.Name()
}

// Release destroys the device and transitions to Released. Idempotent:
// a second Release is a no-op. Any subsequent operation against resources
// created under this context fails with ErrContextReleased.
func (c *Context) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusReleased {
		return
	}
	if c.adapter != nil {
		c.adapter.Close()
		c.adapter = nil
	}
	c.status = StatusReleased
	slogger().Info("gpu: context released")
}

// MarkLost records device loss. The context becomes terminally Lost unless
// it was already Released. In-flight work is not resubmitted.
func (c *Context) MarkLost() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusReleased || c.status == StatusLost {
		return
	}
	c.status = StatusLost
	slogger().Warn("gpu: device lost, context requires re-initialization")
}

// live returns the adapter if the context is Ready, or the status error.
func (c *Context) live() (Adapter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case StatusReady:
		return c.adapter, nil
	case StatusReleased:
		return nil, ErrContextReleased
	case StatusLost:
		return nil, ErrContextLost
	default:
		return nil, ErrNotInitialized
	}
}
