package gpu

import (
	"errors"
	"fmt"
	"strings"
)

// GPU errors.
var (
	// ErrUnsupported is returned when no GPU backend is available on this
	// platform. The capture/display path continues without GPU features.
	ErrUnsupported = errors.New("gpu: no backend available")

	// ErrDeviceRequestFailed is returned when a backend exists but device
	// negotiation was denied or failed.
	ErrDeviceRequestFailed = errors.New("gpu: device request failed")

	// ErrContextReleased is returned by any operation against resources of
	// a released context.
	ErrContextReleased = errors.New("gpu: context has been released")

	// ErrContextLost is returned after device loss. The context is terminal;
	// recovery requires constructing a new one.
	ErrContextLost = errors.New("gpu: context lost")

	// ErrNotInitialized is returned when using a context before Init.
	ErrNotInitialized = errors.New("gpu: context not initialized")

	// ErrInvalidSize is returned for non-positive buffer or texture sizes.
	ErrInvalidSize = errors.New("gpu: invalid size")

	// ErrInvalidUsage is returned for empty, unknown, or unsupported usage
	// flag combinations at creation time.
	ErrInvalidUsage = errors.New("gpu: invalid usage flags")

	// ErrMissingUsageFlag is returned when an operation requires a usage
	// flag the resource was not created with.
	ErrMissingUsageFlag = errors.New("gpu: missing usage flag")

	// ErrSizeMismatch is returned when a payload size does not match the
	// target resource.
	ErrSizeMismatch = errors.New("gpu: size mismatch")

	// ErrTransferTimeout is returned when a staging-buffer map does not
	// resolve within the bounded wait.
	ErrTransferTimeout = errors.New("gpu: transfer timeout")

	// ErrBindingMismatch is returned when a declared shader binding has no
	// supplied resource.
	ErrBindingMismatch = errors.New("gpu: binding mismatch")

	// ErrResourceDestroyed is returned when operating on a destroyed
	// buffer or texture.
	ErrResourceDestroyed = errors.New("gpu: resource has been destroyed")

	// ErrCancelled is returned when an in-flight operation is abandoned
	// because its context was cancelled.
	ErrCancelled = errors.New("gpu: operation cancelled")
)

// CompileError reports a shader compilation failure with its diagnostics.
// The associated effect is disabled at load time; the caller decides whether
// to continue without it.
type CompileError struct {
	// EntryPoint is the entry point the caller requested.
	EntryPoint string

	// Diagnostics holds compiler messages, one per line.
	Diagnostics []string
}

func (e *CompileError) Error() string {
	if len(e.Diagnostics) == 0 {
		return fmt.Sprintf("gpu: shader compile failed (entry %q)", e.EntryPoint)
	}
	return fmt.Sprintf("gpu: shader compile failed (entry %q): %s",
		e.EntryPoint, strings.Join(e.Diagnostics, "; "))
}

// compileErrorf builds a CompileError from formatted diagnostics.
func compileErrorf(entryPoint string, format string, args ...any) *CompileError {
	return &CompileError{
		EntryPoint:  entryPoint,
		Diagnostics: []string{fmt.Sprintf(format, args...)},
	}
}
