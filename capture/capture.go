// Package capture acquires camera frames and paces them to a target rate.
//
// A Provider owns platform access to camera devices (GStreamer/V4L2 on
// Linux, a synthetic generator everywhere). Providers register themselves
// with a priority; Open and ListDevices go through the highest-priority
// provider that is available on the running machine.
//
// The capture philosophy is "drop frames, never queue": a consumer that
// cannot keep up misses frames, it never builds latency.
package capture

import (
	"errors"
	"log/slog"
	"time"
)

// Capture errors.
var (
	// ErrDeviceEnumeration is returned when the platform camera API cannot
	// be queried at all.
	ErrDeviceEnumeration = errors.New("capture: device enumeration failed")

	// ErrPermissionDenied is returned when the user or OS denied camera access.
	ErrPermissionDenied = errors.New("capture: permission denied")

	// ErrDeviceNotFound is returned when the requested device does not exist.
	ErrDeviceNotFound = errors.New("capture: device not found")

	// ErrDeviceBusy is returned when another process holds the device.
	ErrDeviceBusy = errors.New("capture: device busy")

	// ErrHandleClosed is returned when capturing from a closed handle.
	ErrHandleClosed = errors.New("capture: handle is closed")

	// ErrNoProvider is returned when no capture provider is available.
	ErrNoProvider = errors.New("capture: no provider available")
)

// DeviceInfo describes one enumerable camera device.
type DeviceInfo struct {
	// ID is the platform device identifier (e.g. /dev/video0).
	ID string

	// Name is the human-readable device name.
	Name string
}

// Default constraint values.
const (
	DefaultWidth             = 640
	DefaultHeight            = 480
	DefaultDisplayRate       = 30
	DefaultTargetCaptureRate = 15
)

// Constraints configure an open capture session.
type Constraints struct {
	// Width and Height request the frame dimensions in pixels.
	// Zero selects the defaults (640x480).
	Width  int
	Height int

	// DisplayRate is the tick rate of the driving display loop in Hz.
	DisplayRate int

	// TargetCaptureRate is the desired capture rate in Hz. Captures are
	// paced to at most one per skip-ratio display ticks.
	TargetCaptureRate int
}

// withDefaults returns a copy of c with zero fields replaced by defaults.
func (c Constraints) withDefaults() Constraints {
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	if c.DisplayRate <= 0 {
		c.DisplayRate = DefaultDisplayRate
	}
	if c.TargetCaptureRate <= 0 {
		c.TargetCaptureRate = DefaultTargetCaptureRate
	}
	return c
}

// TickInterval returns the duration of one display tick.
func (c Constraints) TickInterval() time.Duration {
	cc := c.withDefaults()
	return time.Second / time.Duration(cc.DisplayRate)
}

// ListDevices enumerates camera devices through the default provider.
// It returns an empty slice when no devices are present and wraps platform
// failures in ErrDeviceEnumeration.
func ListDevices() ([]DeviceInfo, error) {
	p := Default()
	if p == nil {
		return nil, ErrNoProvider
	}
	return p.ListDevices()
}

// Open opens a camera device through the default provider. An empty deviceID
// selects the provider's first device.
func Open(deviceID string, c Constraints) (Handle, error) {
	p := Default()
	if p == nil {
		return nil, ErrNoProvider
	}
	h, err := p.Open(deviceID, c.withDefaults())
	if err != nil {
		return nil, err
	}
	slogger().Info("capture: device opened",
		"provider", p.Name(),
		"device", h.Device().ID,
		"width", c.withDefaults().Width,
		"height", c.withDefaults().Height)
	return h, nil
}

// slogger returns the shared module logger.
func slogger() *slog.Logger { return logger() }
