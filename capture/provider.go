package capture

import (
	"sort"
	"sync"

	"github.com/vitalscope/vitalscope"
)

// Provider gives access to one family of camera devices.
type Provider interface {
	// Name identifies the provider (e.g. "gstreamer", "synthetic").
	Name() string

	// Available reports whether the provider can run on this machine.
	Available() bool

	// ListDevices enumerates the provider's devices in a stable order.
	// An empty slice means no devices; a non-nil error wraps
	// ErrDeviceEnumeration.
	ListDevices() ([]DeviceInfo, error)

	// Open acquires a device and starts its capture surface. An empty
	// deviceID selects the provider's first device.
	Open(deviceID string, c Constraints) (Handle, error)
}

// Handle is an exclusively owned reference to one open camera device.
type Handle interface {
	// Device describes the opened device.
	Device() DeviceInfo

	// CaptureFrame synchronously copies the live capture surface into a
	// fresh Frame. Consumers may retain the result across asynchronous
	// boundaries while capture continues.
	CaptureFrame() (*vitalscope.Frame, error)

	// Close releases the underlying hardware/stream resources.
	// Close is idempotent: calling it on an already closed handle is safe.
	Close() error
}

// registry holds registered providers.
var (
	registryMu sync.RWMutex
	providers  = make(map[string]registeredProvider)
)

type registeredProvider struct {
	provider Provider
	priority int
}

// Register registers a capture provider. Higher priority wins in Default.
// This is typically called from init() functions in provider files.
// Registering the same name again replaces the previous entry.
func Register(p Provider, priority int) {
	registryMu.Lock()
	defer registryMu.Unlock()
	providers[p.Name()] = registeredProvider{provider: p, priority: priority}
}

// Unregister removes a provider from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(providers, name)
}

// Get returns a provider by name, or nil if not registered.
func Get(name string) Provider {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if r, ok := providers[name]; ok {
		return r.provider
	}
	return nil
}

// Registered returns the names of all registered providers, highest
// priority first.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	regs := make([]registeredProvider, 0, len(providers))
	for _, r := range providers {
		regs = append(regs, r)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].priority > regs[j].priority })

	names := make([]string, len(regs))
	for i, r := range regs {
		names[i] = r.provider.Name()
	}
	return names
}

// Default returns the highest-priority available provider, or nil when
// nothing can capture on this machine.
func Default() Provider {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var best Provider
	bestPriority := -1 << 31
	for _, r := range providers {
		if r.priority > bestPriority && r.provider.Available() {
			best = r.provider
			bestPriority = r.priority
		}
	}
	return best
}
