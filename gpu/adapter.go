package gpu

import (
	"context"
	"sync"
)

// Adapter abstracts one GPU backend. The hal adapter drives real hardware
// through gogpu/wgpu; the software adapter keeps resources in host memory
// so the whole pipeline runs on machines without a GPU.
//
// Adapters are driven by a single owning goroutine per Context; they do not
// defend against concurrent use of one context from multiple goroutines.
type Adapter interface {
	// Name identifies the backend ("wgpu", "software").
	Name() string

	// SupportsCompute reports whether compute dispatch is available.
	SupportsCompute() bool

	// CreateBuffer allocates a buffer. Usage flags are pre-validated by
	// the resource manager.
	CreateBuffer(size uint64, usage Usage, label string) (BufferID, error)

	// DestroyBuffer releases a buffer. Unknown IDs are ignored.
	DestroyBuffer(id BufferID)

	// WriteBuffer enqueues a write of data at offset. Ordering relative to
	// later queued operations follows queue submission order (FIFO).
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	// ReadBuffer copies size bytes starting at offset back to the CPU via
	// an internal staging buffer. It blocks until the staging map resolves,
	// ctx is done, or the bounded wait expires (ErrTransferTimeout).
	ReadBuffer(ctx context.Context, id BufferID, offset, size uint64) ([]byte, error)

	// CreateTexture allocates a 2D texture.
	CreateTexture(width, height int, format TextureFormat, usage Usage, label string) (TextureID, error)

	// DestroyTexture releases a texture. Unknown IDs are ignored.
	DestroyTexture(id TextureID)

	// WriteTexture enqueues a full-texture write of tightly packed texels.
	WriteTexture(id TextureID, data []byte) error

	// ReadTexture copies the full texture back to the CPU as tightly
	// packed texels.
	ReadTexture(ctx context.Context, id TextureID) ([]byte, error)

	// CreatePipeline compiles a compute pipeline from the descriptor.
	CreatePipeline(desc PipelineDescriptor) (PipelineID, error)

	// DestroyPipeline releases a pipeline. Unknown IDs are ignored.
	DestroyPipeline(id PipelineID)

	// Dispatch enqueues one compute pass with the given bind group and
	// grid, then waits for completion.
	Dispatch(pipeline PipelineID, bindings []BufferBinding, groups [3]uint32) error

	// Close releases the device and all remaining adapter resources.
	Close()
}

// AdapterFactory opens a backend, negotiating its device and queue.
type AdapterFactory func() (Adapter, error)

// Backend registry. Backends register from init() functions; the highest
// priority registered backend is tried first during Context.Init.
var (
	backendMu       sync.RWMutex
	backends        = make(map[string]AdapterFactory)
	backendPriority []string
)

// RegisterBackend registers a backend factory under name. Earlier positions
// in the priority list win; re-registering a name keeps its position.
func RegisterBackend(name string, factory AdapterFactory, preferred bool) {
	backendMu.Lock()
	defer backendMu.Unlock()

	if _, exists := backends[name]; !exists {
		if preferred {
			backendPriority = append([]string{name}, backendPriority...)
		} else {
			backendPriority = append(backendPriority, name)
		}
	}
	backends[name] = factory
}

// RegisteredBackends returns backend names in priority order.
func RegisteredBackends() []string {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return append([]string(nil), backendPriority...)
}

// backendFactory returns the factory for name, or nil.
func backendFactory(name string) AdapterFactory {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return backends[name]
}
