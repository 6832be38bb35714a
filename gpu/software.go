package gpu

import (
	"context"
	"fmt"
	"sync"
)

func init() {
	RegisterBackend("software", func() (Adapter, error) {
		return newSoftwareAdapter(), nil
	}, false)
}

// softwareAdapter keeps all resources in host memory. It is always
// available and serves as the fallback backend, so the capture pipeline,
// the resource contracts, and the transfer round trip work on machines
// without a GPU.
//
// Dispatch runs the identity pass on the CPU: the first read-only storage
// binding is copied into the first read-write storage binding. Arbitrary
// kernels are not interpreted; they require the wgpu backend.
type softwareAdapter struct {
	mu     sync.Mutex
	nextID uint64

	buffers   map[BufferID]*softwareBuffer
	textures  map[TextureID]*softwareTexture
	pipelines map[PipelineID]PipelineDescriptor
}

type softwareBuffer struct {
	data  []byte
	usage Usage
}

type softwareTexture struct {
	data   []byte
	width  int
	height int
	format TextureFormat
	usage  Usage
}

func newSoftwareAdapter() *softwareAdapter {
	return &softwareAdapter{
		nextID:    1,
		buffers:   make(map[BufferID]*softwareBuffer),
		textures:  make(map[TextureID]*softwareTexture),
		pipelines: make(map[PipelineID]PipelineDescriptor),
	}
}

func (a *softwareAdapter) Name() string          { return "software" }
func (a *softwareAdapter) SupportsCompute() bool { return true }

func (a *softwareAdapter) newID() uint64 {
	id := a.nextID
	a.nextID++
	return id
}

func (a *softwareAdapter) CreateBuffer(size uint64, usage Usage, label string) (BufferID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := BufferID(a.newID())
	a.buffers[id] = &softwareBuffer{data: make([]byte, size), usage: usage}
	return id, nil
}

func (a *softwareAdapter) DestroyBuffer(id BufferID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.buffers, id)
}

func (a *softwareAdapter) WriteBuffer(id BufferID, offset uint64, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrResourceDestroyed, id)
	}
	if offset+uint64(len(data)) > uint64(len(buf.data)) {
		return fmt.Errorf("%w: write of %d bytes at offset %d into %d-byte buffer",
			ErrSizeMismatch, len(data), offset, len(buf.data))
	}
	copy(buf.data[offset:], data)
	return nil
}

func (a *softwareAdapter) ReadBuffer(ctx context.Context, id BufferID, offset, size uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrResourceDestroyed, id)
	}
	if offset+size > uint64(len(buf.data)) {
		return nil, fmt.Errorf("%w: read of %d bytes at offset %d from %d-byte buffer",
			ErrSizeMismatch, size, offset, len(buf.data))
	}
	out := make([]byte, size)
	copy(out, buf.data[offset:offset+size])
	return out, nil
}

func (a *softwareAdapter) CreateTexture(width, height int, format TextureFormat, usage Usage, label string) (TextureID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := TextureID(a.newID())
	a.textures[id] = &softwareTexture{
		data:   make([]byte, width*height*format.BytesPerTexel()),
		width:  width,
		height: height,
		format: format,
		usage:  usage,
	}
	return id, nil
}

func (a *softwareAdapter) DestroyTexture(id TextureID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.textures, id)
}

func (a *softwareAdapter) WriteTexture(id TextureID, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tex, ok := a.textures[id]
	if !ok {
		return fmt.Errorf("%w: texture %d", ErrResourceDestroyed, id)
	}
	if len(data) != len(tex.data) {
		return fmt.Errorf("%w: %d bytes for %dx%d %s texture (want %d)",
			ErrSizeMismatch, len(data), tex.width, tex.height, tex.format, len(tex.data))
	}
	copy(tex.data, data)
	return nil
}

func (a *softwareAdapter) ReadTexture(ctx context.Context, id TextureID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tex, ok := a.textures[id]
	if !ok {
		return nil, fmt.Errorf("%w: texture %d", ErrResourceDestroyed, id)
	}
	out := make([]byte, len(tex.data))
	copy(out, tex.data)
	return out, nil
}

func (a *softwareAdapter) CreatePipeline(desc PipelineDescriptor) (PipelineID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := PipelineID(a.newID())
	a.pipelines[id] = desc
	return id, nil
}

func (a *softwareAdapter) DestroyPipeline(id PipelineID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pipelines, id)
}

func (a *softwareAdapter) Dispatch(pipeline PipelineID, bindings []BufferBinding, groups [3]uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	desc, ok := a.pipelines[pipeline]
	if !ok {
		return fmt.Errorf("%w: pipeline %d", ErrResourceDestroyed, pipeline)
	}

	// Identity pass: copy the first read-only storage input into the first
	// read-write storage output.
	var src, dst *softwareBuffer
	bound := make(map[int]BufferID, len(bindings))
	for _, b := range bindings {
		bound[b.Binding] = b.Buffer
	}
	for _, layout := range desc.Bindings {
		id, ok := bound[layout.Binding]
		if !ok {
			return fmt.Errorf("%w: binding %d has no resource", ErrBindingMismatch, layout.Binding)
		}
		buf, ok := a.buffers[id]
		if !ok {
			return fmt.Errorf("%w: buffer %d at binding %d", ErrResourceDestroyed, id, layout.Binding)
		}
		switch layout.Mode {
		case BindReadOnlyStorage:
			if src == nil {
				src = buf
			}
		case BindStorage:
			if dst == nil {
				dst = buf
			}
		}
	}

	if src != nil && dst != nil {
		n := len(src.data)
		if len(dst.data) < n {
			n = len(dst.data)
		}
		copy(dst.data[:n], src.data[:n])
	}

	slogger().Debug("gpu: software dispatch",
		"pipeline", desc.Label,
		"groups", fmt.Sprintf("%dx%dx%d", groups[0], groups[1], groups[2]))
	return nil
}

func (a *softwareAdapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffers = make(map[BufferID]*softwareBuffer)
	a.textures = make(map[TextureID]*softwareTexture)
	a.pipelines = make(map[PipelineID]PipelineDescriptor)
}
