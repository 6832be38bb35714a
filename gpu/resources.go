package gpu

import (
	"context"
	"fmt"
	"sync"
)

// Buffer is a GPU buffer created through a ResourceManager. Size and usage
// are fixed at creation; a failed operation never mutates either.
type Buffer struct {
	id        BufferID
	size      uint64
	usage     Usage
	label     string
	destroyed bool
}

// ID returns the adapter handle.
func (b *Buffer) ID() BufferID { return b.id }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Usage returns the creation-time usage flags.
func (b *Buffer) Usage() Usage { return b.usage }

// Label returns the debug label.
func (b *Buffer) Label() string { return b.label }

// Texture is a 2D GPU texture created through a ResourceManager.
type Texture struct {
	id        TextureID
	width     int
	height    int
	format    TextureFormat
	usage     Usage
	label     string
	destroyed bool
}

// ID returns the adapter handle.
func (t *Texture) ID() TextureID { return t.id }

// Width returns the texture width in texels.
func (t *Texture) Width() int { return t.width }

// Height returns the texture height in texels.
func (t *Texture) Height() int { return t.height }

// Format returns the texel format.
func (t *Texture) Format() TextureFormat { return t.format }

// Usage returns the creation-time usage flags.
func (t *Texture) Usage() Usage { return t.usage }

// ByteSize returns the tightly packed size of the full texture.
func (t *Texture) ByteSize() int { return t.width * t.height * t.format.BytesPerTexel() }

// ResourceManager creates and tracks buffers and textures under one Context.
// It enforces the usage-flag contract on every operation: an operation the
// flags do not permit fails before touching the device, and the resource is
// left unchanged.
type ResourceManager struct {
	ctx *Context

	mu       sync.Mutex
	buffers  map[*Buffer]struct{}
	textures map[*Texture]struct{}
}

// NewResourceManager creates a manager bound to ctx.
func NewResourceManager(ctx *Context) *ResourceManager {
	return &ResourceManager{
		ctx:      ctx,
		buffers:  make(map[*Buffer]struct{}),
		textures: make(map[*Texture]struct{}),
	}
}

// CreateBuffer allocates a buffer of size bytes with the given usage flags.
// Size must be positive and the flags must pass the usage contract.
func (rm *ResourceManager) CreateBuffer(size uint64, usage Usage, label string) (*Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: buffer size must be positive", ErrInvalidSize)
	}
	if err := validateUsage(usage); err != nil {
		return nil, err
	}
	adapter, err := rm.ctx.live()
	if err != nil {
		return nil, err
	}

	id, err := adapter.CreateBuffer(size, usage, label)
	if err != nil {
		return nil, err
	}

	b := &Buffer{id: id, size: size, usage: usage, label: label}
	rm.mu.Lock()
	rm.buffers[b] = struct{}{}
	rm.mu.Unlock()

	slogger().Debug("gpu: buffer created", "label", label, "size", size, "usage", usage.String())
	return b, nil
}

// CreateTexture allocates a 2D texture. Dimensions must be positive and the
// format must be one of the supported formats. MapRead is not a texture
// capability; texture readback stages through an internal buffer.
func (rm *ResourceManager) CreateTexture(width, height int, format TextureFormat, usage Usage, label string) (*Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: texture dimensions %dx%d", ErrInvalidSize, width, height)
	}
	if !format.valid() {
		return nil, fmt.Errorf("%w: unsupported texture format %d", ErrInvalidUsage, int(format))
	}
	if usage == 0 {
		return nil, fmt.Errorf("%w: empty flag set", ErrInvalidUsage)
	}
	if usage&^(UsageStorage|UsageCopySrc|UsageCopyDst) != 0 {
		return nil, fmt.Errorf("%w: texture flags limited to Storage|CopySrc|CopyDst", ErrInvalidUsage)
	}
	adapter, err := rm.ctx.live()
	if err != nil {
		return nil, err
	}

	id, err := adapter.CreateTexture(width, height, format, usage, label)
	if err != nil {
		return nil, err
	}

	t := &Texture{id: id, width: width, height: height, format: format, usage: usage, label: label}
	rm.mu.Lock()
	rm.textures[t] = struct{}{}
	rm.mu.Unlock()

	slogger().Debug("gpu: texture created",
		"label", label, "width", width, "height", height, "format", format.String())
	return t, nil
}

// UploadBuffer queues a write of data into b at offset 0. The buffer must
// carry CopyDst; the write must fit. Queued writes complete in FIFO order
// relative to other queued operations. On error the buffer contents are
// untouched.
func (rm *ResourceManager) UploadBuffer(b *Buffer, data []byte) error {
	if b == nil || b.destroyed {
		return ErrResourceDestroyed
	}
	if !b.usage.Contains(UsageCopyDst) {
		return fmt.Errorf("%w: upload to %q requires CopyDst (has %s)",
			ErrMissingUsageFlag, b.label, b.usage)
	}
	if uint64(len(data)) > b.size {
		return fmt.Errorf("%w: %d bytes into %d-byte buffer %q",
			ErrSizeMismatch, len(data), b.size, b.label)
	}
	adapter, err := rm.ctx.live()
	if err != nil {
		return err
	}
	return adapter.WriteBuffer(b.id, 0, data)
}

// DownloadBuffer copies size bytes from b back to the CPU. The buffer must
// carry CopySrc. The copy stages through an internal MapRead|CopyDst buffer
// and blocks until the map resolves, ctx is done, or the bounded wait
// expires with ErrTransferTimeout.
func (rm *ResourceManager) DownloadBuffer(ctx context.Context, b *Buffer, size uint64) ([]byte, error) {
	if b == nil || b.destroyed {
		return nil, ErrResourceDestroyed
	}
	if !b.usage.Contains(UsageCopySrc) {
		return nil, fmt.Errorf("%w: download from %q requires CopySrc (has %s)",
			ErrMissingUsageFlag, b.label, b.usage)
	}
	if size == 0 || size > b.size {
		return nil, fmt.Errorf("%w: download of %d bytes from %d-byte buffer %q",
			ErrSizeMismatch, size, b.size, b.label)
	}
	adapter, err := rm.ctx.live()
	if err != nil {
		return nil, err
	}
	return adapter.ReadBuffer(ctx, b.id, 0, size)
}

// UploadTexture queues a full-texture write of tightly packed texels. The
// texture must carry CopyDst and len(data) must equal
// width*height*bytesPerTexel exactly.
func (rm *ResourceManager) UploadTexture(t *Texture, data []byte) error {
	if t == nil || t.destroyed {
		return ErrResourceDestroyed
	}
	if !t.usage.Contains(UsageCopyDst) {
		return fmt.Errorf("%w: upload to %q requires CopyDst (has %s)",
			ErrMissingUsageFlag, t.label, t.usage)
	}
	if want := t.ByteSize(); len(data) != want {
		return fmt.Errorf("%w: %d bytes for %dx%d %s texture %q (want %d)",
			ErrSizeMismatch, len(data), t.width, t.height, t.format, t.label, want)
	}
	adapter, err := rm.ctx.live()
	if err != nil {
		return err
	}
	return adapter.WriteTexture(t.id, data)
}

// DownloadTexture copies the full texture back to the CPU as tightly packed
// texels. The texture must carry CopySrc.
func (rm *ResourceManager) DownloadTexture(ctx context.Context, t *Texture) ([]byte, error) {
	if t == nil || t.destroyed {
		return nil, ErrResourceDestroyed
	}
	if !t.usage.Contains(UsageCopySrc) {
		return nil, fmt.Errorf("%w: download from %q requires CopySrc (has %s)",
			ErrMissingUsageFlag, t.label, t.usage)
	}
	adapter, err := rm.ctx.live()
	if err != nil {
		return nil, err
	}
	return adapter.ReadTexture(ctx, t.id)
}

// DestroyBuffer releases b. Idempotent; a second destroy is a no-op.
func (rm *ResourceManager) DestroyBuffer(b *Buffer) {
	if b == nil || b.destroyed {
		return
	}
	b.destroyed = true

	rm.mu.Lock()
	delete(rm.buffers, b)
	rm.mu.Unlock()

	if adapter, err := rm.ctx.live(); err == nil {
		adapter.DestroyBuffer(b.id)
	}
}

// DestroyTexture releases t. Idempotent; a second destroy is a no-op.
func (rm *ResourceManager) DestroyTexture(t *Texture) {
	if t == nil || t.destroyed {
		return
	}
	t.destroyed = true

	rm.mu.Lock()
	delete(rm.textures, t)
	rm.mu.Unlock()

	if adapter, err := rm.ctx.live(); err == nil {
		adapter.DestroyTexture(t.id)
	}
}

// DestroyAll releases every live resource created through this manager.
func (rm *ResourceManager) DestroyAll() {
	rm.mu.Lock()
	bufs := make([]*Buffer, 0, len(rm.buffers))
	for b := range rm.buffers {
		bufs = append(bufs, b)
	}
	texs := make([]*Texture, 0, len(rm.textures))
	for t := range rm.textures {
		texs = append(texs, t)
	}
	rm.mu.Unlock()

	for _, b := range bufs {
		rm.DestroyBuffer(b)
	}
	for _, t := range texs {
		rm.DestroyTexture(t)
	}
}
