package gpu

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	// Register the Vulkan HAL backend.
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

const (
	// halFenceTimeout is the maximum wait for submitted GPU work.
	halFenceTimeout = 5 * time.Second

	// halRowAlignment is the required BytesPerRow alignment for
	// texture-to-buffer copies.
	halRowAlignment = 256
)

func init() {
	RegisterBackend("wgpu", func() (Adapter, error) {
		return openHALAdapter()
	}, true)
}

// halAdapter drives real hardware through gogpu/wgpu's HAL. Compute kernels
// are compiled from WGSL to SPIR-V with naga; buffer readback goes through a
// staging buffer with a fence-bounded wait.
type halAdapter struct {
	mu       sync.Mutex
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	nextID uint64

	buffers  map[BufferID]hal.Buffer
	textures map[TextureID]*halTexture
	plines   map[PipelineID]*halPipeline
}

type halTexture struct {
	tex    hal.Texture
	width  int
	height int
	format TextureFormat
}

type halPipeline struct {
	module   hal.ShaderModule
	bgLayout hal.BindGroupLayout
	pLayout  hal.PipelineLayout
	pipeline hal.ComputePipeline
	label    string
}

// openHALAdapter negotiates a Vulkan instance, adapter, and device,
// preferring discrete over integrated GPUs.
func openHALAdapter() (*halAdapter, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("no GPU adapters found")
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		for i := range adapters {
			if adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
				selected = &adapters[i]
				break
			}
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device: %w", err)
	}

	slogger().Info("gpu: wgpu device opened",
		"adapter", selected.Info.Name,
		"type", selected.Info.DeviceType)

	return &halAdapter{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		nextID:   1,
		buffers:  make(map[BufferID]hal.Buffer),
		textures: make(map[TextureID]*halTexture),
		plines:   make(map[PipelineID]*halPipeline),
	}, nil
}

// newHALAdapterForDevice wraps an externally negotiated device and queue.
// The caller keeps ownership of the instance; Close destroys only the
// device. Used by tests running against the noop HAL.
func newHALAdapterForDevice(device hal.Device, queue hal.Queue) *halAdapter {
	return &halAdapter{
		device:   device,
		queue:    queue,
		nextID:   1,
		buffers:  make(map[BufferID]hal.Buffer),
		textures: make(map[TextureID]*halTexture),
		plines:   make(map[PipelineID]*halPipeline),
	}
}

func (a *halAdapter) Name() string          { return "wgpu" }
func (a *halAdapter) SupportsCompute() bool { return true }

func (a *halAdapter) newID() uint64 {
	id := a.nextID
	a.nextID++
	return id
}

// convertBufferUsage maps the resource usage contract onto HAL buffer flags.
func convertBufferUsage(u Usage) gputypes.BufferUsage {
	var out gputypes.BufferUsage
	if u.Contains(UsageStorage) {
		out |= gputypes.BufferUsageStorage
	}
	if u.Contains(UsageCopySrc) {
		out |= gputypes.BufferUsageCopySrc
	}
	if u.Contains(UsageCopyDst) {
		out |= gputypes.BufferUsageCopyDst
	}
	if u.Contains(UsageUniform) {
		out |= gputypes.BufferUsageUniform
	}
	if u.Contains(UsageMapRead) {
		out |= gputypes.BufferUsageMapRead
	}
	return out
}

// convertTextureUsage maps the usage contract onto HAL texture flags.
func convertTextureUsage(u Usage) gputypes.TextureUsage {
	var out gputypes.TextureUsage
	if u.Contains(UsageStorage) {
		out |= gputypes.TextureUsageTextureBinding
	}
	if u.Contains(UsageCopySrc) {
		out |= gputypes.TextureUsageCopySrc
	}
	if u.Contains(UsageCopyDst) {
		out |= gputypes.TextureUsageCopyDst
	}
	return out
}

// convertTextureFormat maps supported formats onto HAL formats.
func convertTextureFormat(f TextureFormat) gputypes.TextureFormat {
	switch f {
	case FormatR32Float:
		return gputypes.TextureFormatR32Float
	case FormatRG32Float:
		return gputypes.TextureFormatRG32Float
	case FormatRGBA16Float:
		return gputypes.TextureFormatRGBA16Float
	default:
		return gputypes.TextureFormatRGBA8Unorm
	}
}

func (a *halAdapter) CreateBuffer(size uint64, usage Usage, label string) (BufferID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: convertBufferUsage(usage),
	})
	if err != nil {
		return InvalidID, fmt.Errorf("create buffer: %w", err)
	}
	id := BufferID(a.newID())
	a.buffers[id] = buf
	return id, nil
}

func (a *halAdapter) DestroyBuffer(id BufferID) {
	a.mu.Lock()
	buf, ok := a.buffers[id]
	if ok {
		delete(a.buffers, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyBuffer(buf)
	}
}

func (a *halAdapter) WriteBuffer(id BufferID, offset uint64, data []byte) error {
	a.mu.Lock()
	buf, ok := a.buffers[id]
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrResourceDestroyed, id)
	}
	if len(data) == 0 {
		return nil
	}
	a.queue.WriteBuffer(buf, offset, data)
	return nil
}

func (a *halAdapter) ReadBuffer(ctx context.Context, id BufferID, offset, size uint64) ([]byte, error) {
	a.mu.Lock()
	buf, ok := a.buffers[id]
	a.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrResourceDestroyed, id)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	// Stage through a MapRead|CopyDst buffer: device copy, fence-bounded
	// wait, then read out.
	staging, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "staging_readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer a.device.DestroyBuffer(staging)

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "buffer_readback",
	})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("buffer_readback"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(buf, staging, []hal.BufferCopy{
		{SrcOffset: offset, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer a.device.FreeCommandBuffer(cmdBuf)

	if err := a.submitAndWait(ctx, cmdBuf); err != nil {
		return nil, err
	}

	out := make([]byte, size)
	if err := a.queue.ReadBuffer(staging, 0, out); err != nil {
		return nil, fmt.Errorf("read staging buffer: %w", err)
	}
	return out, nil
}

func (a *halAdapter) CreateTexture(width, height int, format TextureFormat, usage Usage, label string) (TextureID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tex, err := a.device.CreateTexture(&hal.TextureDescriptor{
		Label: label,
		Size: hal.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        convertTextureFormat(format),
		Usage:         convertTextureUsage(usage),
	})
	if err != nil {
		return InvalidID, fmt.Errorf("create texture: %w", err)
	}
	id := TextureID(a.newID())
	a.textures[id] = &halTexture{tex: tex, width: width, height: height, format: format}
	return id, nil
}

func (a *halAdapter) DestroyTexture(id TextureID) {
	a.mu.Lock()
	t, ok := a.textures[id]
	if ok {
		delete(a.textures, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyTexture(t.tex)
	}
}

func (a *halAdapter) WriteTexture(id TextureID, data []byte) error {
	a.mu.Lock()
	t, ok := a.textures[id]
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: texture %d", ErrResourceDestroyed, id)
	}

	bytesPerRow := uint32(t.width * t.format.BytesPerTexel())
	a.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  bytesPerRow,
			RowsPerImage: uint32(t.height),
		},
		&hal.Extent3D{
			Width:              uint32(t.width),
			Height:             uint32(t.height),
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

func (a *halAdapter) ReadTexture(ctx context.Context, id TextureID) ([]byte, error) {
	a.mu.Lock()
	t, ok := a.textures[id]
	a.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: texture %d", ErrResourceDestroyed, id)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	rowBytes := t.width * t.format.BytesPerTexel()
	paddedRow := (rowBytes + halRowAlignment - 1) &^ (halRowAlignment - 1)
	stagingSize := uint64(paddedRow * t.height)

	staging, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "texture_readback",
		Size:  stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer a.device.DestroyBuffer(staging)

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "texture_readback",
	})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("texture_readback"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	encoder.CopyTextureToBuffer(t.tex, staging, []hal.BufferTextureCopy{
		{
			BufferLayout: hal.ImageDataLayout{
				Offset:       0,
				BytesPerRow:  uint32(paddedRow),
				RowsPerImage: uint32(t.height),
			},
			TextureBase: hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
			Size: hal.Extent3D{
				Width:              uint32(t.width),
				Height:             uint32(t.height),
				DepthOrArrayLayers: 1,
			},
		},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer a.device.FreeCommandBuffer(cmdBuf)

	if err := a.submitAndWait(ctx, cmdBuf); err != nil {
		return nil, err
	}

	padded := make([]byte, stagingSize)
	if err := a.queue.ReadBuffer(staging, 0, padded); err != nil {
		return nil, fmt.Errorf("read staging buffer: %w", err)
	}

	// Strip row padding.
	out := make([]byte, rowBytes*t.height)
	for y := 0; y < t.height; y++ {
		copy(out[y*rowBytes:(y+1)*rowBytes], padded[y*paddedRow:y*paddedRow+rowBytes])
	}
	return out, nil
}

// compileWGSL compiles WGSL through naga, falling back to the HAL's own
// WGSL frontend for sources naga does not handle yet.
func compileWGSL(source, label string) (hal.ShaderSource, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
			slogger().Debug("gpu: naga fallback to WGSL frontend", "shader", label, "reason", msg)
			return hal.ShaderSource{WGSL: source}, nil
		}
		return hal.ShaderSource{}, err
	}

	spirv := make([]uint32, len(spirvBytes)/4)
	for i := range spirv {
		spirv[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return hal.ShaderSource{SPIRV: spirv}, nil
}

func (a *halAdapter) CreatePipeline(desc PipelineDescriptor) (PipelineID, error) {
	source, err := compileWGSL(desc.Source, desc.Label)
	if err != nil {
		return InvalidID, &CompileError{
			EntryPoint:  desc.EntryPoint,
			Diagnostics: []string{err.Error()},
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	module, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: source,
	})
	if err != nil {
		return InvalidID, &CompileError{
			EntryPoint:  desc.EntryPoint,
			Diagnostics: []string{err.Error()},
		}
	}

	entries := make([]gputypes.BindGroupLayoutEntry, len(desc.Bindings))
	for i, b := range desc.Bindings {
		var bindingType gputypes.BufferBindingType
		switch b.Mode {
		case BindUniform:
			bindingType = gputypes.BufferBindingTypeUniform
		case BindReadOnlyStorage:
			bindingType = gputypes.BufferBindingTypeReadOnlyStorage
		default:
			bindingType = gputypes.BufferBindingTypeStorage
		}
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    uint32(b.Binding),
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: bindingType},
		}
	}

	bgLayout, err := a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label + "_bgl",
		Entries: entries,
	})
	if err != nil {
		a.device.DestroyShaderModule(module)
		return InvalidID, fmt.Errorf("create bind group layout: %w", err)
	}

	pLayout, err := a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + "_pl",
		BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
	})
	if err != nil {
		a.device.DestroyBindGroupLayout(bgLayout)
		a.device.DestroyShaderModule(module)
		return InvalidID, fmt.Errorf("create pipeline layout: %w", err)
	}

	pipeline, err := a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: pLayout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		a.device.DestroyPipelineLayout(pLayout)
		a.device.DestroyBindGroupLayout(bgLayout)
		a.device.DestroyShaderModule(module)
		return InvalidID, &CompileError{
			EntryPoint:  desc.EntryPoint,
			Diagnostics: []string{err.Error()},
		}
	}

	id := PipelineID(a.newID())
	a.plines[id] = &halPipeline{
		module:   module,
		bgLayout: bgLayout,
		pLayout:  pLayout,
		pipeline: pipeline,
		label:    desc.Label,
	}

	slogger().Debug("gpu: pipeline created",
		"label", desc.Label,
		"entry", desc.EntryPoint,
		"bindings", len(entries))
	return id, nil
}

func (a *halAdapter) DestroyPipeline(id PipelineID) {
	a.mu.Lock()
	p, ok := a.plines[id]
	if ok {
		delete(a.plines, id)
	}
	a.mu.Unlock()

	if !ok {
		return
	}
	a.device.DestroyComputePipeline(p.pipeline)
	a.device.DestroyPipelineLayout(p.pLayout)
	a.device.DestroyBindGroupLayout(p.bgLayout)
	a.device.DestroyShaderModule(p.module)
}

func (a *halAdapter) Dispatch(pipeline PipelineID, bindings []BufferBinding, groups [3]uint32) error {
	a.mu.Lock()
	p, ok := a.plines[pipeline]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("%w: pipeline %d", ErrResourceDestroyed, pipeline)
	}

	entries := make([]gputypes.BindGroupEntry, len(bindings))
	for i, b := range bindings {
		buf, ok := a.buffers[b.Buffer]
		if !ok {
			a.mu.Unlock()
			return fmt.Errorf("%w: buffer %d at binding %d", ErrResourceDestroyed, b.Buffer, b.Binding)
		}
		entries[i] = gputypes.BindGroupEntry{
			Binding: uint32(b.Binding),
			Resource: gputypes.BufferBinding{
				Buffer: buf.NativeHandle(),
				Offset: 0,
				Size:   0, // 0 = entire buffer
			},
		}
	}
	a.mu.Unlock()

	bg, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   p.label + "_bg",
		Layout:  p.bgLayout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}
	defer a.device.DestroyBindGroup(bg)

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: p.label,
	})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(p.label); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: p.label})
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(groups[0], groups[1], groups[2])
	pass.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer a.device.FreeCommandBuffer(cmdBuf)

	if err := a.submitAndWait(context.Background(), cmdBuf); err != nil {
		return err
	}

	slogger().Debug("gpu: dispatched",
		"pipeline", p.label,
		"groups", fmt.Sprintf("%dx%dx%d", groups[0], groups[1], groups[2]))
	return nil
}

// submitAndWait submits one command buffer and waits on a fence, bounded by
// the context deadline and the fence timeout.
func (a *halAdapter) submitAndWait(ctx context.Context, cmdBuf hal.CommandBuffer) error {
	fence, err := a.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer a.device.DestroyFence(fence)

	if err := a.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	timeout := halFenceTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remain := time.Until(deadline); remain < timeout {
			timeout = remain
		}
	}
	if timeout <= 0 {
		return fmt.Errorf("%w: deadline already passed", ErrTransferTimeout)
	}

	done, err := a.device.Wait(fence, 1, timeout)
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !done {
		return fmt.Errorf("%w: GPU work incomplete after %v", ErrTransferTimeout, timeout)
	}
	return nil
}

func (a *halAdapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, p := range a.plines {
		a.device.DestroyComputePipeline(p.pipeline)
		a.device.DestroyPipelineLayout(p.pLayout)
		a.device.DestroyBindGroupLayout(p.bgLayout)
		a.device.DestroyShaderModule(p.module)
		delete(a.plines, id)
	}
	for id, t := range a.textures {
		a.device.DestroyTexture(t.tex)
		delete(a.textures, id)
	}
	for id, buf := range a.buffers {
		a.device.DestroyBuffer(buf)
		delete(a.buffers, id)
	}

	a.device.Destroy()
	if a.instance != nil {
		a.instance.Destroy()
	}
}
