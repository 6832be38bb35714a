package gpu

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	vitalscope "github.com/vitalscope/vitalscope"
)

// Engine runs the per-frame GPU round trip: upload the frame's pixels,
// dispatch the compute kernel over them, download the result. A failure at
// any stage aborts that frame only; the caller's loop keeps running and the
// next frame starts clean.
type Engine struct {
	ctx      *Context
	rm       *ResourceManager
	pipeline *ShaderPipeline
	module   *ShaderModule

	// Frame-sized resources, recreated when dimensions change.
	width   int
	height  int
	uniform *Buffer
	input   *Buffer
	output  *Buffer

	processed atomic.Uint64
	failed    atomic.Uint64
}

// EngineStats is a snapshot of per-frame outcomes.
type EngineStats struct {
	Processed uint64
	Failed    uint64
}

// NewEngine compiles the kernel and prepares an engine under ctx. The
// default kernel is the identity pass; source and entryPoint override it
// when non-empty.
func NewEngine(ctx *Context, source, entryPoint string) (*Engine, error) {
	if source == "" {
		source = IdentityShaderSource()
		entryPoint = IdentityEntryPoint
	}

	pipeline := NewShaderPipeline(ctx)
	module, err := pipeline.Compile(source, entryPoint)
	if err != nil {
		return nil, err
	}

	return &Engine{
		ctx:      ctx,
		rm:       NewResourceManager(ctx),
		pipeline: pipeline,
		module:   module,
	}, nil
}

// ensureResources sizes the uniform, input, and output buffers for a
// width x height frame, dropping any previous set on a dimension change.
func (e *Engine) ensureResources(width, height int) error {
	if e.width == width && e.height == height && e.input != nil {
		return nil
	}

	e.rm.DestroyBuffer(e.uniform)
	e.rm.DestroyBuffer(e.input)
	e.rm.DestroyBuffer(e.output)
	e.uniform, e.input, e.output = nil, nil, nil

	pixelBytes := uint64(width) * uint64(height) * vitalscope.BytesPerPixel

	uniform, err := e.rm.CreateBuffer(16, UsageUniform|UsageCopyDst, "frame_params")
	if err != nil {
		return err
	}
	input, err := e.rm.CreateBuffer(pixelBytes, UsageStorage|UsageCopyDst, "frame_input")
	if err != nil {
		e.rm.DestroyBuffer(uniform)
		return err
	}
	output, err := e.rm.CreateBuffer(pixelBytes, UsageStorage|UsageCopySrc, "frame_output")
	if err != nil {
		e.rm.DestroyBuffer(uniform)
		e.rm.DestroyBuffer(input)
		return err
	}

	params := make([]byte, 16)
	binary.LittleEndian.PutUint32(params[0:], uint32(width))
	binary.LittleEndian.PutUint32(params[4:], uint32(height))
	if err := e.rm.UploadBuffer(uniform, params); err != nil {
		e.rm.DestroyBuffer(uniform)
		e.rm.DestroyBuffer(input)
		e.rm.DestroyBuffer(output)
		return err
	}

	e.width, e.height = width, height
	e.uniform, e.input, e.output = uniform, input, output

	slogger().Debug("gpu: engine resources sized", "width", width, "height", height)
	return nil
}

// ProcessFrame runs upload -> dispatch -> download for one frame and returns
// the processed pixels in the same packed RGBA layout. Errors abort this
// frame only.
func (e *Engine) ProcessFrame(ctx context.Context, frame *vitalscope.Frame) ([]byte, error) {
	if frame == nil {
		return nil, fmt.Errorf("%w: nil frame", ErrInvalidSize)
	}
	out, err := e.processFrame(ctx, frame)
	if err != nil {
		e.failed.Add(1)
		slogger().Warn("gpu: frame aborted",
			"frame", frame.FrameIndex,
			"trace_id", frame.TraceID,
			"error", err)
		return nil, err
	}
	e.processed.Add(1)
	return out, nil
}

func (e *Engine) processFrame(ctx context.Context, frame *vitalscope.Frame) ([]byte, error) {
	if len(frame.Pixels) != frame.Width*frame.Height*vitalscope.BytesPerPixel {
		return nil, fmt.Errorf("%w: %d pixel bytes for %dx%d frame",
			ErrSizeMismatch, len(frame.Pixels), frame.Width, frame.Height)
	}
	if err := e.ensureResources(frame.Width, frame.Height); err != nil {
		return nil, err
	}
	if err := e.rm.UploadBuffer(e.input, frame.Pixels); err != nil {
		return nil, err
	}

	bg, err := e.pipeline.BuildBindGroup(e.module, map[int]*Buffer{
		0: e.uniform,
		1: e.input,
		2: e.output,
	})
	if err != nil {
		return nil, err
	}
	if err := e.pipeline.Dispatch(bg, frame.Width, frame.Height); err != nil {
		return nil, err
	}

	return e.rm.DownloadBuffer(ctx, e.output, e.output.Size())
}

// Stats returns per-frame outcome counters.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Processed: e.processed.Load(),
		Failed:    e.failed.Load(),
	}
}

// Close releases the engine's module and buffers. The context itself stays
// with its owner.
func (e *Engine) Close() {
	e.pipeline.ReleaseAll()
	e.rm.DestroyAll()
	e.uniform, e.input, e.output = nil, nil, nil
	e.width, e.height = 0, 0
}
