package vitalscope

// BytesPerPixel is the size of one pixel in the wire format (RGBA, 8 bits
// per channel, no padding).
const BytesPerPixel = 4

// Frame is a single captured camera image plus its capture metadata.
//
// A Frame is immutable once published: the capture loop allocates a fresh
// Pixels slice for every capture, so a consumer holding a Frame across an
// asynchronous boundary never observes later captures mutating it.
//
// Invariants for frames produced by one capture handle:
//   - TimestampMs is strictly non-decreasing across successive frames.
//   - FrameIndex increases by exactly 1 per frame.
type Frame struct {
	// Pixels is row-major RGBA8 data, Width*Height*BytesPerPixel bytes.
	Pixels []byte

	// Width and Height are the frame dimensions in pixels.
	Width  int
	Height int

	// TimestampMs is the capture time in milliseconds since the Unix epoch.
	TimestampMs int64

	// FrameIndex is the per-handle sequence number, starting at 0.
	FrameIndex uint64

	// TraceID correlates this frame across capture, GPU, and sink logs.
	TraceID string
}

// Clone returns a deep copy of the frame, including its pixel data.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	c := *f
	c.Pixels = make([]byte, len(f.Pixels))
	copy(c.Pixels, f.Pixels)
	return &c
}

// Meta returns the frame's metadata without pixel payload.
func (f *Frame) Meta() FrameMeta {
	return FrameMeta{
		FrameIndex:  f.FrameIndex,
		TimestampMs: f.TimestampMs,
		Width:       f.Width,
		Height:      f.Height,
	}
}

// FrameMeta is the per-frame metadata pushed to recording/state collaborators.
// It never carries pixel payloads.
type FrameMeta struct {
	FrameIndex  uint64
	TimestampMs int64
	Width       int
	Height      int
}

// MetaSink receives per-frame metadata at capture rate. Implementations
// must not block; a slow sink stalls the capture loop.
type MetaSink interface {
	Push(FrameMeta)
}

// NopMetaSink discards all metadata. Useful as a default collaborator.
type NopMetaSink struct{}

// Push implements MetaSink.
func (NopMetaSink) Push(FrameMeta) {}
