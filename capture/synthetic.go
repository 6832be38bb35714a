package capture

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/vitalscope/vitalscope"
)

// syntheticBase is the resolution the test pattern is rendered at before
// scaling to the requested constraint size.
const (
	syntheticBaseWidth  = 320
	syntheticBaseHeight = 240
)

// syntheticProvider generates a deterministic moving-gradient test pattern.
// It is always available and registered at the lowest priority, so real
// camera providers win whenever one can run.
type syntheticProvider struct{}

func init() {
	Register(&syntheticProvider{}, 0)
}

func (*syntheticProvider) Name() string    { return "synthetic" }
func (*syntheticProvider) Available() bool { return true }

func (*syntheticProvider) ListDevices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "synthetic:0", Name: "Synthetic test pattern"}}, nil
}

func (p *syntheticProvider) Open(deviceID string, c Constraints) (Handle, error) {
	if deviceID != "" && deviceID != "synthetic:0" {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	cc := c.withDefaults()
	return &syntheticHandle{
		info:   DeviceInfo{ID: "synthetic:0", Name: "Synthetic test pattern"},
		width:  cc.Width,
		height: cc.Height,
	}, nil
}

// syntheticHandle produces frames on demand. Safe for use from one
// goroutine, matching the single-owner contract of all capture handles.
type syntheticHandle struct {
	mu     sync.Mutex
	info   DeviceInfo
	width  int
	height int
	closed bool

	frameIndex uint64
	lastTsMs   int64
}

func (h *syntheticHandle) Device() DeviceInfo { return h.info }

func (h *syntheticHandle) CaptureFrame() (*vitalscope.Frame, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHandleClosed
	}

	ts := time.Now().UnixMilli()
	if ts < h.lastTsMs {
		ts = h.lastTsMs
	}
	h.lastTsMs = ts

	f := &vitalscope.Frame{
		Pixels:      h.renderPattern(h.frameIndex),
		Width:       h.width,
		Height:      h.height,
		TimestampMs: ts,
		FrameIndex:  h.frameIndex,
		TraceID:     uuid.New().String(),
	}
	h.frameIndex++
	return f, nil
}

func (h *syntheticHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// renderPattern draws a phase-shifted gradient at the base resolution and
// scales it to the handle size. The phase advances with the frame index so
// successive frames contain subtle motion, which downstream magnification
// kernels can amplify.
func (h *syntheticHandle) renderPattern(phase uint64) []byte {
	base := image.NewRGBA(image.Rect(0, 0, syntheticBaseWidth, syntheticBaseHeight))
	shift := int(phase % 256)
	for y := 0; y < syntheticBaseHeight; y++ {
		for x := 0; x < syntheticBaseWidth; x++ {
			i := base.PixOffset(x, y)
			base.Pix[i+0] = byte((x + shift) & 0xff)
			base.Pix[i+1] = byte((y + shift) & 0xff)
			base.Pix[i+2] = byte((x + y) & 0xff)
			base.Pix[i+3] = 0xff
		}
	}

	if h.width == syntheticBaseWidth && h.height == syntheticBaseHeight {
		return base.Pix
	}

	dst := image.NewRGBA(image.Rect(0, 0, h.width, h.height))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), base, base.Bounds(), draw.Src, nil)
	return dst.Pix
}
