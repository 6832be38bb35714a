package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/vitalscope/vitalscope"
)

// gstProvider captures from V4L2 cameras through a GStreamer pipeline:
//
//	v4l2src -> videoconvert -> videoscale -> videorate -> capsfilter -> appsink
//
// The capsfilter locks the wire format (RGBA, target size) and the appsink
// keeps only the newest buffer, so a slow caller always pulls the latest
// frame instead of building a queue.
type gstProvider struct{}

func init() {
	Register(&gstProvider{}, 100)
}

func (*gstProvider) Name() string { return "gstreamer" }

func (*gstProvider) Available() bool {
	devices, err := videoDeviceNodes()
	return err == nil && len(devices) > 0
}

func (*gstProvider) ListDevices() ([]DeviceInfo, error) {
	nodes, err := videoDeviceNodes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceEnumeration, err)
	}

	devices := make([]DeviceInfo, 0, len(nodes))
	for _, node := range nodes {
		devices = append(devices, DeviceInfo{ID: node, Name: videoDeviceName(node)})
	}
	return devices, nil
}

func (p *gstProvider) Open(deviceID string, c Constraints) (Handle, error) {
	cc := c.withDefaults()

	if deviceID == "" {
		devices, err := p.ListDevices()
		if err != nil {
			return nil, err
		}
		if len(devices) == 0 {
			return nil, fmt.Errorf("%w: no video devices", ErrDeviceNotFound)
		}
		deviceID = devices[0].ID
	}

	if err := probeDeviceNode(deviceID); err != nil {
		return nil, err
	}

	elems, err := createCapturePipeline(deviceID, cc)
	if err != nil {
		return nil, err
	}

	if err := elems.pipeline.SetState(gst.StatePlaying); err != nil {
		_ = elems.pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("%w: start pipeline: %v", ErrDeviceBusy, err)
	}

	return &gstHandle{
		info:   DeviceInfo{ID: deviceID, Name: videoDeviceName(deviceID)},
		elems:  elems,
		width:  cc.Width,
		height: cc.Height,
	}, nil
}

// gstElements holds the pipeline element references needed for cleanup.
type gstElements struct {
	pipeline *gst.Pipeline
	appsink  *app.Sink
}

// createCapturePipeline builds the configured V4L2 pipeline without
// starting it (state remains NULL).
func createCapturePipeline(device string, c Constraints) (*gstElements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("%w: create pipeline: %v", ErrDeviceEnumeration, err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("%w: create v4l2src: %v", ErrDeviceEnumeration, err)
	}
	src.SetProperty("device", device)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("%w: create videoconvert: %v", ErrDeviceEnumeration, err)
	}
	converter.SetProperty("n-threads", 0)

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("%w: create videoscale: %v", ErrDeviceEnumeration, err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("%w: create videorate: %v", ErrDeviceEnumeration, err)
	}
	videorate.SetProperty("drop-only", true)
	videorate.SetProperty("skip-to-first", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("%w: create capsfilter: %v", ErrDeviceEnumeration, err)
	}
	capsStr := fmt.Sprintf("video/x-raw,format=RGBA,width=%d,height=%d,framerate=%d/1",
		c.Width, c.Height, c.TargetCaptureRate)
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsStr))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("%w: create appsink: %v", ErrDeviceEnumeration, err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)

	pipeline.AddMany(src, converter, scaler, videorate, capsfilter, appsink.Element)
	if err := gst.ElementLinkMany(src, converter, scaler, videorate, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("%w: link pipeline: %v", ErrDeviceEnumeration, err)
	}

	slogger().Debug("capture: gstreamer pipeline created", "device", device, "caps", capsStr)

	return &gstElements{pipeline: pipeline, appsink: appsink}, nil
}

// gstHandle is an open V4L2 capture session.
type gstHandle struct {
	mu     sync.Mutex
	info   DeviceInfo
	elems  *gstElements
	width  int
	height int
	closed bool

	frameIndex uint64
	lastTsMs   int64
}

func (h *gstHandle) Device() DeviceInfo { return h.info }

func (h *gstHandle) CaptureFrame() (*vitalscope.Frame, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHandleClosed
	}

	sample := h.elems.appsink.PullSample()
	if sample == nil {
		return nil, fmt.Errorf("%w: no sample from appsink", ErrHandleClosed)
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil, errors.New("capture: sample has no buffer")
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return nil, errors.New("capture: empty buffer")
	}

	// Copy out: GStreamer reuses the buffer after Unmap.
	pixels := make([]byte, len(data))
	copy(pixels, data)
	buffer.Unmap()

	ts := time.Now().UnixMilli()
	if ts < h.lastTsMs {
		ts = h.lastTsMs
	}
	h.lastTsMs = ts

	f := &vitalscope.Frame{
		Pixels:      pixels,
		Width:       h.width,
		Height:      h.height,
		TimestampMs: ts,
		FrameIndex:  h.frameIndex,
		TraceID:     uuid.New().String(),
	}
	h.frameIndex++

	slogger().Debug("capture: frame pulled",
		"device", h.info.ID,
		"seq", f.FrameIndex,
		"bytes", len(pixels),
		"trace_id", f.TraceID)

	return f, nil
}

func (h *gstHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	if err := h.elems.pipeline.SetState(gst.StateNull); err != nil {
		slogger().Warn("capture: pipeline shutdown error", "device", h.info.ID, "error", err)
		return fmt.Errorf("capture: stop pipeline: %w", err)
	}
	return nil
}

// videoDeviceNodes lists /dev/video* nodes in stable order.
func videoDeviceNodes() ([]string, error) {
	nodes, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, err
	}
	sort.Strings(nodes)
	return nodes, nil
}

// videoDeviceName resolves a human-readable name for a /dev/videoN node
// from sysfs, falling back to the node path.
func videoDeviceName(node string) string {
	base := filepath.Base(node)
	raw, err := os.ReadFile(filepath.Join("/sys/class/video4linux", base, "name"))
	if err != nil {
		return node
	}
	if name := strings.TrimSpace(string(raw)); name != "" {
		return name
	}
	return node
}

// probeDeviceNode maps node access failures onto the capture error taxonomy.
func probeDeviceNode(node string) error {
	f, err := os.OpenFile(node, os.O_RDWR, 0)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, node)
		case errors.Is(err, fs.ErrPermission):
			return fmt.Errorf("%w: %s", ErrPermissionDenied, node)
		case errors.Is(err, syscall.EBUSY):
			return fmt.Errorf("%w: %s", ErrDeviceBusy, node)
		default:
			return fmt.Errorf("%w: %s: %v", ErrDeviceNotFound, node, err)
		}
	}
	f.Close()
	return nil
}
