package capture

import (
	"errors"
	"sync"
	"testing"

	"github.com/vitalscope/vitalscope"
)

// flakyHandle fails every other capture.
type flakyHandle struct {
	inner Handle
	calls int
}

func (f *flakyHandle) Device() DeviceInfo { return f.inner.Device() }
func (f *flakyHandle) Close() error       { return f.inner.Close() }

func (f *flakyHandle) CaptureFrame() (*vitalscope.Frame, error) {
	f.calls++
	if f.calls%2 == 0 {
		return nil, errors.New("transient capture failure")
	}
	return f.inner.CaptureFrame()
}

// recordingSink collects pushed metadata.
type recordingSink struct {
	mu    sync.Mutex
	metas []vitalscope.FrameMeta
}

func (s *recordingSink) Push(m vitalscope.FrameMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metas = append(s.metas, m)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.metas)
}

func TestLoopStepPacesAndPublishes(t *testing.T) {
	h := openSynthetic(t, Constraints{Width: 16, Height: 16})
	defer h.Close()

	bus := vitalscope.NewFrameBus()
	sink := &recordingSink{}
	loop := NewLoop(h, bus, sink, Constraints{DisplayRate: 30, TargetCaptureRate: 15})

	for i := 0; i < 100; i++ {
		loop.Step()
	}

	stats := loop.Stats()
	if stats.Captured < 49 || stats.Captured > 51 {
		t.Errorf("Captured = %d over 100 ticks, want 50 +-1", stats.Captured)
	}
	if stats.Skipped != 100-stats.Captured {
		t.Errorf("Skipped = %d, want %d", stats.Skipped, 100-stats.Captured)
	}
	if bus.Latest() == nil {
		t.Error("bus has no frame after loop ran")
	}
	if sink.count() != int(stats.Captured) {
		t.Errorf("sink received %d metas, want %d", sink.count(), stats.Captured)
	}
}

// A failing capture skips the tick but never stops the loop.
func TestLoopSurvivesCaptureErrors(t *testing.T) {
	inner := openSynthetic(t, Constraints{Width: 16, Height: 16})
	defer inner.Close()
	h := &flakyHandle{inner: inner}

	bus := vitalscope.NewFrameBus()
	loop := NewLoop(h, bus, nil, Constraints{DisplayRate: 30, TargetCaptureRate: 30})

	for i := 0; i < 20; i++ {
		loop.Step()
	}

	stats := loop.Stats()
	if stats.Failed != 10 {
		t.Errorf("Failed = %d, want 10", stats.Failed)
	}
	if stats.Captured != 10 {
		t.Errorf("Captured = %d, want 10", stats.Captured)
	}
	if bus.Latest() == nil {
		t.Error("bus should still hold the last good frame")
	}
}

// Metadata pushed to the sink must carry no pixels and match the published
// frame's metadata.
func TestLoopSinkReceivesMetaOnly(t *testing.T) {
	h := openSynthetic(t, Constraints{Width: 16, Height: 16})
	defer h.Close()

	bus := vitalscope.NewFrameBus()
	sink := &recordingSink{}
	loop := NewLoop(h, bus, sink, Constraints{DisplayRate: 30, TargetCaptureRate: 30})

	loop.Step()

	if sink.count() != 1 {
		t.Fatalf("sink received %d metas, want 1", sink.count())
	}
	f := bus.Latest()
	m := sink.metas[0]
	if m.FrameIndex != f.FrameIndex || m.Width != f.Width || m.Height != f.Height {
		t.Errorf("meta %+v does not match frame index=%d %dx%d", m, f.FrameIndex, f.Width, f.Height)
	}
}
