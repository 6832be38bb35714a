package gpu

import (
	"bytes"
	"context"
	"errors"
	"testing"

	vitalscope "github.com/vitalscope/vitalscope"
)

func testEngineFrame(width, height int, fill byte) *vitalscope.Frame {
	pixels := bytes.Repeat([]byte{fill}, width*height*vitalscope.BytesPerPixel)
	return &vitalscope.Frame{
		Pixels:      pixels,
		Width:       width,
		Height:      height,
		TimestampMs: 1000,
		FrameIndex:  1,
		TraceID:     "test-trace",
	}
}

func TestEngineIdentityRoundTrip(t *testing.T) {
	c := newReadyContext(t)
	eng, err := NewEngine(c, "", "")
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer eng.Close()

	frame := testEngineFrame(16, 8, 0x5A)
	out, err := eng.ProcessFrame(context.Background(), frame)
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if !bytes.Equal(out, frame.Pixels) {
		t.Fatalf("identity output differs from input")
	}

	stats := eng.Stats()
	if stats.Processed != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v, want 1 processed, 0 failed", stats)
	}
}

func TestEngineFailureAbortsFrameOnly(t *testing.T) {
	c := newReadyContext(t)
	eng, err := NewEngine(c, "", "")
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer eng.Close()

	// Pixel payload shorter than width*height*4.
	bad := &vitalscope.Frame{
		Pixels: make([]byte, 10),
		Width:  16,
		Height: 8,
	}
	if _, err := eng.ProcessFrame(context.Background(), bad); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("ProcessFrame(bad) = %v, want ErrSizeMismatch", err)
	}

	// The next good frame processes normally.
	good := testEngineFrame(16, 8, 0x11)
	out, err := eng.ProcessFrame(context.Background(), good)
	if err != nil {
		t.Fatalf("ProcessFrame(good): %v", err)
	}
	if !bytes.Equal(out, good.Pixels) {
		t.Fatalf("output differs from input after recovered failure")
	}

	stats := eng.Stats()
	if stats.Processed != 1 || stats.Failed != 1 {
		t.Fatalf("stats = %+v, want 1 processed, 1 failed", stats)
	}
}

func TestEngineResizesWithFrame(t *testing.T) {
	c := newReadyContext(t)
	eng, err := NewEngine(c, "", "")
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer eng.Close()

	small := testEngineFrame(8, 8, 0x01)
	if _, err := eng.ProcessFrame(context.Background(), small); err != nil {
		t.Fatalf("ProcessFrame(8x8): %v", err)
	}

	large := testEngineFrame(32, 16, 0x02)
	out, err := eng.ProcessFrame(context.Background(), large)
	if err != nil {
		t.Fatalf("ProcessFrame(32x16): %v", err)
	}
	if !bytes.Equal(out, large.Pixels) {
		t.Fatalf("output differs after resize")
	}
}

func TestEngineNilFrame(t *testing.T) {
	c := newReadyContext(t)
	eng, err := NewEngine(c, "", "")
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer eng.Close()

	if _, err := eng.ProcessFrame(context.Background(), nil); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("ProcessFrame(nil) = %v, want ErrInvalidSize", err)
	}
}

func TestEngineAfterContextRelease(t *testing.T) {
	c := newReadyContext(t)
	eng, err := NewEngine(c, "", "")
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	c.Release()

	frame := testEngineFrame(8, 8, 0x01)
	if _, err := eng.ProcessFrame(context.Background(), frame); !errors.Is(err, ErrContextReleased) {
		t.Fatalf("ProcessFrame after release = %v, want ErrContextReleased", err)
	}
	stats := eng.Stats()
	if stats.Failed != 1 {
		t.Fatalf("stats = %+v, want 1 failed", stats)
	}
}

func TestEngineCustomKernelCompileError(t *testing.T) {
	c := newReadyContext(t)

	_, err := NewEngine(c, "not wgsl at all", "main")
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("NewEngine(bad kernel) = %v, want *CompileError", err)
	}
}
