package gpu

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestCreateBufferValidation(t *testing.T) {
	c := newReadyContext(t)
	rm := NewResourceManager(c)

	tests := []struct {
		name  string
		size  uint64
		usage Usage
		want  error
	}{
		{"zero size", 0, UsageStorage, ErrInvalidSize},
		{"empty usage", 64, 0, ErrInvalidUsage},
		{"unknown flag", 64, Usage(1 << 10), ErrInvalidUsage},
		{"map read with storage", 64, UsageMapRead | UsageStorage, ErrInvalidUsage},
		{"map read with copy src", 64, UsageMapRead | UsageCopySrc, ErrInvalidUsage},
		{"map read alone", 64, UsageMapRead, nil},
		{"staging pair", 64, UsageMapRead | UsageCopyDst, nil},
		{"compute set", 64, UsageStorage | UsageCopySrc | UsageCopyDst, nil},
		{"uniform", 16, UsageUniform | UsageCopyDst, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := rm.CreateBuffer(tt.size, tt.usage, tt.name)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("CreateBuffer: %v", err)
				}
				if b.Size() != tt.size || b.Usage() != tt.usage {
					t.Fatalf("buffer = (%d, %s), want (%d, %s)", b.Size(), b.Usage(), tt.size, tt.usage)
				}
				rm.DestroyBuffer(b)
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("CreateBuffer = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUploadRequiresCopyDstNoMutation(t *testing.T) {
	c := newReadyContext(t)
	rm := NewResourceManager(c)

	buf, err := rm.CreateBuffer(32, UsageStorage|UsageCopySrc, "no_copy_dst")
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}

	err = rm.UploadBuffer(buf, bytes.Repeat([]byte{0xAB}, 32))
	if !errors.Is(err, ErrMissingUsageFlag) {
		t.Fatalf("UploadBuffer = %v, want ErrMissingUsageFlag", err)
	}

	// Rejected upload must leave the contents untouched.
	got, err := rm.DownloadBuffer(context.Background(), buf, 32)
	if err != nil {
		t.Fatalf("DownloadBuffer: %v", err)
	}
	if !bytes.Equal(got, make([]byte, 32)) {
		t.Fatalf("buffer mutated by rejected upload: %x", got)
	}
}

func TestDownloadRequiresCopySrc(t *testing.T) {
	c := newReadyContext(t)
	rm := NewResourceManager(c)

	buf, err := rm.CreateBuffer(32, UsageStorage|UsageCopyDst, "no_copy_src")
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	if _, err := rm.DownloadBuffer(context.Background(), buf, 32); !errors.Is(err, ErrMissingUsageFlag) {
		t.Fatalf("DownloadBuffer = %v, want ErrMissingUsageFlag", err)
	}
}

func TestBufferRoundTrip(t *testing.T) {
	c := newReadyContext(t)
	rm := NewResourceManager(c)

	buf, err := rm.CreateBuffer(256, UsageStorage|UsageCopySrc|UsageCopyDst, "roundtrip")
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}

	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	if err := rm.UploadBuffer(buf, payload); err != nil {
		t.Fatalf("UploadBuffer: %v", err)
	}
	got, err := rm.DownloadBuffer(context.Background(), buf, 256)
	if err != nil {
		t.Fatalf("DownloadBuffer: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch")
	}
}

// A 1024-byte compute buffer holding four float32 values survives the
// upload/download round trip bit exactly.
func TestFloat32RoundTrip(t *testing.T) {
	c := newReadyContext(t)
	rm := NewResourceManager(c)

	buf, err := rm.CreateBuffer(1024, UsageStorage|UsageCopySrc|UsageCopyDst, "floats")
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}

	values := []float32{1.0, 2.0, 3.0, 4.0}
	payload := make([]byte, 16)
	for i, v := range values {
		binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(v))
	}

	if err := rm.UploadBuffer(buf, payload); err != nil {
		t.Fatalf("UploadBuffer: %v", err)
	}
	got, err := rm.DownloadBuffer(context.Background(), buf, 16)
	if err != nil {
		t.Fatalf("DownloadBuffer: %v", err)
	}

	for i, want := range values {
		v := math.Float32frombits(binary.LittleEndian.Uint32(got[i*4:]))
		if v != want {
			t.Errorf("value[%d] = %v, want %v", i, v, want)
		}
	}
}

func TestUploadBufferSizeMismatch(t *testing.T) {
	c := newReadyContext(t)
	rm := NewResourceManager(c)

	buf, err := rm.CreateBuffer(16, UsageStorage|UsageCopyDst, "small")
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	if err := rm.UploadBuffer(buf, make([]byte, 32)); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("UploadBuffer oversized = %v, want ErrSizeMismatch", err)
	}
}

func TestDownloadBufferCancelled(t *testing.T) {
	c := newReadyContext(t)
	rm := NewResourceManager(c)

	buf, err := rm.CreateBuffer(16, UsageStorage|UsageCopySrc, "cancelled")
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := rm.DownloadBuffer(ctx, buf, 16); !errors.Is(err, ErrCancelled) {
		t.Fatalf("DownloadBuffer cancelled = %v, want ErrCancelled", err)
	}
}

func TestCreateTextureValidation(t *testing.T) {
	c := newReadyContext(t)
	rm := NewResourceManager(c)

	tests := []struct {
		name          string
		width, height int
		format        TextureFormat
		usage         Usage
		want          error
	}{
		{"zero width", 0, 4, FormatRGBA8Unorm, UsageCopyDst, ErrInvalidSize},
		{"negative height", 4, -1, FormatRGBA8Unorm, UsageCopyDst, ErrInvalidSize},
		{"bad format", 4, 4, TextureFormat(99), UsageCopyDst, ErrInvalidUsage},
		{"empty usage", 4, 4, FormatRGBA8Unorm, 0, ErrInvalidUsage},
		{"map read on texture", 4, 4, FormatRGBA8Unorm, UsageMapRead | UsageCopyDst, ErrInvalidUsage},
		{"rgba8", 4, 4, FormatRGBA8Unorm, UsageCopyDst | UsageCopySrc, nil},
		{"r32float", 4, 4, FormatR32Float, UsageStorage | UsageCopyDst, nil},
		{"rg32float", 4, 4, FormatRG32Float, UsageCopyDst, nil},
		{"rgba16float", 4, 4, FormatRGBA16Float, UsageCopyDst, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tex, err := rm.CreateTexture(tt.width, tt.height, tt.format, tt.usage, tt.name)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("CreateTexture: %v", err)
				}
				rm.DestroyTexture(tex)
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("CreateTexture = %v, want %v", err, tt.want)
			}
		})
	}
}

// A 2x2 rgba8unorm texture uploaded as 16 bytes of solid red reads back
// exactly through the staging path.
func TestTextureSolidRedRoundTrip(t *testing.T) {
	c := newReadyContext(t)
	rm := NewResourceManager(c)

	tex, err := rm.CreateTexture(2, 2, FormatRGBA8Unorm, UsageCopyDst|UsageCopySrc, "red")
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}

	red := bytes.Repeat([]byte{255, 0, 0, 255}, 4)
	if err := rm.UploadTexture(tex, red); err != nil {
		t.Fatalf("UploadTexture: %v", err)
	}
	got, err := rm.DownloadTexture(context.Background(), tex)
	if err != nil {
		t.Fatalf("DownloadTexture: %v", err)
	}
	if !bytes.Equal(got, red) {
		t.Fatalf("texture round trip = %x, want %x", got, red)
	}
}

func TestUploadTextureSizeMismatch(t *testing.T) {
	c := newReadyContext(t)
	rm := NewResourceManager(c)

	tex, err := rm.CreateTexture(2, 2, FormatRGBA8Unorm, UsageCopyDst, "sized")
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}

	// 2x2 rgba8unorm needs exactly 16 bytes.
	for _, n := range []int{0, 15, 17, 32} {
		if err := rm.UploadTexture(tex, make([]byte, n)); !errors.Is(err, ErrSizeMismatch) {
			t.Errorf("UploadTexture(%d bytes) = %v, want ErrSizeMismatch", n, err)
		}
	}
	if err := rm.UploadTexture(tex, make([]byte, 16)); err != nil {
		t.Fatalf("UploadTexture(16 bytes): %v", err)
	}
}

func TestUploadTextureRequiresCopyDst(t *testing.T) {
	c := newReadyContext(t)
	rm := NewResourceManager(c)

	tex, err := rm.CreateTexture(2, 2, FormatRGBA8Unorm, UsageCopySrc, "readonly")
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	if err := rm.UploadTexture(tex, make([]byte, 16)); !errors.Is(err, ErrMissingUsageFlag) {
		t.Fatalf("UploadTexture = %v, want ErrMissingUsageFlag", err)
	}
}

func TestDestroyBufferIdempotent(t *testing.T) {
	c := newReadyContext(t)
	rm := NewResourceManager(c)

	buf, err := rm.CreateBuffer(16, UsageStorage|UsageCopyDst, "gone")
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	rm.DestroyBuffer(buf)
	rm.DestroyBuffer(buf)

	if err := rm.UploadBuffer(buf, make([]byte, 8)); !errors.Is(err, ErrResourceDestroyed) {
		t.Fatalf("UploadBuffer destroyed = %v, want ErrResourceDestroyed", err)
	}
}

func TestBytesPerTexel(t *testing.T) {
	cases := map[TextureFormat]int{
		FormatRGBA8Unorm:  4,
		FormatR32Float:    4,
		FormatRG32Float:   8,
		FormatRGBA16Float: 8,
	}
	for f, want := range cases {
		if got := f.BytesPerTexel(); got != want {
			t.Errorf("%s.BytesPerTexel() = %d, want %d", f, got, want)
		}
	}
}

func TestUsageString(t *testing.T) {
	u := UsageStorage | UsageCopySrc | UsageCopyDst
	if got := u.String(); got != "Storage|CopySrc|CopyDst" {
		t.Fatalf("Usage.String() = %q", got)
	}
	if got := Usage(0).String(); got != "None" {
		t.Fatalf("Usage(0).String() = %q", got)
	}
}
