package gpu

import (
	"context"
	"errors"
	"testing"
)

func newReadyContext(t *testing.T) *Context {
	t.Helper()
	c := NewContext()
	if err := c.InitBackend(context.Background(), "software"); err != nil {
		t.Fatalf("InitBackend(software): %v", err)
	}
	t.Cleanup(c.Release)
	return c
}

func TestContextLifecycle(t *testing.T) {
	c := NewContext()
	if got := c.Status(); got != StatusUninitialized {
		t.Fatalf("new context status = %v, want Uninitialized", got)
	}
	if got := c.Backend(); got != "" {
		t.Fatalf("backend before init = %q, want empty", got)
	}

	if err := c.InitBackend(context.Background(), "software"); err != nil {
		t.Fatalf("InitBackend: %v", err)
	}
	if got := c.Status(); got != StatusReady {
		t.Fatalf("status after init = %v, want Ready", got)
	}
	if got := c.Backend(); got != "software" {
		t.Fatalf("backend = %q, want software", got)
	}

	// Init on a Ready context is a no-op.
	if err := c.InitBackend(context.Background(), "software"); err != nil {
		t.Fatalf("second InitBackend: %v", err)
	}

	c.Release()
	if got := c.Status(); got != StatusReleased {
		t.Fatalf("status after release = %v, want Released", got)
	}
}

func TestContextReleaseIdempotent(t *testing.T) {
	c := newReadyContext(t)
	c.Release()
	c.Release()
	if got := c.Status(); got != StatusReleased {
		t.Fatalf("status = %v, want Released", got)
	}
}

func TestContextOperationsAfterRelease(t *testing.T) {
	c := newReadyContext(t)
	rm := NewResourceManager(c)

	buf, err := rm.CreateBuffer(64, UsageStorage|UsageCopyDst|UsageCopySrc, "b")
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}

	c.Release()

	if _, err := rm.CreateBuffer(64, UsageStorage, "b2"); !errors.Is(err, ErrContextReleased) {
		t.Fatalf("CreateBuffer after release: %v, want ErrContextReleased", err)
	}
	if err := rm.UploadBuffer(buf, make([]byte, 16)); !errors.Is(err, ErrContextReleased) {
		t.Fatalf("UploadBuffer after release: %v, want ErrContextReleased", err)
	}
	if _, err := rm.DownloadBuffer(context.Background(), buf, 16); !errors.Is(err, ErrContextReleased) {
		t.Fatalf("DownloadBuffer after release: %v, want ErrContextReleased", err)
	}
	if err := c.Init(context.Background()); !errors.Is(err, ErrContextReleased) {
		t.Fatalf("Init after release: %v, want ErrContextReleased", err)
	}
}

func TestContextMarkLost(t *testing.T) {
	c := newReadyContext(t)
	c.MarkLost()
	if got := c.Status(); got != StatusLost {
		t.Fatalf("status = %v, want Lost", got)
	}

	rm := NewResourceManager(c)
	if _, err := rm.CreateBuffer(64, UsageStorage, "b"); !errors.Is(err, ErrContextLost) {
		t.Fatalf("CreateBuffer on lost context: %v, want ErrContextLost", err)
	}
	if err := c.Init(context.Background()); !errors.Is(err, ErrContextLost) {
		t.Fatalf("Init on lost context: %v, want ErrContextLost", err)
	}

	// Release still works from Lost.
	c.Release()
	if got := c.Status(); got != StatusReleased {
		t.Fatalf("status = %v, want Released", got)
	}
}

func TestContextLostAfterReleaseStaysReleased(t *testing.T) {
	c := newReadyContext(t)
	c.Release()
	c.MarkLost()
	if got := c.Status(); got != StatusReleased {
		t.Fatalf("status = %v, want Released", got)
	}
}

func TestContextUninitializedOperations(t *testing.T) {
	c := NewContext()
	rm := NewResourceManager(c)
	if _, err := rm.CreateBuffer(64, UsageStorage, "b"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("CreateBuffer before init: %v, want ErrNotInitialized", err)
	}
}

func TestContextInitUnknownBackend(t *testing.T) {
	c := NewContext()
	if err := c.InitBackend(context.Background(), "nonexistent"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("InitBackend(nonexistent): %v, want ErrUnsupported", err)
	}
}

func TestContextInitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewContext()
	if err := c.InitBackend(ctx, "software"); !errors.Is(err, ErrCancelled) {
		t.Fatalf("InitBackend with cancelled ctx: %v, want ErrCancelled", err)
	}
}

func TestRegisteredBackendsIncludesSoftware(t *testing.T) {
	names := RegisteredBackends()
	found := false
	for _, n := range names {
		if n == "software" {
			found = true
		}
	}
	if !found {
		t.Fatalf("RegisteredBackends() = %v, want software present", names)
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusUninitialized: "Uninitialized",
		StatusReady:         "Ready",
		StatusLost:          "Lost",
		StatusReleased:      "Released",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
