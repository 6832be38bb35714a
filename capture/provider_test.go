package capture

import (
	"testing"

	"github.com/vitalscope/vitalscope"
)

// fakeProvider lets tests control availability and priority ordering.
type fakeProvider struct {
	name      string
	available bool
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) Available() bool { return f.available }
func (f *fakeProvider) ListDevices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: f.name + ":0", Name: f.name}}, nil
}
func (f *fakeProvider) Open(string, Constraints) (Handle, error) {
	return nil, ErrDeviceNotFound
}

func TestRegisterAndGet(t *testing.T) {
	p := &fakeProvider{name: "fake-a", available: true}
	Register(p, 10)
	defer Unregister("fake-a")

	if got := Get("fake-a"); got != Provider(p) {
		t.Error("Get did not return the registered provider")
	}
	if got := Get("missing"); got != nil {
		t.Errorf("Get(missing) = %v, want nil", got)
	}
}

func TestDefaultPrefersHighestPriorityAvailable(t *testing.T) {
	hi := &fakeProvider{name: "fake-hi", available: false}
	lo := &fakeProvider{name: "fake-lo", available: true}
	Register(hi, 500)
	Register(lo, 400)
	defer Unregister("fake-hi")
	defer Unregister("fake-lo")

	got := Default()
	if got == nil {
		t.Fatal("Default = nil")
	}
	// fake-hi outranks fake-lo but is unavailable.
	if got.Name() == "fake-hi" {
		t.Error("Default selected an unavailable provider")
	}
	if got.Name() != "fake-lo" {
		// The synthetic provider (priority 0) must not outrank fake-lo.
		t.Errorf("Default = %q, want fake-lo", got.Name())
	}
}

func TestRegisteredOrder(t *testing.T) {
	a := &fakeProvider{name: "fake-z", available: true}
	Register(a, 999)
	defer Unregister("fake-z")

	names := Registered()
	if len(names) == 0 || names[0] != "fake-z" {
		t.Errorf("Registered = %v, want fake-z first", names)
	}
}

func TestListDevicesViaDefault(t *testing.T) {
	devices, err := ListDevices()
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	// The synthetic provider guarantees at least one device everywhere.
	if len(devices) == 0 {
		t.Error("expected at least one device")
	}
}

func TestOpenViaDefaultSynthetic(t *testing.T) {
	// Force the synthetic provider by unregistering nothing and opening its
	// well-known device ID through the provider directly.
	h, err := Get("synthetic").Open("synthetic:0", Constraints{Width: 16, Height: 16})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer h.Close()

	f, err := h.CaptureFrame()
	if err != nil {
		t.Fatalf("CaptureFrame failed: %v", err)
	}
	if len(f.Pixels) != 16*16*vitalscope.BytesPerPixel {
		t.Errorf("pixel bytes = %d, want %d", len(f.Pixels), 16*16*vitalscope.BytesPerPixel)
	}
}
