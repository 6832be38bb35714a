// Package gpu manages the compute device lifecycle, buffer and texture
// resources with usage-flag contracts, shader compilation and dispatch, and
// CPU<->GPU transfers for the motion magnification pipeline.
//
// A Context owns the device and queue; a ResourceManager owns the buffers
// and textures it creates under that context; a ShaderPipeline compiles
// compute kernels and dispatches them against bound resources; an Engine
// wraps all of it into a per-frame upload -> dispatch -> download operation.
package gpu

import (
	"fmt"
	"strings"
)

// Usage is a bit-set of capability flags fixed at resource creation.
// Flags restrict which operations are legal on the resource and are never
// mutated afterward.
type Usage uint32

const (
	// UsageStorage allows binding as a storage buffer in compute shaders.
	UsageStorage Usage = 1 << iota

	// UsageCopySrc allows the resource to be the source of a device copy.
	UsageCopySrc

	// UsageCopyDst allows the resource to be the target of queued writes
	// and device copies.
	UsageCopyDst

	// UsageUniform allows binding as a uniform buffer.
	UsageUniform

	// UsageMapRead allows CPU mapping for readback. Valid only on staging
	// buffers, combined with UsageCopyDst.
	UsageMapRead
)

// usageAll is the set of all known flags.
const usageAll = UsageStorage | UsageCopySrc | UsageCopyDst | UsageUniform | UsageMapRead

// Contains reports whether every flag in f is set in u.
func (u Usage) Contains(f Usage) bool { return u&f == f }

// String returns a "|"-joined flag list.
func (u Usage) String() string {
	if u == 0 {
		return "None"
	}
	var parts []string
	for _, f := range []struct {
		flag Usage
		name string
	}{
		{UsageStorage, "Storage"},
		{UsageCopySrc, "CopySrc"},
		{UsageCopyDst, "CopyDst"},
		{UsageUniform, "Uniform"},
		{UsageMapRead, "MapRead"},
	} {
		if u.Contains(f.flag) {
			parts = append(parts, f.name)
		}
	}
	if rest := u &^ usageAll; rest != 0 {
		parts = append(parts, fmt.Sprintf("Unknown(0x%x)", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// validateUsage enforces the creation-time usage contract: flags must be
// non-empty and drawn from the known set, and CPU-mapped reads must go
// through a dedicated staging buffer (MapRead may only pair with CopyDst).
func validateUsage(u Usage) error {
	if u == 0 {
		return fmt.Errorf("%w: empty flag set", ErrInvalidUsage)
	}
	if u&^usageAll != 0 {
		return fmt.Errorf("%w: unknown flags 0x%x", ErrInvalidUsage, uint32(u&^usageAll))
	}
	if u.Contains(UsageMapRead) && u&^(UsageMapRead|UsageCopyDst) != 0 {
		return fmt.Errorf("%w: MapRead combines only with CopyDst (use a staging buffer)", ErrInvalidUsage)
	}
	return nil
}

// TextureFormat enumerates the supported texture formats.
type TextureFormat int

const (
	// FormatRGBA8Unorm is 8-bit-per-channel RGBA, the system wire format.
	FormatRGBA8Unorm TextureFormat = iota

	// FormatR32Float is a single 32-bit float channel.
	FormatR32Float

	// FormatRG32Float is two 32-bit float channels.
	FormatRG32Float

	// FormatRGBA16Float is four 16-bit float channels.
	FormatRGBA16Float

	formatCount
)

// String returns the WGSL format name.
func (f TextureFormat) String() string {
	switch f {
	case FormatRGBA8Unorm:
		return "rgba8unorm"
	case FormatR32Float:
		return "r32float"
	case FormatRG32Float:
		return "rg32float"
	case FormatRGBA16Float:
		return "rgba16float"
	default:
		return fmt.Sprintf("Unknown(%d)", int(f))
	}
}

// BytesPerTexel returns the texel size in bytes.
func (f TextureFormat) BytesPerTexel() int {
	switch f {
	case FormatRGBA8Unorm, FormatR32Float:
		return 4
	case FormatRG32Float, FormatRGBA16Float:
		return 8
	default:
		return 0
	}
}

// valid reports whether f is one of the supported formats.
func (f TextureFormat) valid() bool { return f >= 0 && f < formatCount }

// Opaque adapter resource handles. 0 is never a valid ID.
type (
	// BufferID identifies a buffer inside an adapter.
	BufferID uint64

	// TextureID identifies a texture inside an adapter.
	TextureID uint64

	// PipelineID identifies a compiled compute pipeline inside an adapter.
	PipelineID uint64
)

// InvalidID is the zero value for all resource IDs.
const InvalidID = 0

// BindingMode describes how a shader accesses a bound buffer.
type BindingMode int

const (
	// BindUniform is a uniform buffer binding.
	BindUniform BindingMode = iota

	// BindReadOnlyStorage is a read-only storage buffer binding.
	BindReadOnlyStorage

	// BindStorage is a read-write storage buffer binding.
	BindStorage
)

// String returns the WGSL address-space spelling for the mode.
func (m BindingMode) String() string {
	switch m {
	case BindUniform:
		return "uniform"
	case BindReadOnlyStorage:
		return "storage, read"
	case BindStorage:
		return "storage, read_write"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// BindingLayout is one declared binding slot of a compute kernel.
type BindingLayout struct {
	// Binding is the @binding index within group 0.
	Binding int

	// Mode is the declared access mode.
	Mode BindingMode
}

// PipelineDescriptor describes a compute pipeline to an adapter.
type PipelineDescriptor struct {
	// Label is a debug name.
	Label string

	// Source is the WGSL source text.
	Source string

	// EntryPoint is the compute entry function name.
	EntryPoint string

	// Workgroup is the declared workgroup size (x, y, z).
	Workgroup [3]int

	// Bindings are the declared group-0 bindings, ascending by index.
	Bindings []BindingLayout
}

// BufferBinding attaches one buffer to one declared binding slot for a
// single dispatch. Bind groups are created per dispatch and not retained
// by resources.
type BufferBinding struct {
	Binding int
	Buffer  BufferID
}
