package gpu

import _ "embed"

// Embedded WGSL compute kernels.

//go:embed shaders/identity.wgsl
var identityWGSL string

// IdentityShaderSource returns the built-in pass-through kernel. It reads
// packed RGBA8 texels from a storage buffer and writes them unchanged, and
// is the default kernel of the transfer engine.
func IdentityShaderSource() string { return identityWGSL }

// IdentityEntryPoint is the entry function of the built-in kernel.
const IdentityEntryPoint = "main"
