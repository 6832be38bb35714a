package gpu

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// maxWorkgroupInvocations caps wx*wy*wz per the baseline device limits.
const maxWorkgroupInvocations = 256

// ShaderModule is a compiled compute kernel plus the reflection metadata
// needed to bind resources and size dispatches.
type ShaderModule struct {
	// Source is the WGSL text the module was compiled from.
	Source string

	// EntryPoint is the compute entry function name.
	EntryPoint string

	// Workgroup is the declared workgroup size (x, y, z).
	Workgroup [3]int

	// Bindings are the declared group-0 bindings, ascending by index.
	Bindings []BindingLayout

	pipeline PipelineID
	released bool
}

// BindGroup is a validated set of buffers matching a module's declared
// bindings, ready for dispatch. Built per use and not retained by buffers.
type BindGroup struct {
	module   *ShaderModule
	bindings []BufferBinding
}

// ShaderPipeline compiles compute kernels and dispatches them against bound
// buffers under one Context.
type ShaderPipeline struct {
	ctx *Context

	mu      sync.Mutex
	modules map[*ShaderModule]struct{}
}

// NewShaderPipeline creates a pipeline factory bound to ctx.
func NewShaderPipeline(ctx *Context) *ShaderPipeline {
	return &ShaderPipeline{
		ctx:     ctx,
		modules: make(map[*ShaderModule]struct{}),
	}
}

var (
	entryPointRe = regexp.MustCompile(`@compute\s+@workgroup_size\(([^)]*)\)\s*\n?\s*fn\s+([A-Za-z_][A-Za-z0-9_]*)`)
	bindingRe    = regexp.MustCompile(`@group\(0\)\s*@binding\((\d+)\)\s*var\s*(?:<([^>]*)>)?`)
)

// Compile parses and compiles WGSL source for the named entry point. It
// returns a *CompileError carrying diagnostics when the source is missing
// the entry point, declares an oversized workgroup, or fails backend
// compilation.
func (sp *ShaderPipeline) Compile(source, entryPoint string) (*ShaderModule, error) {
	if strings.TrimSpace(source) == "" {
		return nil, compileErrorf(entryPoint, "empty shader source")
	}
	if entryPoint == "" {
		return nil, compileErrorf(entryPoint, "entry point name is required")
	}

	workgroup, err := parseWorkgroup(source, entryPoint)
	if err != nil {
		return nil, err
	}
	if n := workgroup[0] * workgroup[1] * workgroup[2]; n > maxWorkgroupInvocations {
		return nil, compileErrorf(entryPoint,
			"workgroup size %dx%dx%d = %d invocations exceeds limit %d",
			workgroup[0], workgroup[1], workgroup[2], n, maxWorkgroupInvocations)
	}

	bindings, err := parseBindings(source, entryPoint)
	if err != nil {
		return nil, err
	}

	adapter, err := sp.ctx.live()
	if err != nil {
		return nil, err
	}

	label := "compute_" + entryPoint
	id, err := adapter.CreatePipeline(PipelineDescriptor{
		Label:      label,
		Source:     source,
		EntryPoint: entryPoint,
		Workgroup:  workgroup,
		Bindings:   bindings,
	})
	if err != nil {
		var ce *CompileError
		if errors.As(err, &ce) {
			return nil, ce
		}
		return nil, err
	}

	m := &ShaderModule{
		Source:     source,
		EntryPoint: entryPoint,
		Workgroup:  workgroup,
		Bindings:   bindings,
		pipeline:   id,
	}
	sp.mu.Lock()
	sp.modules[m] = struct{}{}
	sp.mu.Unlock()

	slogger().Debug("gpu: shader compiled",
		"entry", entryPoint,
		"workgroup", fmt.Sprintf("%dx%dx%d", workgroup[0], workgroup[1], workgroup[2]),
		"bindings", len(bindings))
	return m, nil
}

// parseWorkgroup extracts the @workgroup_size of the named entry point.
// Omitted y and z default to 1.
func parseWorkgroup(source, entryPoint string) ([3]int, error) {
	for _, m := range entryPointRe.FindAllStringSubmatch(source, -1) {
		if m[2] != entryPoint {
			continue
		}
		dims := [3]int{1, 1, 1}
		parts := strings.Split(m[1], ",")
		if len(parts) > 3 {
			return dims, compileErrorf(entryPoint, "workgroup_size has %d dimensions (max 3)", len(parts))
		}
		for i, p := range parts {
			v, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || v <= 0 {
				return dims, compileErrorf(entryPoint, "invalid workgroup_size component %q", strings.TrimSpace(p))
			}
			dims[i] = v
		}
		return dims, nil
	}
	return [3]int{}, compileErrorf(entryPoint, "no @compute entry point %q in source", entryPoint)
}

// parseBindings extracts the group-0 binding declarations.
func parseBindings(source, entryPoint string) ([]BindingLayout, error) {
	matches := bindingRe.FindAllStringSubmatch(source, -1)
	bindings := make([]BindingLayout, 0, len(matches))
	seen := make(map[int]bool, len(matches))

	for _, m := range matches {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, compileErrorf(entryPoint, "invalid binding index %q", m[1])
		}
		if seen[idx] {
			return nil, compileErrorf(entryPoint, "duplicate @binding(%d)", idx)
		}
		seen[idx] = true

		mode := BindUniform
		space := strings.TrimSpace(m[2])
		switch {
		case strings.HasPrefix(space, "storage"):
			if strings.Contains(space, "read_write") {
				mode = BindStorage
			} else {
				mode = BindReadOnlyStorage
			}
		case space == "uniform" || space == "":
			mode = BindUniform
		default:
			return nil, compileErrorf(entryPoint, "unsupported address space %q at @binding(%d)", space, idx)
		}
		bindings = append(bindings, BindingLayout{Binding: idx, Mode: mode})
	}

	sort.Slice(bindings, func(i, j int) bool { return bindings[i].Binding < bindings[j].Binding })
	return bindings, nil
}

// BuildBindGroup validates that every binding the module declares is
// supplied and returns a dispatch-ready bind group. A declared binding with
// no buffer fails with ErrBindingMismatch; extra entries are rejected the
// same way.
func (sp *ShaderPipeline) BuildBindGroup(m *ShaderModule, buffers map[int]*Buffer) (*BindGroup, error) {
	if m == nil || m.released {
		return nil, ErrResourceDestroyed
	}

	bindings := make([]BufferBinding, 0, len(m.Bindings))
	for _, layout := range m.Bindings {
		b, ok := buffers[layout.Binding]
		if !ok || b == nil {
			return nil, fmt.Errorf("%w: @binding(%d) declared by %q has no buffer",
				ErrBindingMismatch, layout.Binding, m.EntryPoint)
		}
		if b.destroyed {
			return nil, fmt.Errorf("%w: buffer at @binding(%d)", ErrResourceDestroyed, layout.Binding)
		}
		bindings = append(bindings, BufferBinding{Binding: layout.Binding, Buffer: b.id})
	}

	if len(buffers) > len(m.Bindings) {
		declared := make(map[int]bool, len(m.Bindings))
		for _, layout := range m.Bindings {
			declared[layout.Binding] = true
		}
		for idx := range buffers {
			if !declared[idx] {
				return nil, fmt.Errorf("%w: buffer supplied for undeclared @binding(%d)",
					ErrBindingMismatch, idx)
			}
		}
	}

	return &BindGroup{module: m, bindings: bindings}, nil
}

// DispatchGrid returns the dispatch grid covering a width x height domain
// with the given workgroup size: (ceil(w/wx), ceil(h/wy), 1).
func DispatchGrid(width, height int, workgroup [3]int) [3]uint32 {
	wx, wy := workgroup[0], workgroup[1]
	if wx <= 0 {
		wx = 1
	}
	if wy <= 0 {
		wy = 1
	}
	return [3]uint32{
		uint32((width + wx - 1) / wx),
		uint32((height + wy - 1) / wy),
		1,
	}
}

// Dispatch enqueues one compute pass of m over a width x height domain using
// the bind group, then waits for completion.
func (sp *ShaderPipeline) Dispatch(bg *BindGroup, width, height int) error {
	if bg == nil || bg.module == nil || bg.module.released {
		return ErrResourceDestroyed
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: dispatch domain %dx%d", ErrInvalidSize, width, height)
	}
	adapter, err := sp.ctx.live()
	if err != nil {
		return err
	}
	return adapter.Dispatch(bg.module.pipeline, bg.bindings, DispatchGrid(width, height, bg.module.Workgroup))
}

// Release destroys a compiled module. Idempotent.
func (sp *ShaderPipeline) Release(m *ShaderModule) {
	if m == nil || m.released {
		return
	}
	m.released = true

	sp.mu.Lock()
	delete(sp.modules, m)
	sp.mu.Unlock()

	if adapter, err := sp.ctx.live(); err == nil {
		adapter.DestroyPipeline(m.pipeline)
	}
}

// ReleaseAll destroys every module compiled through this pipeline.
func (sp *ShaderPipeline) ReleaseAll() {
	sp.mu.Lock()
	mods := make([]*ShaderModule, 0, len(sp.modules))
	for m := range sp.modules {
		mods = append(mods, m)
	}
	sp.mu.Unlock()

	for _, m := range mods {
		sp.Release(m)
	}
}
