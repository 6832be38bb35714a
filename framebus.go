package vitalscope

import (
	"sync/atomic"
)

// FrameBus is a single-slot, latest-value-wins channel between the capture
// loop and its consumers.
//
// A producer publishes by atomically swapping an immutable *Frame into the
// slot; it never waits for a consumer. A consumer reads whatever complete
// frame is currently in the slot. A slow consumer silently misses
// intermediate frames: this is backpressure-by-drop, not
// backpressure-by-block.
//
// Because the only shared state is one atomic pointer to an immutable value,
// a reader can never observe interleaved bytes from two publications.
type FrameBus struct {
	slot atomic.Pointer[Frame]

	published   atomic.Uint64
	overwritten atomic.Uint64
}

// NewFrameBus creates an empty bus.
func NewFrameBus() *FrameBus {
	return &FrameBus{}
}

// Publish stores f as the latest frame, replacing any previous value.
// The frame must not be mutated after publication. Publishing nil is a no-op.
func (b *FrameBus) Publish(f *Frame) {
	if f == nil {
		return
	}
	prev := b.slot.Swap(f)
	b.published.Add(1)
	if prev != nil {
		b.overwritten.Add(1)
	}
}

// Latest returns the most recently published frame, or nil if nothing has
// been published yet. The returned frame is shared and must be treated as
// read-only; use Frame.Clone to mutate.
func (b *FrameBus) Latest() *Frame {
	return b.slot.Load()
}

// Take returns the most recently published frame and clears the slot, or nil
// if the slot is empty. Useful for consumers that must process each frame at
// most once.
func (b *FrameBus) Take() *Frame {
	return b.slot.Swap(nil)
}

// Stats reports bus counters since creation.
func (b *FrameBus) Stats() FrameBusStats {
	return FrameBusStats{
		Published:   b.published.Load(),
		Overwritten: b.overwritten.Load(),
	}
}

// FrameBusStats holds diagnostic counters for a FrameBus.
type FrameBusStats struct {
	// Published is the total number of frames published.
	Published uint64

	// Overwritten counts publications that replaced an unconsumed frame.
	Overwritten uint64
}
