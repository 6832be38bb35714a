// Package analysis consumes frame metadata from the capture pipeline.
// Analyzers receive index, timestamp, and dimensions only; pixel data stays
// inside the capture and GPU paths.
package analysis

import (
	"sync"

	vitalscope "github.com/vitalscope/vitalscope"
)

// maxIntervalSamples bounds the rolling interval window.
const maxIntervalSamples = 120

// Stats aggregates frame cadence from metadata. It implements
// vitalscope.MetaSink and is safe for one producer and any number of
// snapshot readers.
type Stats struct {
	mu        sync.Mutex
	count     uint64
	lastTsMs  int64
	lastIndex uint64
	dropped   uint64
	intervals []int64
}

// NewStats creates an empty aggregator.
func NewStats() *Stats {
	return &Stats{}
}

// Push records one frame's metadata.
func (s *Stats) Push(meta vitalscope.FrameMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count > 0 {
		if d := meta.TimestampMs - s.lastTsMs; d >= 0 {
			s.intervals = append(s.intervals, d)
			if len(s.intervals) > maxIntervalSamples {
				s.intervals = s.intervals[len(s.intervals)-maxIntervalSamples:]
			}
		}
		if gap := meta.FrameIndex - s.lastIndex; gap > 1 {
			s.dropped += gap - 1
		}
	}
	s.count++
	s.lastTsMs = meta.TimestampMs
	s.lastIndex = meta.FrameIndex
}

// Snapshot is a point-in-time view of the cadence aggregates.
type Snapshot struct {
	// Frames is the number of metadata records received.
	Frames uint64

	// Dropped counts index gaps between consecutive records.
	Dropped uint64

	// MeanIntervalMs is the mean inter-frame interval over the rolling
	// window, 0 before two frames arrive.
	MeanIntervalMs float64

	// EffectiveFPS is 1000/MeanIntervalMs, 0 before two frames arrive.
	EffectiveFPS float64
}

// Snapshot returns the current aggregates.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Frames: s.count, Dropped: s.dropped}
	if len(s.intervals) == 0 {
		return snap
	}
	var sum int64
	for _, d := range s.intervals {
		sum += d
	}
	snap.MeanIntervalMs = float64(sum) / float64(len(s.intervals))
	if snap.MeanIntervalMs > 0 {
		snap.EffectiveFPS = 1000 / snap.MeanIntervalMs
	}
	return snap
}

// Fanout forwards each metadata record to every child sink in order.
type Fanout struct {
	sinks []vitalscope.MetaSink
}

// NewFanout creates a fanout over the given sinks. Nil sinks are skipped.
func NewFanout(sinks ...vitalscope.MetaSink) *Fanout {
	out := make([]vitalscope.MetaSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Fanout{sinks: out}
}

// Push forwards meta to every sink.
func (f *Fanout) Push(meta vitalscope.FrameMeta) {
	for _, s := range f.sinks {
		s.Push(meta)
	}
}
