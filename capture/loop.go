package capture

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vitalscope/vitalscope"
)

// Loop drives the capture cycle: on every display tick it consults the
// pacer, captures a frame when due, publishes it to the bus, and pushes
// metadata to the sink.
//
// A capture failure skips that tick and increments a counter; it never
// stops the loop. Only context cancellation or a closed handle ends it.
type Loop struct {
	handle Handle
	bus    *vitalscope.FrameBus
	sink   vitalscope.MetaSink
	pacer  *Pacer
	tick   time.Duration
	rate   *RateCounter

	captured atomic.Uint64
	skipped  atomic.Uint64
	failed   atomic.Uint64
}

// LoopStats holds capture loop counters.
type LoopStats struct {
	// Captured is the number of frames captured and published.
	Captured uint64

	// Skipped is the number of display ticks skipped by pacing.
	Skipped uint64

	// Failed is the number of capture attempts that returned an error.
	Failed uint64

	// RatePerSecond is the number of captures in the trailing 1-second window.
	RatePerSecond int
}

// NewLoop creates a capture loop over an open handle. A nil sink discards
// metadata.
func NewLoop(handle Handle, bus *vitalscope.FrameBus, sink vitalscope.MetaSink, c Constraints) *Loop {
	cc := c.withDefaults()
	if sink == nil {
		sink = vitalscope.NopMetaSink{}
	}
	return &Loop{
		handle: handle,
		bus:    bus,
		sink:   sink,
		pacer:  NewPacer(cc.DisplayRate, cc.TargetCaptureRate),
		tick:   cc.TickInterval(),
		rate:   NewRateCounter(),
	}
}

// Run drives the loop until ctx is cancelled. It returns ctx.Err() on
// cancellation; it does not close the handle.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()

	slogger().Info("capture: loop started",
		"skip_ratio", l.pacer.Ratio(),
		"tick", l.tick)

	for {
		select {
		case <-ctx.Done():
			slogger().Info("capture: loop stopped", "captured", l.captured.Load())
			return ctx.Err()
		case <-ticker.C:
			l.Step()
		}
	}
}

// Step runs one display tick: pace, capture, publish. Exposed so callers
// with their own display callback can drive the loop tick by tick.
func (l *Loop) Step() {
	if !l.pacer.Tick() {
		l.skipped.Add(1)
		return
	}

	frame, err := l.handle.CaptureFrame()
	if err != nil {
		l.failed.Add(1)
		slogger().Warn("capture: frame skipped", "error", err)
		return
	}

	l.bus.Publish(frame)
	l.sink.Push(frame.Meta())
	l.captured.Add(1)
	l.rate.Add(time.Now())
}

// Stats returns the loop's counters.
func (l *Loop) Stats() LoopStats {
	return LoopStats{
		Captured:      l.captured.Load(),
		Skipped:       l.skipped.Load(),
		Failed:        l.failed.Load(),
		RatePerSecond: l.rate.Rate(time.Now()),
	}
}
