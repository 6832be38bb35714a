package capture

// Pacer decides, per display tick, whether to capture a frame.
//
// The skip ratio R is displayRate/targetCaptureRate rounded to the nearest
// integer, minimum 1. Tick returns true at most once every R ticks; drift
// beyond one tick at window boundaries is tolerated and not corrected.
type Pacer struct {
	ratio int
	skip  int
}

// NewPacer creates a pacer for the given display and target capture rates.
// Non-positive rates are treated as equal rates (ratio 1).
func NewPacer(displayRate, targetCaptureRate int) *Pacer {
	return &Pacer{ratio: SkipRatio(displayRate, targetCaptureRate)}
}

// SkipRatio returns round(displayRate/targetCaptureRate), minimum 1.
func SkipRatio(displayRate, targetCaptureRate int) int {
	if displayRate <= 0 || targetCaptureRate <= 0 {
		return 1
	}
	r := (displayRate + targetCaptureRate/2) / targetCaptureRate
	if r < 1 {
		r = 1
	}
	return r
}

// Ratio returns the pacer's skip ratio.
func (p *Pacer) Ratio() int { return p.ratio }

// Tick advances one display tick and reports whether a capture should run
// on this tick. The first tick always captures.
func (p *Pacer) Tick() bool {
	if p.skip > 0 {
		p.skip--
		return false
	}
	p.skip = p.ratio - 1
	return true
}

// Reset restarts the skip cycle so the next Tick captures.
func (p *Pacer) Reset() { p.skip = 0 }
