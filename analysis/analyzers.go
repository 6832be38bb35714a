package analysis

import (
	vitalscope "github.com/vitalscope/vitalscope"
)

// BreathingAnalyzer estimates breathing rate from frame cadence metadata.
// Implementations consume metadata only; the magnified pixel path feeds a
// separate estimator stage.
type BreathingAnalyzer interface {
	vitalscope.MetaSink

	// BreathingRate returns breaths per minute and whether an estimate is
	// available yet.
	BreathingRate() (float64, bool)
}

// PostureAnalyzer classifies subject posture from frame metadata.
type PostureAnalyzer interface {
	vitalscope.MetaSink

	// Posture returns the current classification and whether one is
	// available yet.
	Posture() (string, bool)
}

// NopBreathingAnalyzer accepts metadata and never produces an estimate.
// Placeholder until the magnification kernel output drives a real estimator.
type NopBreathingAnalyzer struct{}

func (NopBreathingAnalyzer) Push(vitalscope.FrameMeta)      {}
func (NopBreathingAnalyzer) BreathingRate() (float64, bool) { return 0, false }

// NopPostureAnalyzer accepts metadata and never produces a classification.
type NopPostureAnalyzer struct{}

func (NopPostureAnalyzer) Push(vitalscope.FrameMeta) {}
func (NopPostureAnalyzer) Posture() (string, bool)   { return "", false }
