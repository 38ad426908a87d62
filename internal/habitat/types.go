// Package habitat models the fixed cage/tunnel housing rig: the antenna
// topology, position identities, and the light/dark phase schedule that the
// analysis pipeline aligns detections against.
package habitat

import "time"

// Detection is a single raw antenna read: one animal passing one fixed
// sensor at one instant. Detections are unordered across animals; each
// animal's own stream is sorted before interval construction.
type Detection struct {
	AnimalID string
	Antenna  int
	At       time.Time
}

// PhaseKey identifies one concrete phase instance within the recording:
// the phase name plus its per-name ordinal (the third dark phase of the
// experiment is {dark_phase, 3}).
type PhaseKey struct {
	Name    string
	Ordinal int
}

// Interval is a span of time one animal spent at one position. For a given
// animal, intervals are non-overlapping and ordered. In the phase-split
// ("padded") form an interval never spans two phases.
type Interval struct {
	AnimalID string
	Position string
	Start    time.Time
	End      time.Time
	Phase    PhaseKey
}

// Duration returns the interval length.
func (iv Interval) Duration() time.Duration { return iv.End.Sub(iv.Start) }

// Seconds returns the interval length in seconds.
func (iv Interval) Seconds() float64 { return iv.End.Sub(iv.Start).Seconds() }
