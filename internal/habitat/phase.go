package habitat

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Phase names. The rig alternates between a lights-on and a lights-off
// segment once per day.
const (
	LightPhase = "light_phase"
	DarkPhase  = "dark_phase"
)

// Phase is one concrete light or dark segment of the recording window.
// Phases are contiguous, non-overlapping, and cover the whole window.
type Phase struct {
	Name    string
	Ordinal int // per-name counter, starting at 1
	Start   time.Time
	End     time.Time
	Dark    bool
}

// Key returns the phase's identity used for grouping.
func (p Phase) Key() PhaseKey { return PhaseKey{Name: p.Name, Ordinal: p.Ordinal} }

// DayTime is a wall-clock time of day, e.g. the daily moment the lights
// switch on.
type DayTime struct {
	Hour   int
	Minute int
	Second int
}

// ParseDayTime parses "HH:MM:SS".
func ParseDayTime(s string) (DayTime, error) {
	var d DayTime
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &d.Hour, &d.Minute, &d.Second); err != nil {
		return DayTime{}, Configf("invalid time of day %q", s)
	}
	if d.Hour < 0 || d.Hour > 23 || d.Minute < 0 || d.Minute > 59 || d.Second < 0 || d.Second > 59 {
		return DayTime{}, Configf("time of day %q out of range", s)
	}
	return d, nil
}

// on anchors the time of day to the calendar date of t.
func (d DayTime) on(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), d.Hour, d.Minute, d.Second, 0, t.Location())
}

// Schedule is the resolved phase schedule of one recording.
type Schedule struct {
	phases []Phase
}

// BuildSchedule derives the phase list for the window [start, finish] from
// the daily light-on and light-off switch times. The first and last phases
// are truncated to the window edges.
func BuildSchedule(start, finish time.Time, lightStart, darkStart DayTime) (*Schedule, error) {
	if !start.Before(finish) {
		return nil, Configf("recording window start %s is not before finish %s", start, finish)
	}
	if lightStart == darkStart {
		return nil, Configf("light and dark phase start times coincide")
	}

	// One switch instant per phase per day, padded a day on both sides so
	// the phase containing the window start is identified correctly.
	type boundary struct {
		at   time.Time
		dark bool
	}
	var bounds []boundary
	for day := start.AddDate(0, 0, -1); !day.After(finish.AddDate(0, 0, 1)); day = day.AddDate(0, 0, 1) {
		bounds = append(bounds, boundary{at: lightStart.on(day), dark: false})
		bounds = append(bounds, boundary{at: darkStart.on(day), dark: true})
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i].at.Before(bounds[j].at) })

	s := &Schedule{}
	counts := map[string]int{}
	for i := 0; i < len(bounds)-1; i++ {
		segStart, segEnd := bounds[i].at, bounds[i+1].at
		if !segEnd.After(start) || !segStart.Before(finish) {
			continue
		}
		if segStart.Before(start) {
			segStart = start
		}
		if segEnd.After(finish) {
			segEnd = finish
		}
		name := LightPhase
		if bounds[i].dark {
			name = DarkPhase
		}
		counts[name]++
		s.phases = append(s.phases, Phase{
			Name:    name,
			Ordinal: counts[name],
			Start:   segStart,
			End:     segEnd,
			Dark:    bounds[i].dark,
		})
	}
	if len(s.phases) == 0 {
		return nil, Configf("phase schedule does not cover the recording window")
	}
	return s, nil
}

// Phases returns the phases in chronological order.
func (s *Schedule) Phases() []Phase {
	out := make([]Phase, len(s.phases))
	copy(out, s.phases)
	return out
}

// Start returns the beginning of the recording window.
func (s *Schedule) Start() time.Time { return s.phases[0].Start }

// End returns the end of the recording window.
func (s *Schedule) End() time.Time { return s.phases[len(s.phases)-1].End }

// At returns the phase containing t. Phase intervals are half-open
// [Start, End) except the last, which includes its end instant.
func (s *Schedule) At(t time.Time) (Phase, bool) {
	for i, p := range s.phases {
		if !t.Before(p.Start) && (t.Before(p.End) || (i == len(s.phases)-1 && t.Equal(p.End))) {
			return p, true
		}
	}
	return Phase{}, false
}

// Covers reports whether [a, b] lies fully inside the recording window.
func (s *Schedule) Covers(a, b time.Time) bool {
	return !a.Before(s.Start()) && !b.After(s.End())
}

// Durations returns seconds per phase instance, rounded to the nearest whole
// hour with a one-hour minimum. The rounded values feed sociability
// normalization only; interval splitting always uses exact boundaries.
func (s *Schedule) Durations() map[PhaseKey]float64 {
	out := make(map[PhaseKey]float64, len(s.phases))
	for _, p := range s.phases {
		hours := math.Round(p.End.Sub(p.Start).Hours())
		if hours < 1 {
			hours = 1
		}
		out[p.Key()] = hours * 3600
	}
	return out
}
