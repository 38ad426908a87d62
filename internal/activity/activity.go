// Package activity aggregates phase-split position intervals into
// time-per-position and visits-per-position tables.
package activity

import (
	"sort"

	"github.com/banshee-data/cohort.report/internal/habitat"
)

// Key addresses one cell of an aggregate table. Positions are canonical:
// both traversal directions of a tunnel accumulate into the same entry.
type Key struct {
	AnimalID string
	Phase    habitat.PhaseKey
	Position string
}

// TimePerPosition sums interval durations (seconds) per animal, phase
// instance and canonical position. Because the input is phase-split and
// non-overlapping per animal, the per-animal sum inside one phase never
// exceeds that phase's length.
func TimePerPosition(top *habitat.Topology, padded []habitat.Interval) map[Key]float64 {
	out := map[Key]float64{}
	for _, iv := range padded {
		out[keyOf(top, iv)] += iv.Seconds()
	}
	return out
}

// VisitsPerPosition counts intervals per animal, phase instance and
// canonical position.
func VisitsPerPosition(top *habitat.Topology, padded []habitat.Interval) map[Key]int {
	out := map[Key]int{}
	for _, iv := range padded {
		out[keyOf(top, iv)]++
	}
	return out
}

func keyOf(top *habitat.Topology, iv habitat.Interval) Key {
	return Key{
		AnimalID: iv.AnimalID,
		Phase:    iv.Phase,
		Position: top.Canonical(iv.Position),
	}
}

// Summary is a per-animal activity roll-up across the whole recording.
type Summary struct {
	AnimalID        string
	TotalSeconds    float64
	Visits          int
	TunnelCrossings int
}

// Summarize rolls the interval table up to one row per animal, ordered by
// animal id.
func Summarize(top *habitat.Topology, padded []habitat.Interval) []Summary {
	byAnimal := map[string]*Summary{}
	for _, iv := range padded {
		s, ok := byAnimal[iv.AnimalID]
		if !ok {
			s = &Summary{AnimalID: iv.AnimalID}
			byAnimal[iv.AnimalID] = s
		}
		s.TotalSeconds += iv.Seconds()
		s.Visits++
		if top.IsTunnel(iv.Position) {
			s.TunnelCrossings++
		}
	}
	out := make([]Summary, 0, len(byAnimal))
	for _, s := range byAnimal {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnimalID < out[j].AnimalID })
	return out
}
