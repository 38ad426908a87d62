// Package sociability computes pairwise co-occupancy and the in-cohort
// sociability statistic over phase-split position intervals.
package sociability

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/cohort.report/internal/activity"
	"github.com/banshee-data/cohort.report/internal/habitat"
)

// Config tunes the co-occupancy join.
type Config struct {
	// MinInteraction discards individual overlaps shorter than this before
	// they accumulate into time-together. Zero keeps everything.
	MinInteraction time.Duration

	// Workers bounds the pair fan-out. Zero means half the CPUs, minimum one.
	Workers int
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}

// Pair is an unordered animal pair with a canonical lexicographic order.
type Pair struct {
	A string
	B string
}

// MakePair normalizes the pair ordering so {x,y} and {y,x} are the same key.
func MakePair(a, b string) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

// TogetherKey addresses one cell of the time-together table.
type TogetherKey struct {
	Pair  Pair
	Cage  string
	Phase habitat.PhaseKey
}

// SociabilityKey addresses one cell of the in-cohort sociability table.
type SociabilityKey struct {
	Pair  Pair
	Phase habitat.PhaseKey
}

// TimeTogether computes, for every unordered animal pair, cage and phase
// instance, the total seconds the two animals' cage intervals overlap.
// Inputs are immutable and the join is read-only, so pairs are processed
// concurrently.
func TimeTogether(top *habitat.Topology, padded []habitat.Interval, animals []string, cfg Config) map[TogetherKey]float64 {
	type cell struct {
		cage  string
		phase habitat.PhaseKey
	}
	index := map[string]map[cell][]habitat.Interval{}
	for _, iv := range padded {
		if !top.IsCage(iv.Position) {
			continue
		}
		byCell, ok := index[iv.AnimalID]
		if !ok {
			byCell = map[cell][]habitat.Interval{}
			index[iv.AnimalID] = byCell
		}
		c := cell{cage: iv.Position, phase: iv.Phase}
		byCell[c] = append(byCell[c], iv)
	}

	var pairs []Pair
	sorted := append([]string(nil), animals...)
	sort.Strings(sorted)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			pairs = append(pairs, Pair{A: sorted[i], B: sorted[j]})
		}
	}

	out := map[TogetherKey]float64{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	work := make(chan Pair)

	for w := 0; w < cfg.workers(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pair := range work {
				cellsA := index[pair.A]
				cellsB := index[pair.B]
				if cellsA == nil || cellsB == nil {
					continue
				}
				for c, ivsA := range cellsA {
					ivsB, ok := cellsB[c]
					if !ok {
						continue
					}
					secs := overlapSeconds(ivsA, ivsB, cfg.MinInteraction)
					if secs == 0 {
						continue
					}
					mu.Lock()
					out[TogetherKey{Pair: pair, Cage: c.cage, Phase: c.phase}] += secs
					mu.Unlock()
				}
			}
		}()
	}
	for _, pair := range pairs {
		work <- pair
	}
	close(work)
	wg.Wait()
	return out
}

// overlapSeconds merges two time-sorted interval lists and sums the pairwise
// overlap durations, discarding overlaps below the threshold.
func overlapSeconds(a, b []habitat.Interval, minOverlap time.Duration) float64 {
	var total float64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		start := a[i].Start
		if b[j].Start.After(start) {
			start = b[j].Start
		}
		end := a[i].End
		if b[j].End.Before(end) {
			end = b[j].End
		}
		if overlap := end.Sub(start); overlap >= minOverlap && overlap > 0 {
			total += overlap.Seconds()
		}
		if a[i].End.Before(b[j].End) {
			i++
		} else {
			j++
		}
	}
	return total
}

// InCohort derives the in-cohort sociability statistic: observed
// time-together summed over cages, divided by the expected time-together
// under independence. For a pair with cage occupancy probabilities p1 and p2
// in a phase of duration T, the expectation is the sum over cages of
// p1*p2*T. Values above 1 indicate affiliative preference, below 1
// avoidance. Phase durations must already be rounded to whole hours.
func InCohort(
	together map[TogetherKey]float64,
	timePerPosition map[activity.Key]float64,
	durations map[habitat.PhaseKey]float64,
	top *habitat.Topology,
	animals []string,
) map[SociabilityKey]float64 {
	cages := top.Cages()
	out := map[SociabilityKey]float64{}

	sorted := append([]string(nil), animals...)
	sort.Strings(sorted)

	for phase, duration := range durations {
		if duration <= 0 {
			continue
		}
		for i := 0; i < len(sorted); i++ {
			for j := i + 1; j < len(sorted); j++ {
				pair := Pair{A: sorted[i], B: sorted[j]}

				var observed, expected float64
				for _, cage := range cages {
					observed += together[TogetherKey{Pair: pair, Cage: cage, Phase: phase}]
					t1 := timePerPosition[activity.Key{AnimalID: pair.A, Phase: phase, Position: cage}]
					t2 := timePerPosition[activity.Key{AnimalID: pair.B, Phase: phase, Position: cage}]
					expected += (t1 / duration) * (t2 / duration) * duration
				}

				key := SociabilityKey{Pair: pair, Phase: phase}
				if expected == 0 {
					out[key] = 0
					continue
				}
				out[key] = observed / expected
			}
		}
	}
	return out
}
