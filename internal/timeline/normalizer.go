// Package timeline converts raw antenna detections into per-animal position
// intervals and aligns them with the light/dark phase schedule.
package timeline

import (
	"sort"
	"time"

	"github.com/banshee-data/cohort.report/internal/habitat"
	"github.com/banshee-data/cohort.report/internal/monitoring"
)

var logf = monitoring.Stage("timeline")

// Options controls interval construction.
type Options struct {
	// CloseFinal extends each animal's last read to the end of the
	// recording window. When false the trailing read is dropped.
	CloseFinal bool
}

// Report counts what happened to the raw records during normalization.
type Report struct {
	Detections  int // raw records seen
	OutOfWindow int // records outside the recording window
	Duplicates  int // exact duplicate reads dropped
	Conflicts   int // same instant, different antenna; first read kept
	Malformed   int // unknown antenna id; record skipped
	Intervals   int // intervals produced
}

// Normalize pairs each animal's consecutive detections into position
// intervals. The position of an interval is derived from the (previous,
// current) antenna pair; unmapped pairs become the undefined position.
// Malformed individual records are skipped and counted, not fatal. An animal
// with fewer than two usable detections contributes no intervals.
//
// Each returned interval carries the phase containing its start; use
// SplitPhases to obtain the phase-exact form.
func Normalize(top *habitat.Topology, sched *habitat.Schedule, dets []habitat.Detection, opts Options) ([]habitat.Interval, *Report, error) {
	report := &Report{Detections: len(dets)}

	perAnimal := map[string][]habitat.Detection{}
	var animals []string
	for _, d := range dets {
		if !top.ValidAntenna(d.Antenna) {
			report.Malformed++
			logf("skipping read for %s: unknown antenna %d", d.AnimalID, d.Antenna)
			continue
		}
		if d.At.Before(sched.Start()) || d.At.After(sched.End()) {
			report.OutOfWindow++
			continue
		}
		if _, seen := perAnimal[d.AnimalID]; !seen {
			animals = append(animals, d.AnimalID)
		}
		perAnimal[d.AnimalID] = append(perAnimal[d.AnimalID], d)
	}
	sort.Strings(animals)

	var intervals []habitat.Interval
	for _, animal := range animals {
		stream := perAnimal[animal]
		sort.SliceStable(stream, func(i, j int) bool { return stream[i].At.Before(stream[j].At) })

		// Collapse repeated instants: an identical re-read is noise, a
		// conflicting one keeps the first antenna seen.
		deduped := stream[:0]
		for i, d := range stream {
			if i > 0 && d.At.Equal(deduped[len(deduped)-1].At) {
				if d.Antenna == deduped[len(deduped)-1].Antenna {
					report.Duplicates++
				} else {
					report.Conflicts++
					logf("conflicting reads for %s at %s: antennas %d and %d, keeping first",
						animal, d.At, deduped[len(deduped)-1].Antenna, d.Antenna)
				}
				continue
			}
			deduped = append(deduped, d)
		}

		for i := 1; i < len(deduped); i++ {
			prev, cur := deduped[i-1], deduped[i]
			iv, err := makeInterval(top, sched, animal, prev.Antenna, cur.Antenna, prev.At, cur.At)
			if err != nil {
				return nil, nil, err
			}
			intervals = append(intervals, iv)
		}
		if opts.CloseFinal && len(deduped) >= 2 {
			last := deduped[len(deduped)-1]
			if last.At.Before(sched.End()) {
				// The animal sits at its final antenna until the recording
				// ends; the (a, a) pair resolves to the adjacent cage.
				iv, err := makeInterval(top, sched, animal, last.Antenna, last.Antenna, last.At, sched.End())
				if err != nil {
					return nil, nil, err
				}
				intervals = append(intervals, iv)
			}
		}
	}

	sortIntervals(intervals)
	report.Intervals = len(intervals)
	return intervals, report, nil
}

func makeInterval(top *habitat.Topology, sched *habitat.Schedule, animal string, prevAntenna, curAntenna int, start, end time.Time) (habitat.Interval, error) {
	pos, ok := top.Position(prevAntenna, curAntenna)
	if !ok {
		pos = habitat.PositionUndefined
	}
	phase, ok := sched.At(start)
	if !ok {
		return habitat.Interval{}, habitat.Configf("phase schedule does not cover %s", start)
	}
	return habitat.Interval{
		AnimalID: animal,
		Position: pos,
		Start:    start,
		End:      end,
		Phase:    phase.Key(),
	}, nil
}

// SplitPhases intersects each interval with every phase it overlaps,
// emitting one interval per non-empty intersection. The union of the pieces
// reconstructs the original span exactly; zero-length pieces are dropped.
func SplitPhases(sched *habitat.Schedule, intervals []habitat.Interval) ([]habitat.Interval, error) {
	var out []habitat.Interval
	for _, iv := range intervals {
		if iv.End.Before(iv.Start) {
			return nil, habitat.Integrityf("interval for %s at %s has negative duration", iv.AnimalID, iv.Start)
		}
		if !sched.Covers(iv.Start, iv.End) {
			return nil, habitat.Configf("phase schedule does not cover interval [%s, %s]", iv.Start, iv.End)
		}
		for _, p := range sched.Phases() {
			start, end := iv.Start, iv.End
			if start.Before(p.Start) {
				start = p.Start
			}
			if end.After(p.End) {
				end = p.End
			}
			if !end.After(start) {
				continue
			}
			out = append(out, habitat.Interval{
				AnimalID: iv.AnimalID,
				Position: iv.Position,
				Start:    start,
				End:      end,
				Phase:    p.Key(),
			})
		}
	}
	sortIntervals(out)
	return out, nil
}

func sortIntervals(ivs []habitat.Interval) {
	sort.SliceStable(ivs, func(i, j int) bool {
		if !ivs[i].Start.Equal(ivs[j].Start) {
			return ivs[i].Start.Before(ivs[j].Start)
		}
		return ivs[i].AnimalID < ivs[j].AnimalID
	})
}
