// Package chase derives directional chase events from tunnel traversal
// intervals: one animal following another through the same tunnel in the
// same direction within a short window.
package chase

import (
	"sort"
	"time"

	"github.com/banshee-data/cohort.report/internal/habitat"
)

// Config bounds what counts as a chase.
type Config struct {
	// Window is the look-ahead after the chased animal leaves the tunnel.
	// The follower must enter strictly inside it; a zero window therefore
	// never emits an event.
	Window time.Duration

	// MinDelay rejects follows quicker than this. Near-simultaneous reads
	// on both tunnel antennas are usually two animals already in the tunnel
	// together, not a chase. Zero disables the floor.
	MinDelay time.Duration
}

// DefaultConfig matches the rig's established chase bounds: the follower
// enters between 100 ms and 1 s after the leader leaves.
func DefaultConfig() Config {
	return Config{Window: time.Second, MinDelay: 100 * time.Millisecond}
}

// Event is one inferred chase. The chaser is the animal with the later
// traversal start, credited as the dominant actor. Events are immutable and
// ordered by timestamp, ties broken by detection order.
type Event struct {
	At     time.Time
	Chaser string
	Chased string
	Tunnel string // canonical undirected tunnel id
}

// Detect scans the phase-split intervals for chase patterns. Only
// directional tunnel traversals participate; traversals of different tunnels
// or opposite directions never pair. Each traversal contributes to at most
// one event on each side, so a single physical chase is not emitted twice.
// A traversal with no follower inside the window is an expected non-event.
func Detect(top *habitat.Topology, padded []habitat.Interval, cfg Config) []Event {
	byDirection := map[string][]habitat.Interval{}
	for _, iv := range padded {
		if top.IsTunnel(iv.Position) {
			byDirection[iv.Position] = append(byDirection[iv.Position], iv)
		}
	}

	var events []Event
	for direction, traversals := range byDirection {
		sort.SliceStable(traversals, func(i, j int) bool {
			return traversals[i].Start.Before(traversals[j].Start)
		})
		usedChased := make([]bool, len(traversals))
		usedChaser := make([]bool, len(traversals))

		for i := range traversals {
			if usedChased[i] {
				continue
			}
			for j := i + 1; j < len(traversals); j++ {
				delay := traversals[j].Start.Sub(traversals[i].End)
				if delay >= cfg.Window {
					break
				}
				if usedChaser[j] || traversals[j].AnimalID == traversals[i].AnimalID {
					continue
				}
				if delay <= cfg.MinDelay || delay <= 0 {
					continue
				}
				events = append(events, Event{
					At:     traversals[j].Start,
					Chaser: traversals[j].AnimalID,
					Chased: traversals[i].AnimalID,
					Tunnel: top.Canonical(direction),
				})
				usedChased[i] = true
				usedChaser[j] = true
				break
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].At.Before(events[j].At) })
	return events
}

// Counts aggregates events into a chaser-by-chased count matrix over the
// given cohort. The full cross minus the diagonal is present, zeros
// included, so pairs that never chased still appear.
func Counts(events []Event, animals []string) map[string]map[string]int {
	out := make(map[string]map[string]int, len(animals))
	for _, a := range animals {
		out[a] = make(map[string]int, len(animals)-1)
		for _, b := range animals {
			if b != a {
				out[a][b] = 0
			}
		}
	}
	for _, ev := range events {
		if out[ev.Chaser] == nil {
			out[ev.Chaser] = map[string]int{}
		}
		out[ev.Chaser][ev.Chased]++
	}
	return out
}
