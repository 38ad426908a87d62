package chase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cohort.report/internal/habitat"
)

var (
	base      = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	darkPhase = habitat.PhaseKey{Name: habitat.DarkPhase, Ordinal: 1}
)

func traversal(animal, direction string, startOffset, endOffset time.Duration) habitat.Interval {
	return habitat.Interval{
		AnimalID: animal,
		Position: direction,
		Start:    base.Add(startOffset),
		End:      base.Add(endOffset),
		Phase:    darkPhase,
	}
}

func TestDetectBasicChase(t *testing.T) {
	t.Parallel()
	top := habitat.DefaultTopology()

	padded := []habitat.Interval{
		// m2 traverses tunnel 1, m1 follows 500 ms after m2 leaves.
		traversal("m2", "c1_c2", 0, 2*time.Second),
		traversal("m1", "c1_c2", 2500*time.Millisecond, 4*time.Second),
	}

	events := Detect(top, padded, DefaultConfig())
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "m1", ev.Chaser, "the later entrant is the chaser")
	assert.Equal(t, "m2", ev.Chased)
	assert.Equal(t, "tunnel_1", ev.Tunnel, "events carry the undirected tunnel id")
	assert.True(t, ev.At.Equal(base.Add(2500*time.Millisecond)), "timestamped at the chaser's entry")
}

func TestDetectRequiresSameDirection(t *testing.T) {
	t.Parallel()
	top := habitat.DefaultTopology()

	t.Run("opposite direction does not pair", func(t *testing.T) {
		padded := []habitat.Interval{
			traversal("m2", "c1_c2", 0, 2*time.Second),
			traversal("m1", "c2_c1", 2500*time.Millisecond, 4*time.Second),
		}
		assert.Empty(t, Detect(top, padded, DefaultConfig()))
	})

	t.Run("different tunnel does not pair", func(t *testing.T) {
		padded := []habitat.Interval{
			traversal("m2", "c1_c2", 0, 2*time.Second),
			traversal("m1", "c2_c3", 2500*time.Millisecond, 4*time.Second),
		}
		assert.Empty(t, Detect(top, padded, DefaultConfig()))
	})

	t.Run("same animal does not chase itself", func(t *testing.T) {
		padded := []habitat.Interval{
			traversal("m1", "c1_c2", 0, 2*time.Second),
			traversal("m1", "c1_c2", 2500*time.Millisecond, 4*time.Second),
		}
		assert.Empty(t, Detect(top, padded, DefaultConfig()))
	})
}

func TestDetectWindowBounds(t *testing.T) {
	t.Parallel()
	top := habitat.DefaultTopology()

	follow := func(delay time.Duration) []habitat.Interval {
		return []habitat.Interval{
			traversal("m2", "c3_c4", 0, 2*time.Second),
			traversal("m1", "c3_c4", 2*time.Second+delay, 4*time.Second+delay),
		}
	}

	t.Run("zero window never emits even for simultaneous entries", func(t *testing.T) {
		cfg := Config{Window: 0}
		assert.Empty(t, Detect(top, follow(0), cfg))
		assert.Empty(t, Detect(top, follow(time.Millisecond), cfg))
	})

	t.Run("delay at the window edge is excluded", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.Empty(t, Detect(top, follow(cfg.Window), cfg), "strict upper bound")
		assert.Len(t, Detect(top, follow(cfg.Window-time.Millisecond), cfg), 1)
	})

	t.Run("delay at or below the floor is excluded", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.Empty(t, Detect(top, follow(cfg.MinDelay), cfg), "strict lower bound")
		assert.Len(t, Detect(top, follow(cfg.MinDelay+time.Millisecond), cfg), 1)
	})

	t.Run("no follower inside the window is a non-event", func(t *testing.T) {
		assert.Empty(t, Detect(top, follow(5*time.Second), DefaultConfig()))
	})
}

func TestDetectDeduplicates(t *testing.T) {
	t.Parallel()
	top := habitat.DefaultTopology()

	// Three traversals in quick succession: m3 after m2 after m1. Each
	// traversal may appear once per side, so the middle animal is both
	// chaser and chased but no pairing repeats.
	padded := []habitat.Interval{
		traversal("m1", "c4_c1", 0, 1*time.Second),
		traversal("m2", "c4_c1", 1200*time.Millisecond, 2200*time.Millisecond),
		traversal("m3", "c4_c1", 2400*time.Millisecond, 3400*time.Millisecond),
	}

	events := Detect(top, padded, DefaultConfig())
	require.Len(t, events, 2)
	assert.Equal(t, "m2", events[0].Chaser)
	assert.Equal(t, "m1", events[0].Chased)
	assert.Equal(t, "m3", events[1].Chaser)
	assert.Equal(t, "m2", events[1].Chased)
}

func TestDetectOrdersEventsChronologically(t *testing.T) {
	t.Parallel()
	top := habitat.DefaultTopology()

	padded := []habitat.Interval{
		// Later chase on tunnel 2.
		traversal("m1", "c2_c3", 10*time.Second, 11*time.Second),
		traversal("m2", "c2_c3", 11200*time.Millisecond, 12*time.Second),
		// Earlier chase on tunnel 4.
		traversal("m3", "c4_c1", 0, 1*time.Second),
		traversal("m4", "c4_c1", 1200*time.Millisecond, 2*time.Second),
	}

	events := Detect(top, padded, DefaultConfig())
	require.Len(t, events, 2)
	assert.Equal(t, "tunnel_4", events[0].Tunnel)
	assert.Equal(t, "tunnel_2", events[1].Tunnel)
	assert.True(t, events[0].At.Before(events[1].At))
}

func TestCounts(t *testing.T) {
	t.Parallel()

	events := []Event{
		{Chaser: "m1", Chased: "m2"},
		{Chaser: "m1", Chased: "m2"},
		{Chaser: "m2", Chased: "m3"},
	}
	counts := Counts(events, []string{"m1", "m2", "m3"})

	assert.Equal(t, 2, counts["m1"]["m2"])
	assert.Equal(t, 1, counts["m2"]["m3"])
	assert.Equal(t, 0, counts["m1"]["m3"], "pairs without chases hold explicit zeros")

	row, ok := counts["m3"]
	require.True(t, ok, "animals with no chases still have a row")
	assert.Equal(t, map[string]int{"m1": 0, "m2": 0}, row)
}
