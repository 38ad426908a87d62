package results

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cohort.report/internal/activity"
	"github.com/banshee-data/cohort.report/internal/chase"
	"github.com/banshee-data/cohort.report/internal/habitat"
	"github.com/banshee-data/cohort.report/internal/ranking"
	"github.com/banshee-data/cohort.report/internal/sociability"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAppliesSchema(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	var n int
	err := s.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type = 'table' AND name IN (
			'analysis_runs', 'main_df', 'padded_df', 'time_per_position',
			'visits_per_position', 'time_together', 'in_cohort_sociability',
			'phase_durations', 'chasings', 'matches_datetimes',
			'ranking_ordinal', 'ranking_in_time'
		)`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "results.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	// Reopening an already-migrated database must not fail.
	s2, err := Open(path)
	require.NoError(t, err)
	assert.NoError(t, s2.Close())
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	started := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	runID, err := s.BeginRun("abc123", started)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	require.NoError(t, s.FinishRun(runID, started.Add(time.Minute)))

	var hash, startedAt, finishedAt string
	err = s.QueryRow(
		`SELECT config_hash, started_at, finished_at FROM analysis_runs WHERE run_id = ?`,
		runID).Scan(&hash, &startedAt, &finishedAt)
	require.NoError(t, err)
	assert.Equal(t, "abc123", hash)
	assert.Equal(t, "2024-05-01T08:00:00Z", startedAt)
	assert.Equal(t, "2024-05-01T08:01:00Z", finishedAt)

	assert.Error(t, s.FinishRun("no-such-run", started))
}

func TestWriteIntervals(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	runID, err := s.BeginRun("h", time.Now())
	require.NoError(t, err)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	phase := habitat.PhaseKey{Name: habitat.LightPhase, Ordinal: 1}
	intervals := []habitat.Interval{
		{AnimalID: "m1", Position: "cage_1", Start: base, End: base.Add(90 * time.Second), Phase: phase},
		{AnimalID: "m2", Position: "c1_c2", Start: base, End: base.Add(time.Second), Phase: phase},
	}

	require.NoError(t, s.WriteMainIntervals(runID, intervals))
	require.NoError(t, s.WritePaddedIntervals(runID, intervals))

	n, err := s.CountRows("main_df", runID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var dur float64
	err = s.QueryRow(
		`SELECT duration_secs FROM padded_df WHERE run_id = ? AND animal_id = 'm1'`,
		runID).Scan(&dur)
	require.NoError(t, err)
	assert.InDelta(t, 90, dur, 1e-9)
}

func TestWriteAggregates(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	runID, err := s.BeginRun("h", time.Now())
	require.NoError(t, err)

	phase := habitat.PhaseKey{Name: habitat.DarkPhase, Ordinal: 2}

	times := map[activity.Key]float64{
		{AnimalID: "m1", Phase: phase, Position: "cage_1"}:   3600,
		{AnimalID: "m1", Phase: phase, Position: "tunnel_1"}: 12.5,
	}
	require.NoError(t, s.WriteTimePerPosition(runID, times))

	visits := map[activity.Key]int{
		{AnimalID: "m1", Phase: phase, Position: "cage_1"}: 7,
	}
	require.NoError(t, s.WriteVisitsPerPosition(runID, visits))

	pair := sociability.MakePair("m2", "m1")
	together := map[sociability.TogetherKey]float64{
		{Pair: pair, Cage: "cage_1", Phase: phase}: 120,
	}
	require.NoError(t, s.WriteTimeTogether(runID, together))

	ratios := map[sociability.SociabilityKey]float64{
		{Pair: pair, Phase: phase}: 1.2,
	}
	require.NoError(t, s.WriteInCohortSociability(runID, ratios))

	durations := map[habitat.PhaseKey]float64{phase: 43200}
	require.NoError(t, s.WritePhaseDurations(runID, durations))

	for table, want := range map[string]int{
		"time_per_position":     2,
		"visits_per_position":   1,
		"time_together":         1,
		"in_cohort_sociability": 1,
		"phase_durations":       1,
	} {
		n, err := s.CountRows(table, runID)
		require.NoError(t, err)
		assert.Equal(t, want, n, table)
	}

	var a, b string
	err = s.QueryRow(
		`SELECT animal_a, animal_b FROM time_together WHERE run_id = ?`, runID).Scan(&a, &b)
	require.NoError(t, err)
	assert.Equal(t, "m1", a, "pairs persist in canonical order")
	assert.Equal(t, "m2", b)
}

func TestWriteChaseArtifacts(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	runID, err := s.BeginRun("h", time.Now())
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 21, 0, 0, 0, time.UTC)
	events := []chase.Event{
		{At: at, Chaser: "m1", Chased: "m2", Tunnel: "tunnel_1"},
	}
	require.NoError(t, s.WriteChaseEvents(runID, events))

	counts := chase.Counts(events, []string{"m1", "m2", "m3"})
	require.NoError(t, s.WriteChaseCounts(runID, counts))

	// Full cross minus the diagonal: 3 animals give 6 rows, zeros included.
	n, err := s.CountRows("chasings", runID)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	var count int
	err = s.QueryRow(
		`SELECT count FROM chasings WHERE run_id = ? AND chaser = 'm1' AND chased = 'm2'`,
		runID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestWriteRankingArtifacts(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	runID, err := s.BeginRun("h", time.Now())
	require.NoError(t, err)

	ranked := []ranking.Ranked{
		{AnimalID: "m1", Rating: ranking.Rating{Mu: 27, Sigma: 7}},
		{AnimalID: "m2", Rating: ranking.Rating{Mu: 23, Sigma: 7}},
	}
	require.NoError(t, s.WriteRankingOrdinal(runID, ranked))

	rows, err := s.ReadRankingOrdinal(runID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].Rank)
	assert.Equal(t, "m1", rows[0].AnimalID)
	assert.InDelta(t, 27-3*7.0, rows[0].Ordinal, 1e-9)

	at := time.Date(2024, 5, 1, 21, 0, 0, 0, time.UTC)
	trajectory := []ranking.TrajectoryPoint{
		{At: at, Mu: map[string]float64{"m1": 25.5, "m2": 24.5}},
		{At: at.Add(time.Second), Mu: map[string]float64{"m1": 26, "m2": 24}},
	}
	require.NoError(t, s.WriteRankingInTime(runID, trajectory))

	n, err := s.CountRows("ranking_in_time", runID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestCountRowsRejectsUnknownTable(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	_, err := s.CountRows("sqlite_master", "run")
	assert.Error(t, err)
}
