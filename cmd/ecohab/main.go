// Command ecohab runs the full batch analysis over one recorded cohort:
// detections in, SQLite results out. Stages run in order: load, normalize,
// phase split, activity aggregation, sociability, chase detection, dominance
// ranking, persistence.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/banshee-data/cohort.report/internal/activity"
	"github.com/banshee-data/cohort.report/internal/chase"
	"github.com/banshee-data/cohort.report/internal/config"
	"github.com/banshee-data/cohort.report/internal/habitat"
	"github.com/banshee-data/cohort.report/internal/monitoring"
	"github.com/banshee-data/cohort.report/internal/ranking"
	"github.com/banshee-data/cohort.report/internal/results"
	"github.com/banshee-data/cohort.report/internal/sociability"
	"github.com/banshee-data/cohort.report/internal/timeline"
)

var (
	configPath = flag.String("config", "", "Project config YAML (required)")
	dataPath   = flag.String("data", "", "Raw detection table, tab-separated (required)")
	outPath    = flag.String("out", "results.db", "Results SQLite database")
	ratingsIn  = flag.String("ratings", "", "Rating snapshot JSON to resume from (optional)")
	ratingsOut = flag.String("ratings-out", "", "Write the final rating snapshot here (optional)")
)

func main() {
	flag.Parse()

	if *configPath == "" {
		log.Fatal("config path is required")
	}
	if *dataPath == "" {
		log.Fatal("data path is required")
	}

	if err := run(); err != nil {
		log.Fatalf("analysis failed: %v", err)
	}
}

func run() error {
	startedAt := time.Now()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logf := monitoring.Stage("ecohab")
	logf("experiment %q, cohort of %d", cfg.ExperimentName, len(cfg.AnimalIDs))

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	sched, err := cfg.Schedule()
	if err != nil {
		return err
	}
	logf("schedule: %d phases from %s to %s",
		len(sched.Phases()), sched.Start().Format(time.RFC3339), sched.End().Format(time.RFC3339))

	cohort := make(map[string]bool, len(cfg.AnimalIDs))
	for _, id := range cfg.AnimalIDs {
		cohort[id] = true
	}

	loaded, err := loadDetectionFile(*dataPath, loc, cohort)
	if err != nil {
		return err
	}
	logf("loaded %d detections (%d malformed lines, %d outside cohort)",
		len(loaded.Detections), loaded.SkippedLines, loaded.UnknownAnimals)

	top := habitat.DefaultTopology()

	mainIntervals, report, err := timeline.Normalize(top, sched, loaded.Detections, cfg.NormalizerOptions())
	if err != nil {
		return err
	}
	logf("normalized %d intervals (%d out of window, %d duplicates, %d conflicts)",
		len(mainIntervals), report.OutOfWindow, report.Duplicates, report.Conflicts)

	padded, err := timeline.SplitPhases(sched, mainIntervals)
	if err != nil {
		return err
	}
	logf("phase split: %d intervals", len(padded))

	timePerPos := activity.TimePerPosition(top, padded)
	visitsPerPos := activity.VisitsPerPosition(top, padded)
	for _, s := range activity.Summarize(top, padded) {
		logf("%s: %.0fs tracked, %d visits, %d tunnel crossings",
			s.AnimalID, s.TotalSeconds, s.Visits, s.TunnelCrossings)
	}

	durations := sched.Durations()

	socCfg := cfg.SociabilityConfig()
	together := sociability.TimeTogether(top, padded, cfg.AnimalIDs, socCfg)
	ratios := sociability.InCohort(together, timePerPos, durations, top, cfg.AnimalIDs)
	logf("sociability: %d pair-phase cells", len(ratios))

	events := chase.Detect(top, padded, cfg.ChaseConfig())
	counts := chase.Counts(events, cfg.AnimalIDs)
	logf("chase: %d events", len(events))

	ranked, trajectory, snapshot, err := rank(cfg, events)
	if err != nil {
		return err
	}
	for i, r := range ranked {
		logf("rank %d: %s mu=%.2f sigma=%.2f ordinal=%.2f", i+1, r.AnimalID, r.Mu, r.Sigma, r.Ordinal())
	}

	store, err := results.Open(*outPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runID, err := store.BeginRun(cfg.Hash(), startedAt)
	if err != nil {
		return err
	}
	logf("run %s -> %s", runID, *outPath)

	writes := []struct {
		name string
		fn   func() error
	}{
		{"main_df", func() error { return store.WriteMainIntervals(runID, mainIntervals) }},
		{"padded_df", func() error { return store.WritePaddedIntervals(runID, padded) }},
		{"time_per_position", func() error { return store.WriteTimePerPosition(runID, timePerPos) }},
		{"visits_per_position", func() error { return store.WriteVisitsPerPosition(runID, visitsPerPos) }},
		{"time_together", func() error { return store.WriteTimeTogether(runID, together) }},
		{"in_cohort_sociability", func() error { return store.WriteInCohortSociability(runID, ratios) }},
		{"phase_durations", func() error { return store.WritePhaseDurations(runID, durations) }},
		{"chasings", func() error { return store.WriteChaseCounts(runID, counts) }},
		{"matches_datetimes", func() error { return store.WriteChaseEvents(runID, events) }},
		{"ranking_ordinal", func() error { return store.WriteRankingOrdinal(runID, ranked) }},
		{"ranking_in_time", func() error { return store.WriteRankingInTime(runID, trajectory) }},
	}
	for _, w := range writes {
		if err := w.fn(); err != nil {
			return err
		}
		logf("wrote %s", w.name)
	}

	if err := store.FinishRun(runID, time.Now()); err != nil {
		return err
	}

	if *ratingsOut != "" {
		if err := snapshot.WriteFile(*ratingsOut); err != nil {
			return err
		}
		logf("rating snapshot -> %s", *ratingsOut)
	}

	logf("done in %s", time.Since(startedAt).Round(time.Millisecond))
	return nil
}

// rank replays the chase events through the rating engine, optionally
// resuming from a persisted snapshot.
func rank(cfg *config.ProjectConfig, events []chase.Event) ([]ranking.Ranked, []ranking.TrajectoryPoint, ranking.Snapshot, error) {
	logf := monitoring.Stage("ranking")

	var seed *ranking.Snapshot
	if *ratingsIn != "" {
		s, err := ranking.ReadSnapshotFile(*ratingsIn)
		if err != nil {
			return nil, nil, ranking.Snapshot{}, err
		}
		seed = s
		logf("resuming from %s (%d ratings)", *ratingsIn, len(s.Ratings))
	}

	engine := ranking.New(cfg.RankingConfig())
	if err := engine.Initialize(cfg.AnimalIDs, seed); err != nil {
		return nil, nil, ranking.Snapshot{}, err
	}
	for _, ev := range events {
		if err := engine.Process(ev); err != nil {
			return nil, nil, ranking.Snapshot{}, err
		}
	}

	snapshot := engine.Snapshot()
	ranked, err := engine.Finalize()
	if err != nil {
		return nil, nil, ranking.Snapshot{}, err
	}

	mean, stddev := engine.Summary()
	logf("%d events processed, mu mean=%.2f stddev=%.2f", len(events), mean, stddev)
	return ranked, snapshot.Trajectory, snapshot, nil
}
