// Package results persists every analysis artifact into a single SQLite
// database. Table names mirror the artifact names downstream tooling
// expects: main_df, padded_df, time_per_position, visits_per_position,
// time_together, in_cohort_sociability, phase_durations, chasings,
// matches_datetimes, ranking_ordinal and ranking_in_time. Rows are scoped
// by a run id so one database can accumulate many analysis runs.
package results

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/cohort.report/internal/activity"
	"github.com/banshee-data/cohort.report/internal/chase"
	"github.com/banshee-data/cohort.report/internal/habitat"
	"github.com/banshee-data/cohort.report/internal/monitoring"
	"github.com/banshee-data/cohort.report/internal/ranking"
	"github.com/banshee-data/cohort.report/internal/sociability"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store wraps the results database handle.
type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the results database at path and applies
// any pending schema migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	s := &Store{db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// Don't close m here: it would close the underlying DB connection.

	m.Log = &migrateLogger{}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger interface
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// BeginRun registers a new analysis run and returns its id.
func (s *Store) BeginRun(configHash string, startedAt time.Time) (string, error) {
	runID := uuid.NewString()
	_, err := s.Exec(
		`INSERT INTO analysis_runs (run_id, config_hash, started_at) VALUES (?, ?, ?)`,
		runID, configHash, formatTime(startedAt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to register run: %w", err)
	}
	return runID, nil
}

// FinishRun stamps the run's completion time.
func (s *Store) FinishRun(runID string, finishedAt time.Time) error {
	res, err := s.Exec(
		`UPDATE analysis_runs SET finished_at = ? WHERE run_id = ?`,
		formatTime(finishedAt), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("unknown run %s", runID)
	}
	return nil
}

func (s *Store) writeIntervals(table, runID string, intervals []habitat.Interval) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(
		`INSERT INTO %s (run_id, animal_id, position, start_time, end_time, duration_secs, phase_name, phase_ordinal)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, table))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, iv := range intervals {
		_, err := stmt.Exec(runID, iv.AnimalID, iv.Position,
			formatTime(iv.Start), formatTime(iv.End), iv.Seconds(),
			iv.Phase.Name, iv.Phase.Ordinal)
		if err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// WriteMainIntervals persists the normalized position intervals.
func (s *Store) WriteMainIntervals(runID string, intervals []habitat.Interval) error {
	return s.writeIntervals("main_df", runID, intervals)
}

// WritePaddedIntervals persists the phase-split position intervals.
func (s *Store) WritePaddedIntervals(runID string, intervals []habitat.Interval) error {
	return s.writeIntervals("padded_df", runID, intervals)
}

// WriteTimePerPosition persists the per-animal, per-phase, per-position
// occupancy seconds. Rows are inserted in sorted key order so repeated runs
// over the same data produce identical tables.
func (s *Store) WriteTimePerPosition(runID string, times map[activity.Key]float64) error {
	keys := sortedActivityKeys(times)

	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO time_per_position (run_id, animal_id, phase_name, phase_ordinal, position, seconds)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.Exec(runID, k.AnimalID, k.Phase.Name, k.Phase.Ordinal, k.Position, times[k]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// WriteVisitsPerPosition persists the per-animal visit counts.
func (s *Store) WriteVisitsPerPosition(runID string, visits map[activity.Key]int) error {
	keys := sortedActivityKeys(visits)

	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO visits_per_position (run_id, animal_id, phase_name, phase_ordinal, position, visits)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.Exec(runID, k.AnimalID, k.Phase.Name, k.Phase.Ordinal, k.Position, visits[k]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func sortedActivityKeys[V any](m map[activity.Key]V) []activity.Key {
	keys := make([]activity.Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.AnimalID != b.AnimalID {
			return a.AnimalID < b.AnimalID
		}
		if a.Phase.Name != b.Phase.Name {
			return a.Phase.Name < b.Phase.Name
		}
		if a.Phase.Ordinal != b.Phase.Ordinal {
			return a.Phase.Ordinal < b.Phase.Ordinal
		}
		return a.Position < b.Position
	})
	return keys
}

// WriteTimeTogether persists the pairwise cage co-occupancy seconds.
func (s *Store) WriteTimeTogether(runID string, together map[sociability.TogetherKey]float64) error {
	keys := make([]sociability.TogetherKey, 0, len(together))
	for k := range together {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Pair != b.Pair {
			if a.Pair.A != b.Pair.A {
				return a.Pair.A < b.Pair.A
			}
			return a.Pair.B < b.Pair.B
		}
		if a.Cage != b.Cage {
			return a.Cage < b.Cage
		}
		if a.Phase.Name != b.Phase.Name {
			return a.Phase.Name < b.Phase.Name
		}
		return a.Phase.Ordinal < b.Phase.Ordinal
	})

	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO time_together (run_id, animal_a, animal_b, cage, phase_name, phase_ordinal, seconds)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.Exec(runID, k.Pair.A, k.Pair.B, k.Cage, k.Phase.Name, k.Phase.Ordinal, together[k]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// WriteInCohortSociability persists the pairwise sociability ratios.
func (s *Store) WriteInCohortSociability(runID string, ratios map[sociability.SociabilityKey]float64) error {
	keys := make([]sociability.SociabilityKey, 0, len(ratios))
	for k := range ratios {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Pair.A != b.Pair.A {
			return a.Pair.A < b.Pair.A
		}
		if a.Pair.B != b.Pair.B {
			return a.Pair.B < b.Pair.B
		}
		if a.Phase.Name != b.Phase.Name {
			return a.Phase.Name < b.Phase.Name
		}
		return a.Phase.Ordinal < b.Phase.Ordinal
	})

	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO in_cohort_sociability (run_id, animal_a, animal_b, phase_name, phase_ordinal, sociability)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.Exec(runID, k.Pair.A, k.Pair.B, k.Phase.Name, k.Phase.Ordinal, ratios[k]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// WritePhaseDurations persists the rounded per-phase durations in seconds.
func (s *Store) WritePhaseDurations(runID string, durations map[habitat.PhaseKey]float64) error {
	keys := make([]habitat.PhaseKey, 0, len(durations))
	for k := range durations {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].Ordinal < keys[j].Ordinal
	})

	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO phase_durations (run_id, phase_name, phase_ordinal, seconds) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.Exec(runID, k.Name, k.Ordinal, durations[k]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// WriteChaseCounts persists the chaser-by-chased count matrix, zeros
// included so the full cohort cross is always present.
func (s *Store) WriteChaseCounts(runID string, counts map[string]map[string]int) error {
	chasers := make([]string, 0, len(counts))
	for chaser := range counts {
		chasers = append(chasers, chaser)
	}
	sort.Strings(chasers)

	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO chasings (run_id, chaser, chased, count) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, chaser := range chasers {
		row := counts[chaser]
		chased := make([]string, 0, len(row))
		for id := range row {
			chased = append(chased, id)
		}
		sort.Strings(chased)
		for _, id := range chased {
			if _, err := stmt.Exec(runID, chaser, id, row[id]); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// WriteChaseEvents persists the individual chase events with timestamps.
func (s *Store) WriteChaseEvents(runID string, events []chase.Event) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO matches_datetimes (run_id, occurred_at, chaser, chased, tunnel)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.Exec(runID, formatTime(ev.At), ev.Chaser, ev.Chased, ev.Tunnel); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// WriteRankingOrdinal persists the final dominance ranking, best first.
func (s *Store) WriteRankingOrdinal(runID string, ranked []ranking.Ranked) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO ranking_ordinal (run_id, rank, animal_id, mu, sigma, ordinal)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range ranked {
		if _, err := stmt.Exec(runID, i+1, r.AnimalID, r.Mu, r.Sigma, r.Ordinal()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// WriteRankingInTime persists the rating trajectory, one row per animal per
// processed chase event.
func (s *Store) WriteRankingInTime(runID string, trajectory []ranking.TrajectoryPoint) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO ranking_in_time (run_id, event_index, occurred_at, animal_id, mu)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, point := range trajectory {
		ids := make([]string, 0, len(point.Mu))
		for id := range point.Mu {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if _, err := stmt.Exec(runID, i, formatTime(point.At), id, point.Mu[id]); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// CountRows reports the number of rows a table holds for one run. Intended
// for sanity checks and tests; table must be one of the known result tables.
func (s *Store) CountRows(table, runID string) (int, error) {
	if !knownTables[table] {
		return 0, fmt.Errorf("unknown results table %q", table)
	}
	var n int
	err := s.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE run_id = ?`, table), runID).Scan(&n)
	return n, err
}

var knownTables = map[string]bool{
	"main_df":               true,
	"padded_df":             true,
	"time_per_position":     true,
	"visits_per_position":   true,
	"time_together":         true,
	"in_cohort_sociability": true,
	"phase_durations":       true,
	"chasings":              true,
	"matches_datetimes":     true,
	"ranking_ordinal":       true,
	"ranking_in_time":       true,
}

// RankedRow is one persisted row of the final ranking.
type RankedRow struct {
	Rank     int
	AnimalID string
	Mu       float64
	Sigma    float64
	Ordinal  float64
}

// ReadRankingOrdinal returns the persisted ranking for a run, best first.
func (s *Store) ReadRankingOrdinal(runID string) ([]RankedRow, error) {
	rows, err := s.Query(
		`SELECT rank, animal_id, mu, sigma, ordinal FROM ranking_ordinal WHERE run_id = ? ORDER BY rank`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RankedRow
	for rows.Next() {
		var r RankedRow
		if err := rows.Scan(&r.Rank, &r.AnimalID, &r.Mu, &r.Sigma, &r.Ordinal); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
