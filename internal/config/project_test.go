package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cohort.report/internal/habitat"
)

const validYAML = `
experiment_name: cohort-a
animal_ids: [m1, m2, m3, m4]
start: "2024-05-01 08:00:00"
finish: "2024-05-03 08:00:00"
light_phase_start: "08:00:00"
dark_phase_start: "20:00:00"
`

func TestParseValid(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "cohort-a", cfg.ExperimentName)
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, cfg.AnimalIDs)

	start, finish, err := cfg.Window()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 48*time.Hour, finish.Sub(start))
}

func TestParseDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.True(t, cfg.NormalizerOptions().CloseFinal)
	assert.Equal(t, time.Duration(0), cfg.SociabilityConfig().MinInteraction)

	chaseCfg := cfg.ChaseConfig()
	assert.Equal(t, time.Second, chaseCfg.Window)
	assert.Equal(t, 100*time.Millisecond, chaseCfg.MinDelay)

	rankCfg := cfg.RankingConfig()
	assert.InDelta(t, 25, rankCfg.InitialMu, 1e-9)
	assert.InDelta(t, 25.0/3, rankCfg.InitialSigma, 1e-9)
}

func TestParseOverrides(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(validYAML + `
close_final_interval: false
min_interaction_secs: 2.5
workers: 3
chase_window: "750ms"
chase_min_delay: "50ms"
initial_mu: 30
initial_sigma: 10
beta: 5
kappa: 0.001
`))
	require.NoError(t, err)

	assert.False(t, cfg.NormalizerOptions().CloseFinal)

	socCfg := cfg.SociabilityConfig()
	assert.Equal(t, 2500*time.Millisecond, socCfg.MinInteraction)
	assert.Equal(t, 3, socCfg.Workers)

	chaseCfg := cfg.ChaseConfig()
	assert.Equal(t, 750*time.Millisecond, chaseCfg.Window)
	assert.Equal(t, 50*time.Millisecond, chaseCfg.MinDelay)

	rankCfg := cfg.RankingConfig()
	assert.InDelta(t, 30, rankCfg.InitialMu, 1e-9)
	assert.InDelta(t, 10, rankCfg.InitialSigma, 1e-9)
	assert.InDelta(t, 5, rankCfg.Beta, 1e-9)
	assert.InDelta(t, 0.001, rankCfg.Kappa, 1e-9)
}

func TestParseRejectsBadConfigs(t *testing.T) {
	t.Parallel()

	mutate := func(old, new string) string {
		require.Contains(t, validYAML, old)
		return strings.Replace(validYAML, old, new, 1)
	}

	cases := map[string]string{
		"not yaml":          "{{{",
		"no animals":        mutate("[m1, m2, m3, m4]", "[]"),
		"empty animal id":   mutate("[m1, m2, m3, m4]", `[m1, ""]`),
		"duplicate animal":  mutate("[m1, m2, m3, m4]", "[m1, m1]"),
		"finish not after":  mutate(`finish: "2024-05-03 08:00:00"`, `finish: "2024-05-01 08:00:00"`),
		"bad start":         mutate(`start: "2024-05-01 08:00:00"`, `start: "yesterday"`),
		"bad phase time":    mutate(`light_phase_start: "08:00:00"`, `light_phase_start: "25:00:00"`),
		"equal phase times": mutate(`dark_phase_start: "20:00:00"`, `dark_phase_start: "08:00:00"`),
		"bad timezone":      validYAML + "\ntimezone: Mars/Olympus",
		"negative overlap":  validYAML + "\nmin_interaction_secs: -1",
		"bad chase window":  validYAML + "\nchase_window: \"fast\"",
		"zero sigma":        validYAML + "\ninitial_sigma: 0",
		"kappa too big":     validYAML + "\nkappa: 1.5",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			require.Error(t, err)
			var cfgErr *habitat.ConfigurationError
			assert.True(t, errors.As(err, &cfgErr), "got %v", err)
		})
	}
}

func TestScheduleCoversWindow(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	sched, err := cfg.Schedule()
	require.NoError(t, err)

	start, finish, err := cfg.Window()
	require.NoError(t, err)
	assert.True(t, sched.Covers(start, finish))
}

func TestTimezone(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(validYAML + "\ntimezone: Europe/Warsaw"))
	require.NoError(t, err)

	start, _, err := cfg.Window()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Warsaw", start.Location().String())
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "project.yaml")
		require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "cohort-a", cfg.ExperimentName)
		assert.Len(t, cfg.Hash(), 40, "sha1 hex digest")
	})

	t.Run("wrong extension", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "project.json")
		require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))
		_, err := Load(path)
		var cfgErr *habitat.ConfigurationError
		assert.True(t, errors.As(err, &cfgErr))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestHashIsStable(t *testing.T) {
	t.Parallel()
	a, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	b, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	c, err := Parse([]byte(validYAML + "\nworkers: 2"))
	require.NoError(t, err)

	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())
}
