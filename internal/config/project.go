// Package config loads and validates the per-experiment project file. The
// file is YAML: cohort membership, the recording window, the light/dark
// schedule, and optional tuning knobs for the analysis stages. Fields
// omitted from the file retain their default values, so partial configs
// are safe.
package config

import (
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/cohort.report/internal/chase"
	"github.com/banshee-data/cohort.report/internal/habitat"
	"github.com/banshee-data/cohort.report/internal/ranking"
	"github.com/banshee-data/cohort.report/internal/sociability"
	"github.com/banshee-data/cohort.report/internal/timeline"
)

// TimestampLayout is the wall-clock format for the recording window bounds.
const TimestampLayout = "2006-01-02 15:04:05"

// ProjectConfig is the root of the project file.
type ProjectConfig struct {
	// ExperimentName labels the run in logs and output metadata.
	ExperimentName string `yaml:"experiment_name"`

	// AnimalIDs is the full cohort. Detections for other ids are dropped
	// during normalization.
	AnimalIDs []string `yaml:"animal_ids"`

	// Start and Finish bound the recording window, TimestampLayout in the
	// experiment's local timezone.
	Start  string `yaml:"start"`
	Finish string `yaml:"finish"`

	// Timezone is an IANA zone name for interpreting Start, Finish and the
	// phase switch times. Empty means UTC.
	Timezone string `yaml:"timezone,omitempty"`

	// LightPhaseStart and DarkPhaseStart are daily "HH:MM:SS" switch times.
	LightPhaseStart string `yaml:"light_phase_start"`
	DarkPhaseStart  string `yaml:"dark_phase_start"`

	// CloseFinalInterval controls whether each animal's last detection is
	// extended to the end of the window as a final cage interval.
	CloseFinalInterval *bool `yaml:"close_final_interval,omitempty"`

	// MinInteractionSecs discards pairwise overlaps shorter than this
	// before they count as time together.
	MinInteractionSecs *float64 `yaml:"min_interaction_secs,omitempty"`

	// Workers bounds the pairwise fan-out. Zero or omitted picks a value
	// from the CPU count.
	Workers *int `yaml:"workers,omitempty"`

	// ChaseWindow and ChaseMinDelay are duration strings like "1s" and
	// "100ms" bounding the follower's entry after the leader's exit.
	ChaseWindow   *string `yaml:"chase_window,omitempty"`
	ChaseMinDelay *string `yaml:"chase_min_delay,omitempty"`

	// Rating prior and model constants.
	InitialMu    *float64 `yaml:"initial_mu,omitempty"`
	InitialSigma *float64 `yaml:"initial_sigma,omitempty"`
	Beta         *float64 `yaml:"beta,omitempty"`
	Kappa        *float64 `yaml:"kappa,omitempty"`

	raw []byte
}

// Load reads and validates a project file.
func Load(path string) (*ProjectConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, habitat.Configf("config file must have .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, habitat.Configf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a project file's contents.
func Parse(data []byte) (*ProjectConfig, error) {
	cfg := &ProjectConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, habitat.Configf("failed to parse config YAML: %v", err)
	}
	cfg.raw = append([]byte(nil), data...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *ProjectConfig) Validate() error {
	if len(c.AnimalIDs) == 0 {
		return habitat.Configf("animal_ids must not be empty")
	}
	seen := map[string]bool{}
	for _, id := range c.AnimalIDs {
		if id == "" {
			return habitat.Configf("animal_ids must not contain empty ids")
		}
		if seen[id] {
			return habitat.Configf("duplicate animal id %q", id)
		}
		seen[id] = true
	}

	loc, err := c.Location()
	if err != nil {
		return err
	}

	start, err := time.ParseInLocation(TimestampLayout, c.Start, loc)
	if err != nil {
		return habitat.Configf("invalid start %q: %v", c.Start, err)
	}
	finish, err := time.ParseInLocation(TimestampLayout, c.Finish, loc)
	if err != nil {
		return habitat.Configf("invalid finish %q: %v", c.Finish, err)
	}
	if !finish.After(start) {
		return habitat.Configf("finish %q must be after start %q", c.Finish, c.Start)
	}

	if _, err := habitat.ParseDayTime(c.LightPhaseStart); err != nil {
		return habitat.Configf("invalid light_phase_start: %v", err)
	}
	if _, err := habitat.ParseDayTime(c.DarkPhaseStart); err != nil {
		return habitat.Configf("invalid dark_phase_start: %v", err)
	}
	if c.LightPhaseStart == c.DarkPhaseStart {
		return habitat.Configf("light_phase_start and dark_phase_start must differ")
	}

	if c.MinInteractionSecs != nil && *c.MinInteractionSecs < 0 {
		return habitat.Configf("min_interaction_secs must be non-negative, got %g", *c.MinInteractionSecs)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return habitat.Configf("workers must be non-negative, got %d", *c.Workers)
	}

	for name, v := range map[string]*string{
		"chase_window":    c.ChaseWindow,
		"chase_min_delay": c.ChaseMinDelay,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return habitat.Configf("invalid %s %q: %v", name, *v, err)
		}
		if d < 0 {
			return habitat.Configf("%s must be non-negative, got %s", name, d)
		}
	}

	if c.InitialSigma != nil && *c.InitialSigma <= 0 {
		return habitat.Configf("initial_sigma must be positive, got %g", *c.InitialSigma)
	}
	if c.Beta != nil && *c.Beta <= 0 {
		return habitat.Configf("beta must be positive, got %g", *c.Beta)
	}
	if c.Kappa != nil && (*c.Kappa <= 0 || *c.Kappa >= 1) {
		return habitat.Configf("kappa must be in (0, 1), got %g", *c.Kappa)
	}

	return nil
}

// Hash returns a short hex digest of the raw file contents, used to stamp
// analysis runs with the exact configuration that produced them.
func (c *ProjectConfig) Hash() string {
	return fmt.Sprintf("%x", sha1.Sum(c.raw))
}

// Location resolves the configured timezone.
func (c *ProjectConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, habitat.Configf("invalid timezone %q: %v", c.Timezone, err)
	}
	return loc, nil
}

// Window returns the parsed recording window bounds.
func (c *ProjectConfig) Window() (start, finish time.Time, err error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, err = time.ParseInLocation(TimestampLayout, c.Start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, habitat.Configf("invalid start %q: %v", c.Start, err)
	}
	finish, err = time.ParseInLocation(TimestampLayout, c.Finish, loc)
	if err != nil {
		return time.Time{}, time.Time{}, habitat.Configf("invalid finish %q: %v", c.Finish, err)
	}
	return start, finish, nil
}

// Schedule builds the light/dark phase schedule covering the window.
func (c *ProjectConfig) Schedule() (*habitat.Schedule, error) {
	start, finish, err := c.Window()
	if err != nil {
		return nil, err
	}
	lightStart, err := habitat.ParseDayTime(c.LightPhaseStart)
	if err != nil {
		return nil, habitat.Configf("invalid light_phase_start: %v", err)
	}
	darkStart, err := habitat.ParseDayTime(c.DarkPhaseStart)
	if err != nil {
		return nil, habitat.Configf("invalid dark_phase_start: %v", err)
	}
	return habitat.BuildSchedule(start, finish, lightStart, darkStart)
}

// NormalizerOptions returns the interval construction options.
func (c *ProjectConfig) NormalizerOptions() timeline.Options {
	closeFinal := true
	if c.CloseFinalInterval != nil {
		closeFinal = *c.CloseFinalInterval
	}
	return timeline.Options{CloseFinal: closeFinal}
}

// SociabilityConfig returns the co-occupancy join tuning.
func (c *ProjectConfig) SociabilityConfig() sociability.Config {
	cfg := sociability.Config{}
	if c.MinInteractionSecs != nil {
		cfg.MinInteraction = time.Duration(*c.MinInteractionSecs * float64(time.Second))
	}
	if c.Workers != nil {
		cfg.Workers = *c.Workers
	}
	return cfg
}

// ChaseConfig returns the chase detection bounds.
func (c *ProjectConfig) ChaseConfig() chase.Config {
	cfg := chase.DefaultConfig()
	if c.ChaseWindow != nil && *c.ChaseWindow != "" {
		if d, err := time.ParseDuration(*c.ChaseWindow); err == nil {
			cfg.Window = d
		}
	}
	if c.ChaseMinDelay != nil && *c.ChaseMinDelay != "" {
		if d, err := time.ParseDuration(*c.ChaseMinDelay); err == nil {
			cfg.MinDelay = d
		}
	}
	return cfg
}

// RankingConfig returns the rating model constants.
func (c *ProjectConfig) RankingConfig() ranking.Config {
	cfg := ranking.DefaultConfig()
	if c.InitialMu != nil {
		cfg.InitialMu = *c.InitialMu
	}
	if c.InitialSigma != nil {
		cfg.InitialSigma = *c.InitialSigma
	}
	if c.Beta != nil {
		cfg.Beta = *c.Beta
	}
	if c.Kappa != nil {
		cfg.Kappa = *c.Kappa
	}
	return cfg
}
