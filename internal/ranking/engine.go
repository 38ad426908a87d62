// Package ranking maintains an online dominance rating over a cohort,
// updated one chase event at a time.
//
// The update is the two-player reduction of the Weng-Lin Plackett-Luce
// model. With winner w and loser l,
//
//	c    = sqrt(sigma_w^2 + sigma_l^2 + 2*beta^2)
//	p_w  = exp(mu_w/c) / (exp(mu_w/c) + exp(mu_l/c))
//	p_l  = 1 - p_w
//	mu_w += (sigma_w^2 / c) * p_l
//	mu_l -= (sigma_l^2 / c) * p_l
//	sigma^2 *= max(1 - (sigma^2/c^2) * (sigma/c) * p_w * p_l, kappa)
//
// The chaser's gain shrinks toward zero as its rating exceeds the chased
// animal's (p_w -> 1) and grows when it upsets a higher-rated animal; both
// adjustments scale with the party's own uncertainty. Sigma decreases
// strictly with every processed event, bounded below by the kappa floor, and
// never increases.
package ranking

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/cohort.report/internal/chase"
	"github.com/banshee-data/cohort.report/internal/habitat"
)

// State is the engine lifecycle position.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Config holds the rating model parameters.
type Config struct {
	InitialMu    float64 // prior mean
	InitialSigma float64 // prior uncertainty; must be positive
	Beta         float64 // performance variance of a single chase
	Kappa        float64 // lower bound on the per-event sigma shrink factor
}

// DefaultConfig returns the conventional mu=25 scale: sigma0 = mu0/3 and
// beta = sigma0/2.
func DefaultConfig() Config {
	return Config{
		InitialMu:    25,
		InitialSigma: 25.0 / 3,
		Beta:         25.0 / 6,
		Kappa:        0.0001,
	}
}

// Rating is one animal's skill estimate.
type Rating struct {
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma"`
}

// Ordinal is the conservative displayed rating, mu - 3*sigma.
func (r Rating) Ordinal() float64 { return r.Mu - 3*r.Sigma }

// TrajectoryPoint is one row of the ranking trajectory: the post-event mean
// of every animal, appended once per processed chase event.
type TrajectoryPoint struct {
	At time.Time
	Mu map[string]float64
}

// Ranked is one row of the final ordinal ranking.
type Ranked struct {
	AnimalID string
	Rating
}

// Engine owns the rating state. It is strictly sequential: Process must be
// called with events in chronological order, one at a time. The engine does
// not sort or verify event order; supplying it is the caller's duty, and
// out-of-order input silently produces different, incorrect ratings.
type Engine struct {
	cfg        Config
	state      State
	ratings    map[string]Rating
	trajectory []TrajectoryPoint
}

// New returns an engine in the uninitialized state.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg, state: StateUninitialized}
}

// State reports the current lifecycle state.
func (e *Engine) State() State { return e.state }

// Initialize seeds a rating for every animal in the cohort, from the prior
// or from a restored snapshot. Snapshot entries win over the prior; animals
// absent from the snapshot fall back to the prior, so cohort membership may
// grow between recordings. A missing prior (non-positive InitialSigma) with
// an animal absent from the seed is a configuration error.
func (e *Engine) Initialize(animalIDs []string, seed *Snapshot) error {
	if e.state != StateUninitialized {
		return habitat.Statef("ranking engine already initialized (state %s)", e.state)
	}
	if len(animalIDs) == 0 {
		return habitat.Configf("ranking engine needs at least one animal")
	}

	ratings := make(map[string]Rating, len(animalIDs))
	for _, id := range animalIDs {
		if _, dup := ratings[id]; dup {
			return habitat.Configf("duplicate animal id %q in cohort", id)
		}
		if seed != nil {
			if r, ok := seed.Ratings[id]; ok {
				ratings[id] = r
				continue
			}
		}
		if e.cfg.InitialSigma <= 0 {
			return habitat.Configf("no rating seed for %q and no usable prior", id)
		}
		ratings[id] = Rating{Mu: e.cfg.InitialMu, Sigma: e.cfg.InitialSigma}
	}

	e.ratings = ratings
	e.state = StateReady
	return nil
}

// Process applies exactly one chase event to the ratings and appends one
// trajectory row. Precondition: events arrive in chronological order.
func (e *Engine) Process(ev chase.Event) error {
	switch e.state {
	case StateUninitialized:
		return habitat.Statef("ranking engine not initialized")
	case StateFinalized:
		return habitat.Statef("ranking engine finalized; no further events accepted")
	}
	winner, ok := e.ratings[ev.Chaser]
	if !ok {
		return habitat.Configf("chase event references unknown animal %q", ev.Chaser)
	}
	loser, ok := e.ratings[ev.Chased]
	if !ok {
		return habitat.Configf("chase event references unknown animal %q", ev.Chased)
	}
	if ev.Chaser == ev.Chased {
		return habitat.Integrityf("chase event at %s has identical chaser and chased %q", ev.At, ev.Chaser)
	}

	e.ratings[ev.Chaser], e.ratings[ev.Chased] = e.update(winner, loser)

	mu := make(map[string]float64, len(e.ratings))
	for id, r := range e.ratings {
		mu[id] = r.Mu
	}
	e.trajectory = append(e.trajectory, TrajectoryPoint{At: ev.At, Mu: mu})
	return nil
}

// update performs the pairwise Plackett-Luce step described in the package
// comment.
func (e *Engine) update(winner, loser Rating) (Rating, Rating) {
	c := math.Sqrt(winner.Sigma*winner.Sigma + loser.Sigma*loser.Sigma + 2*e.cfg.Beta*e.cfg.Beta)
	expW := math.Exp(winner.Mu / c)
	expL := math.Exp(loser.Mu / c)
	pWin := expW / (expW + expL)
	pLose := expL / (expW + expL)

	next := func(r Rating, deltaMu float64) Rating {
		// Sigma shrinks by a factor below one, floored by kappa, and by
		// construction never grows.
		gamma := r.Sigma / c
		factor := 1 - (r.Sigma*r.Sigma/(c*c))*gamma*pWin*pLose
		if factor < e.cfg.Kappa {
			factor = e.cfg.Kappa
		}
		sigma := r.Sigma * math.Sqrt(factor)
		if sigma > r.Sigma {
			sigma = r.Sigma
		}
		return Rating{Mu: r.Mu + deltaMu, Sigma: sigma}
	}

	newWinner := next(winner, (winner.Sigma*winner.Sigma/c)*(1-pWin))
	newLoser := next(loser, -(loser.Sigma*loser.Sigma/c)*pLose)
	return newWinner, newLoser
}

// Snapshot returns a deep copy of the current ratings and the full ranking
// trajectory without mutating state. Repeated calls with no intervening
// Process return identical results.
func (e *Engine) Snapshot() Snapshot {
	ratings := make(map[string]Rating, len(e.ratings))
	for id, r := range e.ratings {
		ratings[id] = r
	}
	trajectory := make([]TrajectoryPoint, len(e.trajectory))
	for i, p := range e.trajectory {
		mu := make(map[string]float64, len(p.Mu))
		for id, v := range p.Mu {
			mu[id] = v
		}
		trajectory[i] = TrajectoryPoint{At: p.At, Mu: mu}
	}
	return Snapshot{Version: SnapshotVersion, Ratings: ratings, Trajectory: trajectory}
}

// Finalize closes the engine and returns the ordinal ranking: descending
// mu, ties broken by lower sigma, then by animal id. After finalization the
// engine is read-only; calling Finalize again returns the same ranking.
func (e *Engine) Finalize() ([]Ranked, error) {
	if e.state == StateUninitialized {
		return nil, habitat.Statef("ranking engine not initialized")
	}
	e.state = StateFinalized

	out := make([]Ranked, 0, len(e.ratings))
	for id, r := range e.ratings {
		out = append(out, Ranked{AnimalID: id, Rating: r})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mu != out[j].Mu {
			return out[i].Mu > out[j].Mu
		}
		if out[i].Sigma != out[j].Sigma {
			return out[i].Sigma < out[j].Sigma
		}
		return out[i].AnimalID < out[j].AnimalID
	})
	return out, nil
}

// Summary returns the mean and standard deviation of the cohort's current
// rating means.
func (e *Engine) Summary() (mean, stddev float64) {
	if len(e.ratings) == 0 {
		return 0, 0
	}
	mus := make([]float64, 0, len(e.ratings))
	for _, r := range e.ratings {
		mus = append(mus, r.Mu)
	}
	sort.Float64s(mus)
	return stat.Mean(mus, nil), stat.StdDev(mus, nil)
}
