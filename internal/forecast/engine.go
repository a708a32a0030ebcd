// Package forecast runs Monte Carlo random-walk simulations of a weighted portfolio of
// price series and summarizes the distribution of simulated cumulative returns.
//
// Each entity's price follows path[i] = path[i-1]·(1+r) with r drawn i.i.d. from a normal
// distribution fitted to its historical period returns. Per trial, entity returns are
// combined by portfolio weight and compounded into a cumulative-return path that starts
// at exactly 1.0.
package forecast

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/mcforecast/internal/logger"
	"github.com/rewired-gh/mcforecast/internal/models"
)

// FlatPolicy decides what happens to entities whose historical returns have zero variance.
type FlatPolicy int

const (
	// FlatReject fails construction with a *DegenerateDistributionError.
	FlatReject FlatPolicy = iota
	// FlatAllow simulates the entity deterministically: every draw equals its mean return.
	FlatAllow
)

// ParseFlatPolicy maps "reject" or "allow" to a FlatPolicy.
func ParseFlatPolicy(s string) (FlatPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return FlatReject, nil
	case "allow":
		return FlatAllow, nil
	default:
		return FlatReject, fmt.Errorf("unknown flat policy %q (want reject or allow)", s)
	}
}

func (p FlatPolicy) String() string {
	if p == FlatAllow {
		return "allow"
	}
	return "reject"
}

// Config controls a simulation.
type Config struct {
	// Trials is the number of simulated portfolio paths.
	Trials int
	// Horizon is the number of future periods per path.
	Horizon int
	// Weights overrides equal weighting. Nil means 1/n per entity.
	Weights models.Weights
	// Seed fixes the random source. Nil picks a random seed per run.
	Seed *uint64
	// Workers bounds the number of trials simulated concurrently. 0 means GOMAXPROCS.
	Workers int
	// FlatPolicy handles zero-variance entities.
	FlatPolicy FlatPolicy
	// ReturnFloor is the lowest simulated period return, in [-1, 0].
	ReturnFloor float64
	// NewSampler builds the random source of one trial. Nil uses NewSampler.
	NewSampler func(seed, trial uint64) Sampler
}

// DefaultConfig returns 500 trials over 96 periods (eight years of monthly data) with
// equal weights, a random seed and a -100% return floor.
func DefaultConfig() Config {
	return Config{
		Trials:      500,
		Horizon:     12 * 8,
		FlatPolicy:  FlatReject,
		ReturnFloor: -1,
	}
}

// Engine simulates one portfolio. It is safe for concurrent use.
type Engine struct {
	config   Config
	entities []string
	params   []EntityParameters
	weights  []float64
	workers  int

	mu   sync.Mutex
	last *Ensemble
}

// New validates the table and configuration and derives per-entity parameters.
// All precondition failures are reported here, never during Run.
func New(table models.PriceTable, config Config) (*Engine, error) {
	if config.Trials < 1 {
		return nil, invalidInput("trials", "must be at least 1")
	}
	if config.Horizon < 1 {
		return nil, invalidInput("horizon", "must be at least 1")
	}
	if config.Workers < 0 {
		return nil, invalidInput("workers", "must not be negative")
	}
	if math.IsNaN(config.ReturnFloor) || config.ReturnFloor < -1 || config.ReturnFloor > 0 {
		return nil, invalidInput("return floor", "must be between -1 and 0")
	}

	params, err := DeriveParameters(table)
	if err != nil {
		return nil, err
	}

	weights := config.Weights
	if weights == nil {
		weights = models.EqualWeights(table.Entities)
	} else if err := weights.Validate(table.Entities); err != nil {
		return nil, &InvalidInputError{Field: "weights", Reason: "validation failed", Err: err}
	}

	for _, p := range params {
		if !p.Flat() {
			continue
		}
		if config.FlatPolicy != FlatAllow {
			return nil, &DegenerateDistributionError{Entity: p.Entity, Mean: p.MeanReturn}
		}
		logger.Warn("Entity %s has zero return variance; simulating it deterministically at %.4f%% per period",
			p.Entity, p.MeanReturn*100)
	}

	workers := config.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if config.NewSampler == nil {
		config.NewSampler = NewSampler
	}

	entities := make([]string, len(table.Entities))
	copy(entities, table.Entities)

	return &Engine{
		config:   config,
		entities: entities,
		params:   params,
		weights:  weights.Vector(entities),
		workers:  workers,
	}, nil
}

// Parameters returns a copy of the derived per-entity parameters in table order.
func (e *Engine) Parameters() []EntityParameters {
	out := make([]EntityParameters, len(e.params))
	copy(out, e.params)
	return out
}

// Run simulates every trial and returns the ensemble. Cancelling ctx stops the run between
// trials; a cancelled run returns ctx's error and no ensemble.
func (e *Engine) Run(ctx context.Context) (*Ensemble, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seed := rand.Uint64()
	if e.config.Seed != nil {
		seed = *e.config.Seed
	}
	runID := uuid.New()
	startTime := time.Now()
	trials := e.config.Trials

	logger.Info("Starting simulation run %s (trials: %d, horizon: %d, entities: %d, workers: %d, seed: %d)",
		runID, trials, e.config.Horizon, len(e.params), e.workers, seed)

	paths := make([][]float64, trials)
	progressStep := int64(max(trials/10, 1))
	var completed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for j := 0; j < trials; j++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sampler := e.config.NewSampler(seed, uint64(j))
			paths[j] = portfolioTrial(e.params, e.weights, e.config.Horizon, e.config.ReturnFloor, sampler)
			if n := completed.Add(1); n%progressStep == 0 {
				logger.Debug("Run %s: completed %d/%d trials", runID, n, trials)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Warn("Simulation run %s stopped after %d/%d trials: %v", runID, completed.Load(), trials, err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		logger.Warn("Simulation run %s stopped after %d/%d trials: %v", runID, completed.Load(), trials, err)
		return nil, err
	}

	weights := make([]float64, len(e.weights))
	copy(weights, e.weights)
	entities := make([]string, len(e.entities))
	copy(entities, e.entities)

	ensemble := &Ensemble{
		RunID:    runID,
		Seed:     seed,
		Entities: entities,
		Weights:  weights,
		paths:    paths,
	}

	e.mu.Lock()
	e.last = ensemble
	e.mu.Unlock()

	logger.Info("Simulation run %s completed in %v", runID, time.Since(startTime))
	return ensemble, nil
}

// Last returns the most recent ensemble, or nil before the first successful run.
func (e *Engine) Last() *Ensemble {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Summarize summarizes the most recent ensemble.
func (e *Engine) Summarize() (Summary, error) {
	last := e.Last()
	if last == nil {
		return Summary{}, ErrNoEnsemble
	}
	return last.Summarize(), nil
}
