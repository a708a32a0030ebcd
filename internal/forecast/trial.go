package forecast

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler draws normally distributed period returns.
type Sampler interface {
	Normal(mean, std float64) float64
}

type normalSampler struct {
	src rand.Source
}

// NewSampler returns a Sampler backed by a PCG source. Samplers built with the same
// seed and stream produce the same draws.
func NewSampler(seed, stream uint64) Sampler {
	return normalSampler{src: rand.NewPCG(seed, stream)}
}

func (s normalSampler) Normal(mean, std float64) float64 {
	if std == 0 {
		return mean
	}
	return distuv.Normal{Mu: mean, Sigma: std, Src: s.src}.Rand()
}

// SimulateTrial walks one entity's price forward for horizon periods starting at its last
// observed price. The result has horizon+1 values; draws are floored at -100%.
func SimulateTrial(p EntityParameters, horizon int, sampler Sampler) []float64 {
	return walk(p, horizon, -1, sampler)
}

func walk(p EntityParameters, horizon int, floor float64, sampler Sampler) []float64 {
	path := make([]float64, horizon+1)
	path[0] = p.LastPrice
	for i := 1; i <= horizon; i++ {
		r := sampler.Normal(p.MeanReturn, p.StdReturn)
		if r < floor {
			r = floor
		}
		path[i] = path[i-1] * (1 + r)
	}
	return path
}

// PathReturns converts a price path into period returns of the same length. The first
// return is 0, as is any return measured from a zero price.
func PathReturns(path []float64) []float64 {
	out := make([]float64, len(path))
	for i := 1; i < len(path); i++ {
		if path[i-1] == 0 {
			continue
		}
		out[i] = path[i]/path[i-1] - 1
	}
	return out
}

// Cumulative compounds returns into a cumulative-return series starting at exactly 1.0.
// returns[0] is not compounded; it is 0 for every path built by PathReturns.
func Cumulative(returns []float64) []float64 {
	if len(returns) == 0 {
		return nil
	}
	out := make([]float64, len(returns))
	out[0] = 1.0
	for i := 1; i < len(returns); i++ {
		out[i] = out[i-1] * (1 + returns[i])
	}
	return out
}

// portfolioTrial runs one trial for every entity and combines the simulated returns into
// the portfolio's cumulative-return series.
func portfolioTrial(params []EntityParameters, weights []float64, horizon int, floor float64, sampler Sampler) []float64 {
	portfolio := make([]float64, horizon+1)
	for e, p := range params {
		returns := PathReturns(walk(p, horizon, floor, sampler))
		w := weights[e]
		for i, r := range returns {
			portfolio[i] += w * r
		}
	}
	cum := Cumulative(portfolio)
	for i, v := range cum {
		// floor -1 keeps every factor non-negative; guard against rounding below zero
		cum[i] = math.Max(v, 0)
	}
	return cum
}
