package models

import (
	"fmt"
	"math"
	"sort"
)

// WeightTolerance is the allowed distance between the weight sum and 1.0.
const WeightTolerance = 1e-6

// Weights maps an entity to its non-negative portfolio weight.
type Weights map[string]float64

// EqualWeights assigns 1/n to each of the n entities.
func EqualWeights(entities []string) Weights {
	w := make(Weights, len(entities))
	if len(entities) == 0 {
		return w
	}
	share := 1.0 / float64(len(entities))
	for _, e := range entities {
		w[e] = share
	}
	return w
}

// Sum returns the total weight, summed in entity order for a stable result.
func (w Weights) Sum() float64 {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sum float64
	for _, k := range keys {
		sum += w[k]
	}
	return sum
}

// Validate checks that the weights cover exactly the given entities, are finite and
// non-negative, and sum to 1.0 within WeightTolerance.
func (w Weights) Validate(entities []string) error {
	known := make(map[string]bool, len(entities))
	for _, e := range entities {
		known[e] = true
		v, ok := w[e]
		if !ok {
			return fmt.Errorf("missing weight for entity %q", e)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("weight for entity %q must be finite", e)
		}
		if v < 0 {
			return fmt.Errorf("weight for entity %q must not be negative", e)
		}
	}
	for e := range w {
		if !known[e] {
			return fmt.Errorf("weight given for unknown entity %q", e)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > WeightTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %.6f", sum)
	}
	return nil
}

// Vector returns the weights in the order of entities.
func (w Weights) Vector(entities []string) []float64 {
	out := make([]float64, len(entities))
	for i, e := range entities {
		out[i] = w[e]
	}
	return out
}
