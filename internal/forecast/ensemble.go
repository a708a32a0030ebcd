package forecast

import (
	"math"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Confidence bounds of the 95% interval on final cumulative returns.
const (
	LowerPercentile = 0.025
	UpperPercentile = 0.975
)

// DefaultBandPercentiles are the per-period percentiles reported by Bands.
var DefaultBandPercentiles = []float64{0.05, 0.25, 0.50, 0.75, 0.95}

// Ensemble holds the portfolio cumulative-return path of every trial of one run.
// Each path has Periods() values and starts at 1.0.
type Ensemble struct {
	RunID    uuid.UUID
	Seed     uint64
	Entities []string
	Weights  []float64

	paths [][]float64
}

// Trials returns the number of simulated paths (columns).
func (e *Ensemble) Trials() int {
	return len(e.paths)
}

// Periods returns the length of every path (rows), horizon plus one.
func (e *Ensemble) Periods() int {
	if len(e.paths) == 0 {
		return 0
	}
	return len(e.paths[0])
}

// Horizon returns the number of simulated future periods.
func (e *Ensemble) Horizon() int {
	if e.Periods() == 0 {
		return 0
	}
	return e.Periods() - 1
}

// Column returns a copy of trial j's path.
func (e *Ensemble) Column(j int) []float64 {
	out := make([]float64, len(e.paths[j]))
	copy(out, e.paths[j])
	return out
}

// Row returns the value of every trial at period i.
func (e *Ensemble) Row(i int) []float64 {
	out := make([]float64, len(e.paths))
	for j, path := range e.paths {
		out[j] = path[i]
	}
	return out
}

// Final returns the terminal cumulative return of every trial.
func (e *Ensemble) Final() []float64 {
	return e.Row(e.Periods() - 1)
}

// Summary describes the distribution of final cumulative returns.
type Summary struct {
	Count  int     `json:"count" yaml:"count"`
	Mean   float64 `json:"mean" yaml:"mean"`
	Std    float64 `json:"std" yaml:"std"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	Median float64 `json:"median" yaml:"median"`
	Lower  float64 `json:"ci_lower" yaml:"ci_lower"`
	Upper  float64 `json:"ci_upper" yaml:"ci_upper"`
}

// Width returns the width of the 95% confidence interval.
func (s Summary) Width() float64 {
	return s.Upper - s.Lower
}

// Summarize computes descriptive statistics and the 95% confidence interval of the final
// cumulative returns.
func (e *Ensemble) Summarize() Summary {
	return summarize(e.Final())
}

func summarize(values []float64) Summary {
	if len(values) == 0 {
		nan := math.NaN()
		return Summary{Mean: nan, Std: nan, Min: nan, Max: nan, Median: nan, Lower: nan, Upper: nan}
	}
	sorted := sortedCopy(values)
	s := Summary{
		Count:  len(sorted),
		Mean:   stat.Mean(sorted, nil),
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
		Median: Quantile(sorted, 0.5),
		Lower:  Quantile(sorted, LowerPercentile),
		Upper:  Quantile(sorted, UpperPercentile),
	}
	if len(sorted) > 1 {
		s.Std = stat.StdDev(sorted, nil)
	}
	// identical values must report their own value, not a rounded mean
	if s.Min == s.Max {
		s.Mean = s.Min
		s.Std = 0
	}
	return s
}

// Bands holds per-period statistics across trials.
type Bands struct {
	Mean        []float64        `json:"mean" yaml:"mean"`
	Std         []float64        `json:"std" yaml:"std"`
	Percentiles []PercentileBand `json:"percentiles" yaml:"percentiles"`
}

// PercentileBand is one percentile traced across every period.
type PercentileBand struct {
	Percentile float64   `json:"percentile" yaml:"percentile"`
	Values     []float64 `json:"values" yaml:"values"`
}

// Bands computes the mean, standard deviation and the given percentiles (0..1) of every
// period. With no percentiles, DefaultBandPercentiles are used.
func (e *Ensemble) Bands(percentiles ...float64) Bands {
	if len(percentiles) == 0 {
		percentiles = DefaultBandPercentiles
	}
	periods := e.Periods()
	b := Bands{
		Mean:        make([]float64, periods),
		Std:         make([]float64, periods),
		Percentiles: make([]PercentileBand, len(percentiles)),
	}
	for k, p := range percentiles {
		b.Percentiles[k] = PercentileBand{Percentile: p, Values: make([]float64, periods)}
	}
	for i := 0; i < periods; i++ {
		row := sortedCopy(e.Row(i))
		if len(row) > 1 {
			b.Mean[i], b.Std[i] = stat.MeanStdDev(row, nil)
		} else {
			b.Mean[i] = row[0]
		}
		for k, p := range percentiles {
			b.Percentiles[k].Values[i] = Quantile(row, p)
		}
	}
	return b
}

// Bin is one histogram bucket over [Low, High).
type Bin struct {
	Low   float64 `json:"low" yaml:"low"`
	High  float64 `json:"high" yaml:"high"`
	Count int     `json:"count" yaml:"count"`
}

// Histogram buckets the final cumulative returns into equal-width bins. The last bin
// includes its upper edge.
func (e *Ensemble) Histogram(bins int) []Bin {
	final := e.Final()
	if bins < 1 || len(final) == 0 {
		return nil
	}
	lo, hi := floats.Min(final), floats.Max(final)
	if lo == hi {
		return []Bin{{Low: lo, High: hi, Count: len(final)}}
	}

	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi)
	// stat.Histogram excludes the last divider
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	counts := make([]float64, bins)
	stat.Histogram(counts, dividers, sortedCopy(final), nil)

	out := make([]Bin, bins)
	for i := range out {
		out[i] = Bin{Low: dividers[i], High: dividers[i+1], Count: int(counts[i])}
	}
	out[bins-1].High = hi
	return out
}
