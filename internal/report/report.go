// Package report renders a simulation run for people and machines.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rewired-gh/mcforecast/internal/forecast"
)

// Report is the rendered outcome of one simulation run.
type Report struct {
	RunID       uuid.UUID        `json:"run_id" yaml:"run_id"`
	GeneratedAt time.Time        `json:"generated_at" yaml:"generated_at"`
	Seed        uint64           `json:"seed" yaml:"seed"`
	Trials      int              `json:"trials" yaml:"trials"`
	Horizon     int              `json:"horizon" yaml:"horizon"`
	Entities    []Entity         `json:"entities" yaml:"entities"`
	Summary     forecast.Summary `json:"summary" yaml:"summary"`
	Histogram   []forecast.Bin   `json:"histogram,omitempty" yaml:"histogram,omitempty"`
	Investment  *Projection      `json:"investment,omitempty" yaml:"investment,omitempty"`
}

// Entity is one portfolio member with its weight and fitted return distribution.
type Entity struct {
	Name       string  `json:"name" yaml:"name"`
	Weight     float64 `json:"weight" yaml:"weight"`
	LastPrice  float64 `json:"last_price" yaml:"last_price"`
	MeanReturn float64 `json:"mean_return" yaml:"mean_return"`
	StdReturn  float64 `json:"std_return" yaml:"std_return"`
}

// Projection scales the confidence interval of final cumulative returns to an amount of money.
type Projection struct {
	Initial decimal.Decimal `json:"initial" yaml:"initial"`
	Lower   decimal.Decimal `json:"lower" yaml:"lower"`
	Median  decimal.Decimal `json:"median" yaml:"median"`
	Upper   decimal.Decimal `json:"upper" yaml:"upper"`
}

// Project multiplies initial by the summary's interval bounds and median, rounded to cents.
func Project(initial decimal.Decimal, summary forecast.Summary) *Projection {
	scale := func(f float64) decimal.Decimal {
		return initial.Mul(decimal.NewFromFloat(f)).Round(2)
	}
	return &Projection{
		Initial: initial.Round(2),
		Lower:   scale(summary.Lower),
		Median:  scale(summary.Median),
		Upper:   scale(summary.Upper),
	}
}

// Options tune what New includes.
type Options struct {
	// InitialInvestment adds a Projection when positive.
	InitialInvestment decimal.Decimal
	// HistogramBins adds a histogram of final cumulative returns when positive.
	HistogramBins int
}

// New builds a report from an ensemble, its summary and the parameters the engine fitted.
// Parameters may be nil; weights and entity order always come from the ensemble.
func New(ensemble *forecast.Ensemble, summary forecast.Summary, params []forecast.EntityParameters, opts Options) (*Report, error) {
	if ensemble == nil || ensemble.Trials() == 0 {
		return nil, forecast.ErrNoEnsemble
	}

	byName := make(map[string]forecast.EntityParameters, len(params))
	for _, p := range params {
		byName[p.Entity] = p
	}
	entities := make([]Entity, len(ensemble.Entities))
	for i, name := range ensemble.Entities {
		p := byName[name]
		entities[i] = Entity{
			Name:       name,
			Weight:     ensemble.Weights[i],
			LastPrice:  p.LastPrice,
			MeanReturn: p.MeanReturn,
			StdReturn:  p.StdReturn,
		}
	}

	r := &Report{
		RunID:       ensemble.RunID,
		GeneratedAt: time.Now().UTC(),
		Seed:        ensemble.Seed,
		Trials:      ensemble.Trials(),
		Horizon:     ensemble.Horizon(),
		Entities:    entities,
		Summary:     summary,
	}
	if opts.HistogramBins > 0 {
		r.Histogram = ensemble.Histogram(opts.HistogramBins)
	}
	if opts.InitialInvestment.IsPositive() {
		r.Investment = Project(opts.InitialInvestment, summary)
	}
	return r, nil
}

// Render returns the report in the given format: text, json or yaml.
func (r *Report) Render(format string) (string, error) {
	switch format {
	case "", "text":
		return r.Text(), nil
	case "json":
		b, err := r.JSON()
		return string(b), err
	case "yaml":
		b, err := r.YAML()
		return string(b), err
	default:
		return "", fmt.Errorf("unknown report format: %s", format)
	}
}

// JSON returns the indented JSON encoding of the report.
func (r *Report) JSON() ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(b, '\n'), nil
}

// YAML returns the YAML encoding of the report.
func (r *Report) YAML() ([]byte, error) {
	b, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return b, nil
}

// Text returns a human-readable summary.
func (r *Report) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Simulation %s\n", r.RunID)
	fmt.Fprintf(&b, "Trials: %d  Horizon: %d periods  Seed: %d\n\n", r.Trials, r.Horizon, r.Seed)

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tWEIGHT\tLAST PRICE\tMEAN RETURN\tSTD RETURN")
	for _, e := range r.Entities {
		fmt.Fprintf(tw, "%s\t%.4f\t%.2f\t%.4f%%\t%.4f%%\n",
			e.Name, e.Weight, e.LastPrice, e.MeanReturn*100, e.StdReturn*100)
	}
	tw.Flush() //nolint:errcheck

	s := r.Summary
	fmt.Fprintf(&b, "\nFinal cumulative return over %d trials:\n", s.Count)
	fmt.Fprintf(&b, "  mean %.4f  std %.4f  median %.4f\n", s.Mean, s.Std, s.Median)
	fmt.Fprintf(&b, "  min %.4f  max %.4f\n", s.Min, s.Max)
	fmt.Fprintf(&b, "  95%% confidence interval: [%.4f, %.4f]\n", s.Lower, s.Upper)

	if len(r.Histogram) > 0 {
		b.WriteString("\nDistribution:\n")
		peak := 0
		for _, bin := range r.Histogram {
			peak = max(peak, bin.Count)
		}
		for _, bin := range r.Histogram {
			bar := 0
			if peak > 0 {
				bar = bin.Count * 40 / peak
			}
			fmt.Fprintf(&b, "  %8.4f - %8.4f | %-40s %d\n", bin.Low, bin.High, strings.Repeat("#", bar), bin.Count)
		}
	}

	if p := r.Investment; p != nil {
		fmt.Fprintf(&b, "\nThere is a 95%% chance that an initial investment of $%s will be worth between $%s and $%s after %d periods (median $%s).\n",
			p.Initial.StringFixed(2), p.Lower.StringFixed(2), p.Upper.StringFixed(2), r.Horizon, p.Median.StringFixed(2))
	}
	return b.String()
}
