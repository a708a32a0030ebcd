// Package models defines the core domain entities: price observations, aligned price tables,
// and portfolio weights.
package models

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// DateLayout is the calendar format used for observation dates in files and the store.
const DateLayout = "2006-01-02"

// Observation is a single price value for one entity at one period.
type Observation struct {
	Entity string    `json:"entity"`
	Date   time.Time `json:"date"`
	Value  float64   `json:"value"`
}

// Validate checks observation field constraints.
func (o *Observation) Validate() error {
	if o.Entity == "" {
		return errors.New("entity must not be empty")
	}
	if o.Date.IsZero() {
		return errors.New("date must be set")
	}
	if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
		return errors.New("value must be finite")
	}
	if o.Value <= 0 {
		return errors.New("value must be positive")
	}
	return nil
}

// PriceTable is a historical price table: one price series per entity, all sharing
// the same strictly increasing date index.
type PriceTable struct {
	Dates    []time.Time
	Entities []string
	Prices   map[string][]float64
}

// Periods returns the number of dates in the shared index.
func (t PriceTable) Periods() int {
	return len(t.Dates)
}

// Series returns the price series for entity, or nil when it is not in the table.
func (t PriceTable) Series(entity string) []float64 {
	return t.Prices[entity]
}

// Validate checks that every entity covers every date with a finite positive price.
func (t PriceTable) Validate() error {
	if len(t.Entities) == 0 {
		return errors.New("table must contain at least one entity")
	}
	for i := 1; i < len(t.Dates); i++ {
		if !t.Dates[i].After(t.Dates[i-1]) {
			return fmt.Errorf("dates must be strictly increasing (index %d: %s after %s)",
				i, t.Dates[i].Format(DateLayout), t.Dates[i-1].Format(DateLayout))
		}
	}
	seen := make(map[string]bool, len(t.Entities))
	for _, entity := range t.Entities {
		if entity == "" {
			return errors.New("entity name must not be empty")
		}
		if seen[entity] {
			return fmt.Errorf("duplicate entity %q", entity)
		}
		seen[entity] = true

		prices, ok := t.Prices[entity]
		if !ok {
			return fmt.Errorf("entity %q has no price series", entity)
		}
		if len(prices) != len(t.Dates) {
			return fmt.Errorf("entity %q has %d prices, expected %d", entity, len(prices), len(t.Dates))
		}
		for i, p := range prices {
			if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
				return fmt.Errorf("entity %q has invalid price %v at %s", entity, p, t.Dates[i].Format(DateLayout))
			}
		}
	}
	if len(t.Prices) != len(t.Entities) {
		return fmt.Errorf("table has %d price series for %d entities", len(t.Prices), len(t.Entities))
	}
	return nil
}

// BuildOptions controls how long-format observations are aligned into a PriceTable.
type BuildOptions struct {
	// DropIncomplete excludes entities missing any date of the shared index instead of
	// rejecting the whole table.
	DropIncomplete bool
}

// BuildPriceTable aligns observations into a PriceTable. The shared index is the union of
// all observation dates. Entities keep the order of their first appearance.
func BuildPriceTable(observations []Observation, opts BuildOptions) (PriceTable, error) {
	if len(observations) == 0 {
		return PriceTable{}, errors.New("no observations provided")
	}

	byEntity := make(map[string]map[int64]float64)
	var order []string
	dateSet := make(map[int64]time.Time)
	for i := range observations {
		obs := &observations[i]
		if err := obs.Validate(); err != nil {
			return PriceTable{}, fmt.Errorf("invalid observation %d: %w", i, err)
		}
		key := obs.Date.UTC().UnixNano()
		series, ok := byEntity[obs.Entity]
		if !ok {
			series = make(map[int64]float64)
			byEntity[obs.Entity] = series
			order = append(order, obs.Entity)
		}
		if _, dup := series[key]; dup {
			return PriceTable{}, fmt.Errorf("duplicate observation for %q at %s", obs.Entity, obs.Date.Format(DateLayout))
		}
		series[key] = obs.Value
		dateSet[key] = obs.Date.UTC()
	}

	keys := make([]int64, 0, len(dateSet))
	for k := range dateSet {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	table := PriceTable{
		Dates:  make([]time.Time, len(keys)),
		Prices: make(map[string][]float64, len(order)),
	}
	for i, k := range keys {
		table.Dates[i] = dateSet[k]
	}

	for _, entity := range order {
		series := byEntity[entity]
		if len(series) != len(keys) {
			if opts.DropIncomplete {
				continue
			}
			return PriceTable{}, fmt.Errorf("entity %q covers %d of %d dates", entity, len(series), len(keys))
		}
		prices := make([]float64, len(keys))
		for i, k := range keys {
			prices[i] = series[k]
		}
		table.Entities = append(table.Entities, entity)
		table.Prices[entity] = prices
	}

	if len(table.Entities) == 0 {
		return PriceTable{}, errors.New("no entity covers every date")
	}
	return table, nil
}
