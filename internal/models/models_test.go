package models

import (
	"math"
	"strings"
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestObservationValidate(t *testing.T) {
	tests := []struct {
		name    string
		obs     Observation
		wantErr bool
	}{
		{
			name:    "valid observation",
			obs:     Observation{Entity: "Kings, NY", Date: day("2020-01-31"), Value: 650000},
			wantErr: false,
		},
		{
			name:    "empty entity",
			obs:     Observation{Date: day("2020-01-31"), Value: 1},
			wantErr: true,
		},
		{
			name:    "zero date",
			obs:     Observation{Entity: "a", Value: 1},
			wantErr: true,
		},
		{
			name:    "zero value",
			obs:     Observation{Entity: "a", Date: day("2020-01-31")},
			wantErr: true,
		},
		{
			name:    "NaN value",
			obs:     Observation{Entity: "a", Date: day("2020-01-31"), Value: math.NaN()},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.obs.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildPriceTable_Aligns(t *testing.T) {
	obs := []Observation{
		{Entity: "B", Date: day("2020-02-29"), Value: 48},
		{Entity: "A", Date: day("2020-01-31"), Value: 100},
		{Entity: "B", Date: day("2020-01-31"), Value: 50},
		{Entity: "A", Date: day("2020-02-29"), Value: 110},
	}
	table, err := BuildPriceTable(obs, BuildOptions{})
	if err != nil {
		t.Fatalf("BuildPriceTable: %v", err)
	}
	if table.Periods() != 2 {
		t.Fatalf("got %d periods, want 2", table.Periods())
	}
	if strings.Join(table.Entities, ",") != "B,A" {
		t.Errorf("entities = %v, want first-appearance order [B A]", table.Entities)
	}
	if got := table.Series("A"); got[0] != 100 || got[1] != 110 {
		t.Errorf("series A = %v, want [100 110]", got)
	}
	if got := table.Series("B"); got[0] != 50 || got[1] != 48 {
		t.Errorf("series B = %v, want [50 48]", got)
	}
	if err := table.Validate(); err != nil {
		t.Errorf("built table should validate: %v", err)
	}
}

func TestBuildPriceTable_PartialCoverage(t *testing.T) {
	obs := []Observation{
		{Entity: "A", Date: day("2020-01-31"), Value: 100},
		{Entity: "A", Date: day("2020-02-29"), Value: 110},
		{Entity: "B", Date: day("2020-01-31"), Value: 50},
	}

	if _, err := BuildPriceTable(obs, BuildOptions{}); err == nil {
		t.Error("expected error for entity with partial coverage")
	}

	table, err := BuildPriceTable(obs, BuildOptions{DropIncomplete: true})
	if err != nil {
		t.Fatalf("BuildPriceTable with DropIncomplete: %v", err)
	}
	if len(table.Entities) != 1 || table.Entities[0] != "A" {
		t.Errorf("entities = %v, want [A]", table.Entities)
	}
}

func TestBuildPriceTable_Duplicate(t *testing.T) {
	obs := []Observation{
		{Entity: "A", Date: day("2020-01-31"), Value: 100},
		{Entity: "A", Date: day("2020-01-31"), Value: 101},
	}
	if _, err := BuildPriceTable(obs, BuildOptions{}); err == nil {
		t.Error("expected error for duplicate observation")
	}
}

func TestPriceTableValidate(t *testing.T) {
	base := func() PriceTable {
		return PriceTable{
			Dates:    []time.Time{day("2020-01-31"), day("2020-02-29")},
			Entities: []string{"A"},
			Prices:   map[string][]float64{"A": {1, 2}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*PriceTable)
		wantErr bool
	}{
		{"valid", func(*PriceTable) {}, false},
		{"no entities", func(p *PriceTable) { p.Entities = nil; p.Prices = map[string][]float64{} }, true},
		{"unsorted dates", func(p *PriceTable) { p.Dates[0], p.Dates[1] = p.Dates[1], p.Dates[0] }, true},
		{"short series", func(p *PriceTable) { p.Prices["A"] = []float64{1} }, true},
		{"missing series", func(p *PriceTable) { p.Entities = append(p.Entities, "B") }, true},
		{"negative price", func(p *PriceTable) { p.Prices["A"][1] = -1 }, true},
		{"duplicate entity", func(p *PriceTable) { p.Entities = []string{"A", "A"} }, true},
		{"orphan series", func(p *PriceTable) { p.Prices["B"] = []float64{1, 2} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := base()
			tt.mutate(&table)
			err := table.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWeightsValidate(t *testing.T) {
	entities := []string{"A", "B", "C"}

	tests := []struct {
		name    string
		weights Weights
		wantErr bool
	}{
		{"equal", EqualWeights(entities), false},
		{"custom", Weights{"A": 0.5, "B": 0.25, "C": 0.25}, false},
		{"within tolerance", Weights{"A": 0.5, "B": 0.25, "C": 0.2500001}, false},
		{"sum too small", Weights{"A": 0.5, "B": 0.25, "C": 0.2}, true},
		{"negative", Weights{"A": 1.2, "B": -0.2, "C": 0}, true},
		{"missing entity", Weights{"A": 0.5, "B": 0.5}, true},
		{"unknown entity", Weights{"A": 0.5, "B": 0.25, "C": 0.25, "D": 0}, true},
		{"NaN", Weights{"A": math.NaN(), "B": 0.5, "C": 0.5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate(entities)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEqualWeights(t *testing.T) {
	w := EqualWeights([]string{"A", "B", "C", "D"})
	for e, v := range w {
		if v != 0.25 {
			t.Errorf("weight for %s = %f, want 0.25", e, v)
		}
	}
	if got := w.Vector([]string{"D", "A"}); got[0] != 0.25 || got[1] != 0.25 {
		t.Errorf("Vector = %v", got)
	}
	if len(EqualWeights(nil)) != 0 {
		t.Error("EqualWeights(nil) should be empty")
	}
}
