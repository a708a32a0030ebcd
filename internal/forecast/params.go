package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/rewired-gh/mcforecast/internal/models"
)

// EntityParameters are the per-entity inputs of the random walk.
type EntityParameters struct {
	Entity     string
	LastPrice  float64
	MeanReturn float64
	StdReturn  float64
}

// Flat reports whether the entity's returns have no spread.
func (p EntityParameters) Flat() bool {
	return p.StdReturn == 0
}

// PeriodReturns returns price[i]/price[i-1] - 1 for i >= 1.
func PeriodReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out[i-1] = prices[i]/prices[i-1] - 1
	}
	return out
}

// DeriveParameters computes mean and sample standard deviation of period returns and the
// last observed price for every entity in table order.
func DeriveParameters(table models.PriceTable) ([]EntityParameters, error) {
	if err := table.Validate(); err != nil {
		return nil, &InvalidInputError{Field: "table", Reason: "validation failed", Err: err}
	}
	if table.Periods() < 2 {
		return nil, invalidInput("table", "at least 2 periods are required to derive returns")
	}

	params := make([]EntityParameters, len(table.Entities))
	for i, entity := range table.Entities {
		prices := table.Series(entity)
		returns := PeriodReturns(prices)

		var mean, std float64
		if len(returns) == 1 {
			mean = returns[0]
		} else {
			mean, std = stat.MeanStdDev(returns, nil)
		}
		// Spread below float noise is a constant series.
		if std < 1e-12 {
			std = 0
		}
		if math.IsNaN(mean) || math.IsInf(mean, 0) || math.IsNaN(std) || math.IsInf(std, 0) {
			return nil, invalidInput("table", "entity "+entity+" produces non-finite return statistics")
		}

		params[i] = EntityParameters{
			Entity:     entity,
			LastPrice:  prices[len(prices)-1],
			MeanReturn: mean,
			StdReturn:  std,
		}
	}
	return params, nil
}
