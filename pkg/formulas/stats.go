// Package formulas provides pure numeric formulas used by the automation engine.
// All functions are deterministic and side-effect free.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualization basis for daily return series.
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Variance(data, nil)
}

// CalculateReturns converts prices to percentage returns
// Returns[i] = (Price[i] - Price[i-1]) / Price[i-1]
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// AnnualizedVolatility calculates annualized volatility from daily returns
// Formula: Std Dev of Daily Returns × sqrt(252 trading days)
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}

	return StdDev(dailyReturns) * math.Sqrt(TradingDaysPerYear)
}

// WeightedAverage calculates the weighted average of values.
// Weights do not need to sum to 1; they are normalized by their total.
// Returns 0 when the weight total is 0.
func WeightedAverage(values, weights []float64) float64 {
	if len(values) == 0 || len(values) != len(weights) {
		return 0
	}

	var sum, total float64
	for i, v := range values {
		sum += v * weights[i]
		total += weights[i]
	}

	if total == 0 {
		return 0
	}
	return sum / total
}

// CompoundGrowth projects a principal forward at a periodic rate over n periods.
// Formula: principal × (1 + rate)^periods
func CompoundGrowth(principal, ratePerPeriod float64, periods int) float64 {
	if periods <= 0 {
		return principal
	}
	return principal * math.Pow(1+ratePerPeriod, float64(periods))
}
