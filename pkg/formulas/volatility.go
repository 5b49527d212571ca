package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// EstimateVolatility estimates annualized volatility from a daily closing
// price series using a rolling standard deviation of returns.
//
// Args:
//
//	closes: Array of daily closing prices
//	window: Rolling window length in trading days (typically 30)
//
// Returns:
//
//	Annualized volatility or nil if insufficient data
func EstimateVolatility(closes []float64, window int) *float64 {
	if window < 2 || len(closes) < window+1 {
		return nil
	}

	returns := CalculateReturns(closes)

	// Rolling stddev via go-talib; the last value is the current estimate.
	stddev := talib.StdDev(returns, window, 1.0)
	if len(stddev) == 0 {
		return nil
	}

	last := stddev[len(stddev)-1]
	if isNaN(last) {
		return nil
	}

	annualized := last * math.Sqrt(TradingDaysPerYear)
	return &annualized
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
