package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ZScore returns the one-sided standard normal quantile for the given
// confidence level (e.g. 0.95 → 1.645, 0.99 → 2.326).
func ZScore(confidence float64) float64 {
	if confidence <= 0 || confidence >= 1 {
		return 0
	}

	normal := distuv.Normal{Mu: 0, Sigma: 1}
	return normal.Quantile(confidence)
}

// ParametricVaR calculates one-period Value at Risk in currency terms using
// the normal approximation:
//
//	VaR = Portfolio Value × Volatility × z(confidence)
//
// The result is the maximum expected loss at the given confidence level,
// expressed as a positive number.
func ParametricVaR(portfolioValue, volatility, confidence float64) float64 {
	if portfolioValue <= 0 || volatility <= 0 {
		return 0
	}
	return portfolioValue * volatility * ZScore(confidence)
}

// HerfindahlIndex calculates the concentration of a set of portfolio weights
// as the sum of squared weights. Weights are normalized by their total first,
// so the result is 1/n for an equal-weight portfolio of n assets and 1.0 for
// a single-asset portfolio.
func HerfindahlIndex(weights []float64) float64 {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return 0
	}

	var hhi float64
	for _, w := range weights {
		norm := w / total
		hhi += norm * norm
	}
	return hhi
}

// KellyFraction calculates the raw Kelly criterion bet fraction:
//
//	f = winRate - (1 - winRate) / (avgWin / avgLoss)
//
// A negative result means the strategy has no positive edge and nothing
// should be staked. Callers are expected to scale the raw fraction down
// (fractional Kelly) before sizing real positions.
func KellyFraction(winRate, avgWin, avgLoss float64) float64 {
	if avgLoss <= 0 || avgWin <= 0 {
		return 0
	}
	if winRate <= 0 || winRate >= 1 {
		return 0
	}

	payoffRatio := avgWin / avgLoss
	return winRate - (1-winRate)/payoffRatio
}

// MaxDrawdown calculates the maximum peak-to-trough drawdown from a value
// series, as a positive fraction (0.25 = 25% loss from peak).
// Returns nil with fewer than two observations.
func MaxDrawdown(values []float64) *float64 {
	if len(values) < 2 {
		return nil
	}

	maxDrawdown := 0.0
	peak := values[0]

	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			drawdown := (peak - v) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return &maxDrawdown
}

// Clamp bounds a value to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
