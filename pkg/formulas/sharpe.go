package formulas

import (
	"math"
)

// CalculateSharpeRatio calculates the annualized Sharpe ratio from a series
// of periodic returns.
//
// Sharpe Ratio Formula:
//
//	Sharpe = (Mean Return - Periodic Risk-free Rate) / Std Dev of Returns
//	Annualized: Sharpe × sqrt(periodsPerYear)
//
// Args:
//
//	returns: Array of periodic returns (daily, monthly, etc.)
//	riskFreeRate: Risk-free rate (annual, as decimal, e.g., 0.02 for 2%)
//	periodsPerYear: Number of periods per year (252 for daily, 12 for monthly)
//
// Returns:
//
//	Sharpe ratio or nil if insufficient data
func CalculateSharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear int) *float64 {
	if len(returns) < 2 {
		return nil
	}

	meanReturn := Mean(returns)

	stdDev := StdDev(returns)
	if stdDev == 0 {
		return nil
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)

	sharpe := (meanReturn - periodicRiskFree) / stdDev
	annualized := sharpe * math.Sqrt(float64(periodsPerYear))

	return &annualized
}

// SharpeProxy calculates a deterministic stand-in for the Sharpe ratio when no
// historical return series is available. The portfolio's expected return is
// approximated as the risk-free rate plus half its volatility (a fixed
// risk-premium assumption), giving:
//
//	proxy = (riskFree + 0.5 × volatility - riskFree) / volatility = 0.5
//
// scaled by how much of the volatility is diversified away:
//
//	proxy = 0.5 × (1 + diversification)
//
// This is a documented heuristic, not a statistical estimate: it rewards
// spread-out portfolios and is a pure function of its inputs. It exists
// because the engine receives only scalar position volatilities, not return
// histories.
func SharpeProxy(volatility, diversification float64) float64 {
	if volatility <= 0 {
		return 0
	}
	return 0.5 * (1 + Clamp(diversification, 0, 1))
}
