package risk

import (
	"math"

	"github.com/avasilakis/helmsman/internal/domain"
	"github.com/avasilakis/helmsman/pkg/formulas"
)

// RecommendPositionSize sizes a new trade so that hitting the stop loses at
// most riskPerTrade of the portfolio:
//
//	maxLoss = portfolioValue × riskPerTrade
//	size    = maxLoss / |entryPrice - stopLoss|
//
// targetPrice is optional; when positive, the risk/reward ratio
// |target-entry| / |entry-stop| is included, otherwise it is nil.
//
// The recommended value is additionally capped at the policy's maximum
// single-position weight, so a very tight stop cannot produce an outsized
// position. Note that with the default policy (MaxPositionWeight 0.20) the
// cap binds long before the formula alone would: a $100k portfolio risking
// 2% with entry 50000 and stop 45000 sizes to $20,000 capped, not the
// uncapped $40,000 the formula yields. The uncapped figure only comes back
// at MaxPositionWeight = 1.0; Capped reports which regime applied.
func (s *Service) RecommendPositionSize(portfolioValue, riskPerTrade, entryPrice, stopLoss, targetPrice float64) (*SizeRecommendation, error) {
	if portfolioValue <= 0 {
		return nil, domain.NewValidationError("portfolio_value", "must be positive")
	}
	if riskPerTrade <= 0 || riskPerTrade >= 1 {
		return nil, domain.NewValidationError("risk_per_trade", "must be in (0, 1)")
	}
	if entryPrice <= 0 {
		return nil, domain.NewValidationError("entry_price", "must be positive")
	}
	if stopLoss < 0 {
		return nil, domain.NewValidationError("stop_loss", "must not be negative")
	}

	perUnitRisk := math.Abs(entryPrice - stopLoss)
	if perUnitRisk == 0 {
		return nil, domain.NewValidationError("stop_loss", "entry price equals stop loss; sizing is undefined")
	}

	maxLoss := portfolioValue * riskPerTrade
	size := maxLoss / perUnitRisk
	value := size * entryPrice

	capped := false
	if maxValue := portfolioValue * s.policy.MaxPositionWeight; value > maxValue {
		value = maxValue
		size = value / entryPrice
		capped = true
	}

	rec := &SizeRecommendation{
		RecommendedSize:  size,
		RecommendedValue: value,
		MaxLoss:          maxLoss,
		Capped:           capped,
	}

	if targetPrice > 0 {
		ratio := math.Abs(targetPrice-entryPrice) / perUnitRisk
		rec.RiskRewardRatio = &ratio
	}

	return rec, nil
}

// KellyPositionSize sizes a position from historical win statistics using a
// fractional Kelly criterion:
//
//	kelly = winRate - (1 - winRate) / (avgWin / avgLoss)
//
// The raw fraction is scaled by the policy's fractional multiplier and the
// resulting notional is capped at the policy's portfolio percentage. A
// strategy with no positive edge (kelly <= 0) recommends zero.
func (s *Service) KellyPositionSize(winRate, avgWin, avgLoss, portfolioValue float64) (*KellyRecommendation, error) {
	if winRate <= 0 || winRate >= 1 {
		return nil, domain.NewValidationError("win_rate", "must be in (0, 1)")
	}
	if avgWin <= 0 {
		return nil, domain.NewValidationError("avg_win", "must be positive")
	}
	if avgLoss <= 0 {
		return nil, domain.NewValidationError("avg_loss", "must be positive")
	}
	if portfolioValue <= 0 {
		return nil, domain.NewValidationError("portfolio_value", "must be positive")
	}

	raw := formulas.KellyFraction(winRate, avgWin, avgLoss)

	applied := raw * s.policy.KellyFraction
	if applied < 0 {
		applied = 0
	}

	value := applied * portfolioValue
	capped := false
	if maxValue := portfolioValue * s.policy.KellyMaxPortfolioPct; value > maxValue {
		value = maxValue
		applied = s.policy.KellyMaxPortfolioPct
		capped = true
	}

	return &KellyRecommendation{
		RawKelly:         raw,
		AppliedFraction:  applied,
		RecommendedValue: value,
		Capped:           capped,
	}, nil
}
