// Package risk converts a position list into an aggregate risk posture and
// provides risk-based sizing guidance for new trades.
package risk

import (
	"fmt"
	"sort"

	"github.com/avasilakis/helmsman/internal/domain"
	"github.com/avasilakis/helmsman/pkg/formulas"
	"github.com/rs/zerolog"
)

// Weighting of the risk score components. Volatility dominates,
// concentration follows, locked capital adds a fixed nudge. Increasing any
// one position's volatility or concentration can only raise the score.
const (
	volatilityWeight    = 0.5
	concentrationWeight = 0.4
	lockedCapitalNudge  = 1.0
)

// Service assesses portfolio risk. Stateless; all operations are
// deterministic functions of their inputs.
type Service struct {
	policy Policy
	log    zerolog.Logger
}

// NewService creates a new risk service.
func NewService(policy Policy, log zerolog.Logger) *Service {
	return &Service{
		policy: policy,
		log:    log.With().Str("service", "risk").Logger(),
	}
}

// AssessPortfolio computes the aggregate risk posture of a position list.
//
// Volatility is the value-weighted average of per-position volatilities.
// Concentration is the largest single-position weight; diversification is
// one minus the Herfindahl index of the weights. Value at Risk uses the
// parametric normal approximation (totalValue × volatility × z). The Sharpe
// figure is the documented deterministic proxy from pkg/formulas, since the
// engine receives scalar volatilities rather than return histories.
func (s *Service) AssessPortfolio(positions []domain.Position) (*Assessment, error) {
	if len(positions) == 0 {
		return nil, domain.NewValidationError("positions", "empty position list")
	}

	totalValue := 0.0
	anyLocked := false
	for _, p := range positions {
		if p.Value < 0 {
			return nil, domain.NewValidationError("positions", fmt.Sprintf("negative value for %s", p.Asset))
		}
		if p.Volatility < 0 {
			return nil, domain.NewValidationError("positions", fmt.Sprintf("negative volatility for %s", p.Asset))
		}
		totalValue += p.Value
		if p.Locked {
			anyLocked = true
		}
	}
	if totalValue <= 0 {
		return nil, domain.NewValidationError("positions", "non-positive total value")
	}

	weights := make([]float64, len(positions))
	vols := make([]float64, len(positions))
	concentration := 0.0
	for i, p := range positions {
		weights[i] = p.Value / totalValue
		vols[i] = p.Volatility
		if weights[i] > concentration {
			concentration = weights[i]
		}
	}

	volatility := formulas.WeightedAverage(vols, weights)
	hhi := formulas.HerfindahlIndex(weights)
	diversification := 1 - hhi

	score := volatility*10*volatilityWeight + concentration*10*concentrationWeight
	if anyLocked {
		score += lockedCapitalNudge
	}
	score = formulas.Clamp(score, 0, 10)

	zScore := formulas.ZScore(s.policy.VaRConfidence)

	assessment := &Assessment{
		RiskScore:            score,
		RiskLevel:            levelFor(score),
		Volatility:           volatility,
		Concentration:        concentration,
		SharpeRatio:          formulas.SharpeProxy(volatility, diversification),
		MaxDrawdown:          formulas.Clamp(volatility*zScore, 0, 1),
		ValueAtRisk:          formulas.ParametricVaR(totalValue, volatility, s.policy.VaRConfidence),
		DiversificationScore: diversification,
		TotalValue:           totalValue,
	}
	assessment.Recommendations = s.recommendations(assessment, positions, anyLocked)

	return assessment, nil
}

// levelFor maps a 0-10 score onto the fixed level thresholds:
// below 4 low, 4 through 7 medium, above 7 high.
func levelFor(score float64) Level {
	switch {
	case score < 4:
		return LevelLow
	case score <= 7:
		return LevelMedium
	default:
		return LevelHigh
	}
}

// recommendations emits the rule-driven advisory strings. Rules fire on
// fixed thresholds so identical input always yields identical output.
func (s *Service) recommendations(a *Assessment, positions []domain.Position, anyLocked bool) []string {
	recs := []string{}

	if a.Concentration > s.policy.ConcentrationWarning {
		largest := ""
		largestValue := -1.0
		for _, p := range positions {
			if p.Value > largestValue {
				largestValue = p.Value
				largest = p.Asset
			}
		}
		recs = append(recs, fmt.Sprintf(
			"Reduce concentration: %s is %.0f%% of the portfolio (warning threshold %.0f%%)",
			largest, a.Concentration*100, s.policy.ConcentrationWarning*100))
	}

	if a.Volatility > 0.6 {
		recs = append(recs, fmt.Sprintf(
			"Portfolio volatility is high (%.0f%% annualized); consider shifting toward stable assets",
			a.Volatility*100))
	}

	if a.DiversificationScore < 0.3 {
		recs = append(recs, "Diversification is poor; spread value across more assets")
	}

	if anyLocked {
		locked := []string{}
		for _, p := range positions {
			if p.Locked {
				locked = append(locked, p.Asset)
			}
		}
		sort.Strings(locked)
		recs = append(recs, fmt.Sprintf(
			"Locked capital limits exit flexibility: %v", locked))
	}

	if a.RiskLevel == LevelHigh {
		recs = append(recs, "Overall risk is high; reduce position sizes or add hedges")
	} else if a.RiskScore < 2 {
		recs = append(recs, "Portfolio is very conservative; unused risk budget may be costing returns")
	}

	return recs
}
