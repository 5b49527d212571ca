package risk

// Level buckets a risk score into a coarse posture.
type Level string

const (
	LevelLow    Level = "low"    // score < 4
	LevelMedium Level = "medium" // 4 <= score <= 7
	LevelHigh   Level = "high"   // score > 7
)

// Assessment is the aggregate risk posture of a position list. It is derived
// fresh on every call and never cached across position changes.
type Assessment struct {
	RiskScore            float64  `json:"risk_score"` // 0-10
	RiskLevel            Level    `json:"risk_level"`
	Volatility           float64  `json:"volatility"`            // Value-weighted average of position volatilities
	Concentration        float64  `json:"concentration"`         // Largest single-position weight
	SharpeRatio          float64  `json:"sharpe_ratio"`          // Deterministic proxy (see pkg/formulas SharpeProxy)
	MaxDrawdown          float64  `json:"max_drawdown"`          // Volatility-implied one-period drawdown estimate
	ValueAtRisk          float64  `json:"value_at_risk"`         // Parametric one-period VaR in USD
	DiversificationScore float64  `json:"diversification_score"` // 1 - Herfindahl index; higher = better spread
	TotalValue           float64  `json:"total_value"`
	Recommendations      []string `json:"recommendations"`
}

// SizeRecommendation is risk-based sizing guidance for one new trade.
// Pure function of its inputs; it has no persisted identity.
type SizeRecommendation struct {
	RecommendedSize  float64  `json:"recommended_size"`  // Units of the asset
	RecommendedValue float64  `json:"recommended_value"` // USD notional
	MaxLoss          float64  `json:"max_loss"`          // USD lost if the stop is hit
	RiskRewardRatio  *float64 `json:"risk_reward_ratio"` // nil when no target price was supplied
	Capped           bool     `json:"capped"`            // Size was reduced by the max position weight policy
}

// KellyRecommendation is the output of the fractional-Kelly sizing variant.
type KellyRecommendation struct {
	RawKelly         float64 `json:"raw_kelly"`         // Unscaled Kelly fraction (may be negative)
	AppliedFraction  float64 `json:"applied_fraction"`  // After the fractional multiplier and clamping
	RecommendedValue float64 `json:"recommended_value"` // USD notional, capped at the portfolio percentage policy
	Capped           bool    `json:"capped"`
}

// Policy holds the configurable constants applied by the assessor. None of
// these are hard-coded in the computation paths.
type Policy struct {
	RiskFreeRate         float64 // Annual risk-free rate
	VaRConfidence        float64 // e.g. 0.95
	MaxPositionWeight    float64 // Cap applied by RecommendPositionSize (e.g. 0.20)
	ConcentrationWarning float64 // Recommendation trigger (e.g. 0.40)
	KellyFraction        float64 // Fractional Kelly multiplier (e.g. 0.25)
	KellyMaxPortfolioPct float64 // Kelly cap as fraction of portfolio (e.g. 0.10)
}

// DefaultPolicy mirrors the engine's default configuration.
func DefaultPolicy() Policy {
	return Policy{
		RiskFreeRate:         0.02,
		VaRConfidence:        0.95,
		MaxPositionWeight:    0.20,
		ConcentrationWarning: 0.40,
		KellyFraction:        0.25,
		KellyMaxPortfolioPct: 0.10,
	}
}
