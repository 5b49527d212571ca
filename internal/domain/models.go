// Package domain contains the shared types of the portfolio automation engine.
// The domain layer is pure: no infrastructure dependencies.
package domain

// Position represents one holding as seen by the risk assessor.
// Positions are owned by the caller and treated as read-only input.
type Position struct {
	Asset      string  `json:"asset"`      // Asset symbol
	Value      float64 `json:"value"`      // Current value in USD
	Volatility float64 `json:"volatility"` // Annualized volatility (0-1+ range)
	Locked     bool    `json:"locked"`     // Capital is locked (staking, vesting) and cannot be exited freely
}

// AllocationMap maps asset symbols to fractional portfolio weights (0.0-1.0).
// Weights need not sum to 1.0 - partial portfolios are legal - and the engine
// never silently normalizes them.
type AllocationMap map[string]float64

// Validate checks that no weight is negative. The engine deliberately does
// not require weights to sum to 1.0.
func (m AllocationMap) Validate() error {
	for asset, weight := range m {
		if weight < 0 {
			return NewValidationError("allocation", "negative weight for "+asset)
		}
	}
	return nil
}

// Assets returns the union of asset symbols across the receiver and other.
// An asset missing from one map is treated as weight 0 there.
func (m AllocationMap) Assets(other AllocationMap) []string {
	seen := make(map[string]bool, len(m)+len(other))
	var assets []string
	for asset := range m {
		if !seen[asset] {
			seen[asset] = true
			assets = append(assets, asset)
		}
	}
	for asset := range other {
		if !seen[asset] {
			seen[asset] = true
			assets = append(assets, asset)
		}
	}
	return assets
}

// Holding is one asset position expressed in units, as reported by the
// portfolio source. The automation cycle prices holdings into Positions
// using current market data.
type Holding struct {
	Asset      string  `json:"asset"`
	Units      float64 `json:"units"`
	Volatility float64 `json:"volatility"` // Annualized; 0 means unknown, estimate from history
	Locked     bool    `json:"locked"`
}

// OrderSide is the direction of a generated order intent.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// PurchaseEvent records one executed DCA purchase. It is returned to the
// caller for forwarding to the execution collaborator; the engine never
// submits trades itself.
type PurchaseEvent struct {
	ScheduleID    string  `json:"schedule_id"`
	Asset         string  `json:"asset"`
	AmountUSD     float64 `json:"amount_usd"`
	UnitsAcquired float64 `json:"units_acquired"`
	Price         float64 `json:"price"`
	PeriodIndex   int     `json:"period_index"` // 1-based purchase number within the schedule
	ExecutedAt    int64   `json:"executed_at"`  // Unix seconds
}
