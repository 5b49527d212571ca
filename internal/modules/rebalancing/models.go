package rebalancing

import (
	"time"

	"github.com/avasilakis/helmsman/internal/domain"
)

// Drift describes one asset's deviation from its target weight.
type Drift struct {
	Asset   string  `json:"asset"`
	Current float64 `json:"current"` // Current fractional weight
	Target  float64 `json:"target"`  // Target fractional weight
	Drift   float64 `json:"drift"`   // current - target (positive = overweight)
}

// Order is one buy or sell instruction in a rebalance plan. Amounts are USD
// notional only; conversion to asset units belongs to the execution
// collaborator.
type Order struct {
	Asset     string           `json:"asset"`
	Action    domain.OrderSide `json:"action"`
	AmountUSD float64          `json:"amount_usd"`
	Priority  int              `json:"priority"` // Ascending execution order; sells come before buys
}

// Plan is the result of a drift analysis. It is computed on demand from a
// snapshot of current/target allocation plus total value and is stale the
// moment any trade executes - callers must re-snapshot before reusing it.
type Plan struct {
	Drifts           []Drift   `json:"drifts"`
	MaxDrift         float64   `json:"max_drift"` // Largest |drift| across assets
	Threshold        float64   `json:"threshold"`
	NeedsRebalancing bool      `json:"needs_rebalancing"`
	TotalValue       float64   `json:"total_value"`
	ComputedAt       time.Time `json:"computed_at"`
}
