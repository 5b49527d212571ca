package stops

import "time"

// Status is the lifecycle state of a stop order.
// Transitions: active → triggered, active → cancelled. Both are terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusTriggered Status = "triggered"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the order can no longer change.
func (s Status) Terminal() bool {
	return s == StatusTriggered || s == StatusCancelled
}

// TriggerReason records which exit condition fired.
type TriggerReason string

const (
	ReasonTrailingStop TriggerReason = "trailing stop"
	ReasonStopLoss     TriggerReason = "stop loss"
	ReasonTakeProfit   TriggerReason = "take profit"
)

// Order is one per-position exit automation. Price ticks are applied through
// the functional update pattern: ApplyPriceTick takes the current value and
// returns the next one.
type Order struct {
	ID     string  `json:"id"`
	Asset  string  `json:"asset"`
	Amount float64 `json:"amount"` // Units to exit when triggered

	StopLossPrice   *float64 `json:"stop_loss_price"`   // nil when unset
	TakeProfitPrice *float64 `json:"take_profit_price"` // nil when unset

	TrailingEnabled   bool     `json:"trailing_enabled"`
	TrailingPercent   *float64 `json:"trailing_percent"`    // Required when trailing is enabled
	TrailingStopPrice *float64 `json:"trailing_stop_price"` // Ratchets up with price, never down

	Status        Status        `json:"status"`
	TriggerReason TriggerReason `json:"trigger_reason,omitempty"`
	TriggerPrice  *float64      `json:"trigger_price,omitempty"`
	TriggeredAt   *time.Time    `json:"triggered_at,omitempty"`

	Version   int64     `json:"version"` // Optimistic concurrency token
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateParams are the inputs to CreateOrder.
type CreateParams struct {
	ID              string // Optional; a UUID is generated when empty
	Asset           string
	Amount          float64
	StopLossPrice   *float64
	TakeProfitPrice *float64
	TrailingEnabled bool
	TrailingPercent *float64
	CurrentPrice    float64 // Seeds the initial trailing stop; required when trailing is enabled
}
