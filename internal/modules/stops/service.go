// Package stops manages per-position exit triggers: stop-loss, take-profit
// and trailing stops that ratchet with favorable price movement.
package stops

import (
	"time"

	"github.com/avasilakis/helmsman/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service implements the stop order state machine. Stateless; order values
// flow through and persistence stays with the repository.
type Service struct {
	log zerolog.Logger
}

// NewService creates a new stop order service.
func NewService(log zerolog.Logger) *Service {
	return &Service{
		log: log.With().Str("service", "stops").Logger(),
	}
}

// CreateOrder validates the parameters and returns a new active order.
// At least one exit condition (stop loss, take profit, trailing) must be
// configured. When trailing is enabled the trailing percent is required and
// the trailing stop is seeded from the creation-time price:
//
//	trailingStopPrice = currentPrice × (1 - trailingPercent/100)
func (s *Service) CreateOrder(params CreateParams) (Order, error) {
	if params.Asset == "" {
		return Order{}, domain.NewValidationError("asset", "required")
	}
	if params.Amount <= 0 {
		return Order{}, domain.NewValidationError("amount", "must be positive")
	}
	if params.StopLossPrice == nil && params.TakeProfitPrice == nil && !params.TrailingEnabled {
		return Order{}, domain.NewValidationError("order", "at least one of stop loss, take profit or trailing is required")
	}
	if params.StopLossPrice != nil && *params.StopLossPrice <= 0 {
		return Order{}, domain.NewValidationError("stop_loss_price", "must be positive")
	}
	if params.TakeProfitPrice != nil && *params.TakeProfitPrice <= 0 {
		return Order{}, domain.NewValidationError("take_profit_price", "must be positive")
	}

	id := params.ID
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now().UTC()
	order := Order{
		ID:              id,
		Asset:           params.Asset,
		Amount:          params.Amount,
		StopLossPrice:   params.StopLossPrice,
		TakeProfitPrice: params.TakeProfitPrice,
		TrailingEnabled: params.TrailingEnabled,
		Status:          StatusActive,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if params.TrailingEnabled {
		if params.TrailingPercent == nil || *params.TrailingPercent <= 0 || *params.TrailingPercent >= 100 {
			return Order{}, domain.NewValidationError("trailing_percent", "must be in (0, 100) when trailing is enabled")
		}
		if params.CurrentPrice <= 0 {
			return Order{}, domain.NewValidationError("current_price", "required to seed the trailing stop")
		}
		order.TrailingPercent = params.TrailingPercent
		initial := params.CurrentPrice * (1 - *params.TrailingPercent/100)
		order.TrailingStopPrice = &initial
	}

	s.log.Info().
		Str("order_id", order.ID).
		Str("asset", order.Asset).
		Bool("trailing", order.TrailingEnabled).
		Msg("Stop order created")

	return order, nil
}

// ApplyPriceTick advances the order against a new price. Returns the next
// order value and whether anything changed.
//
// A non-positive price is always a validation error, even for non-active
// orders: bad input is never silently ignored. Ticks against non-active
// orders are no-ops. For trailing orders the stop ratchets to max(current
// stop, price × (1 - percent/100)) and never moves down. Trigger conditions
// are then checked in fixed precedence: trailing stop, then stop loss, then
// take profit. Triggering is terminal; the order records the reason and
// price for the execution collaborator but the closing trade itself is out
// of the engine's hands.
func (s *Service) ApplyPriceTick(order Order, currentPrice float64) (Order, bool, error) {
	if currentPrice <= 0 {
		return order, false, domain.NewValidationError("current_price", "must be positive")
	}
	if order.Status != StatusActive {
		return order, false, nil
	}

	changed := false

	if order.TrailingEnabled && order.TrailingPercent != nil {
		candidate := currentPrice * (1 - *order.TrailingPercent/100)
		if order.TrailingStopPrice == nil || candidate > *order.TrailingStopPrice {
			order.TrailingStopPrice = &candidate
			changed = true
		}
	}

	switch {
	case order.TrailingEnabled && order.TrailingStopPrice != nil && currentPrice <= *order.TrailingStopPrice:
		order = s.trigger(order, ReasonTrailingStop, currentPrice)
		changed = true
	case order.StopLossPrice != nil && currentPrice <= *order.StopLossPrice:
		order = s.trigger(order, ReasonStopLoss, currentPrice)
		changed = true
	case order.TakeProfitPrice != nil && currentPrice >= *order.TakeProfitPrice:
		order = s.trigger(order, ReasonTakeProfit, currentPrice)
		changed = true
	}

	if changed {
		order.UpdatedAt = time.Now().UTC()
	}

	return order, changed, nil
}

// CancelOrder moves an active order to cancelled. Cancelling an order in a
// terminal state is a no-op returning false.
func (s *Service) CancelOrder(order Order) (Order, bool) {
	if order.Status.Terminal() {
		return order, false
	}

	order.Status = StatusCancelled
	order.UpdatedAt = time.Now().UTC()

	s.log.Info().Str("order_id", order.ID).Msg("Stop order cancelled")
	return order, true
}

func (s *Service) trigger(order Order, reason TriggerReason, price float64) Order {
	now := time.Now().UTC()
	order.Status = StatusTriggered
	order.TriggerReason = reason
	order.TriggerPrice = &price
	order.TriggeredAt = &now

	s.log.Info().
		Str("order_id", order.ID).
		Str("asset", order.Asset).
		Str("reason", string(reason)).
		Float64("price", price).
		Msg("Stop order triggered")

	return order
}
