// Package rebalancing detects allocation drift and produces the buy/sell
// instructions that restore a target allocation.
package rebalancing

import (
	"math"
	"sort"
	"time"

	"github.com/avasilakis/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// conservationTolerance is the maximum tolerated imbalance, in USD, between
// total buys and total sells of a generated order list. An imbalance beyond
// this is a floating-point artifact worth logging, never an error.
const conservationTolerance = 0.01

// driftEpsilon absorbs float64 noise when comparing a drift against the
// threshold, so that 0.55 - 0.50 still counts as exactly 0.05.
const driftEpsilon = 1e-9

// Service computes rebalance plans and order lists. It is stateless; every
// call is a pure computation over its inputs.
type Service struct {
	threshold float64 // Default drift threshold when the caller passes 0
	log       zerolog.Logger
}

// NewService creates a new rebalancing service.
func NewService(threshold float64, log zerolog.Logger) *Service {
	return &Service{
		threshold: threshold,
		log:       log.With().Str("service", "rebalancing").Logger(),
	}
}

// Analyze computes per-asset drift between the current and target allocation
// and decides whether rebalancing is needed.
//
// An asset present in only one map is treated as weight 0 in the other.
// NeedsRebalancing is true iff at least one |drift| strictly exceeds the
// threshold - a drift exactly at the threshold does not trigger.
//
// threshold <= 0 selects the service's configured default.
func (s *Service) Analyze(current, target domain.AllocationMap, totalValue, threshold float64) (*Plan, error) {
	if err := s.validate(current, target, totalValue); err != nil {
		return nil, err
	}
	if threshold <= 0 {
		threshold = s.threshold
	}

	assets := current.Assets(target)
	sort.Strings(assets)

	drifts := make([]Drift, 0, len(assets))
	maxDrift := 0.0
	for _, asset := range assets {
		d := current[asset] - target[asset]
		drifts = append(drifts, Drift{
			Asset:   asset,
			Current: current[asset],
			Target:  target[asset],
			Drift:   d,
		})
		if math.Abs(d) > maxDrift {
			maxDrift = math.Abs(d)
		}
	}

	return &Plan{
		Drifts:           drifts,
		MaxDrift:         maxDrift,
		Threshold:        threshold,
		NeedsRebalancing: maxDrift-threshold > driftEpsilon,
		TotalValue:       totalValue,
		ComputedAt:       time.Now().UTC(),
	}, nil
}

// GenerateOrders produces the order list that nets the current allocation
// back to target: a SELL of drift×totalValue for every overweight asset and
// a BUY of |drift|×totalValue for every underweight one.
//
// Orders carry ascending priorities with all sells ahead of all buys (sells
// create the liquidity that funds the buys), ties broken by descending
// |drift|. When the two maps carry different total weights the raw drifts do
// not net to zero; the difference is folded into the largest order of the
// heavier side so total buys equal total sells to the cent. Any imbalance
// that survives (a one-sided order list, or a residual too large to absorb)
// is logged as a precision warning.
func (s *Service) GenerateOrders(current, target domain.AllocationMap, totalValue float64) ([]Order, error) {
	if err := s.validate(current, target, totalValue); err != nil {
		return nil, err
	}

	var sells, buys []Order
	for _, asset := range current.Assets(target) {
		drift := current[asset] - target[asset]
		switch {
		case drift > 0:
			sells = append(sells, Order{
				Asset:     asset,
				Action:    domain.OrderSideSell,
				AmountUSD: drift * totalValue,
			})
		case drift < 0:
			buys = append(buys, Order{
				Asset:     asset,
				Action:    domain.OrderSideBuy,
				AmountUSD: -drift * totalValue,
			})
		}
	}

	balanceResidual(sells, buys)

	byAmountDesc := func(orders []Order) func(i, j int) bool {
		return func(i, j int) bool {
			if orders[i].AmountUSD != orders[j].AmountUSD {
				return orders[i].AmountUSD > orders[j].AmountUSD
			}
			return orders[i].Asset < orders[j].Asset
		}
	}
	sort.Slice(sells, byAmountDesc(sells))
	sort.Slice(buys, byAmountDesc(buys))

	orders := append(sells, buys...)
	for i := range orders {
		orders[i].Priority = i + 1
	}

	s.checkConservation(orders)

	return orders, nil
}

// MinTradeAmount calculates the smallest order notional at which transaction
// costs stay below maxCostRatio, given a fixed fee plus a percentage fee.
//
// Solving (fixed + trade × percent) / trade = maxCostRatio for trade gives
// trade = fixed / (maxCostRatio - percent). Advisory only: GenerateOrders
// never filters by it, since dropping orders would break conservation.
func MinTradeAmount(transactionCostFixed, transactionCostPercent, maxCostRatio float64) float64 {
	denominator := maxCostRatio - transactionCostPercent
	if denominator <= 0 {
		// Variable cost alone exceeds the ratio; no trade size helps.
		return math.Inf(1)
	}
	return transactionCostFixed / denominator
}

func (s *Service) validate(current, target domain.AllocationMap, totalValue float64) error {
	if totalValue <= 0 {
		return domain.NewValidationError("total_value", "must be positive")
	}
	if err := current.Validate(); err != nil {
		return err
	}
	return target.Validate()
}

// balanceResidual nets out the imbalance left when the current and target
// weights sum to different totals. The residual is folded into the largest
// order of the heavier side; sub-cent floating-point noise is left alone so
// equal-amount orders keep their relative ordering.
func balanceResidual(sells, buys []Order) {
	if len(sells) == 0 || len(buys) == 0 {
		return
	}

	var sellTotal, buyTotal float64
	for _, o := range sells {
		sellTotal += o.AmountUSD
	}
	for _, o := range buys {
		buyTotal += o.AmountUSD
	}

	residual := buyTotal - sellTotal
	if math.Abs(residual) <= conservationTolerance {
		return
	}
	if residual > 0 {
		if i := largestOrder(buys); buys[i].AmountUSD > residual {
			buys[i].AmountUSD -= residual
		}
	} else {
		if i := largestOrder(sells); sells[i].AmountUSD > -residual {
			sells[i].AmountUSD += residual
		}
	}
}

func largestOrder(orders []Order) int {
	idx := 0
	for i, o := range orders {
		if o.AmountUSD > orders[idx].AmountUSD {
			idx = i
		}
	}
	return idx
}

func (s *Service) checkConservation(orders []Order) {
	var buyTotal, sellTotal float64
	for _, o := range orders {
		if o.Action == domain.OrderSideBuy {
			buyTotal += o.AmountUSD
		} else {
			sellTotal += o.AmountUSD
		}
	}

	if imbalance := math.Abs(buyTotal - sellTotal); imbalance > conservationTolerance {
		s.log.Warn().
			Float64("buy_total", buyTotal).
			Float64("sell_total", sellTotal).
			Float64("imbalance", imbalance).
			Msg("Rebalance orders do not conserve value within tolerance")
	}
}
