// Package services composes the engine components into a runnable
// automation cycle.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/avasilakis/helmsman/internal/config"
	"github.com/avasilakis/helmsman/internal/domain"
	"github.com/avasilakis/helmsman/internal/modules/dca"
	"github.com/avasilakis/helmsman/internal/modules/rebalancing"
	"github.com/avasilakis/helmsman/internal/modules/risk"
	"github.com/avasilakis/helmsman/internal/modules/stops"
	"github.com/avasilakis/helmsman/pkg/formulas"
)

// AutomationCycle runs one full pass of the engine: due DCA purchases,
// stop order price ticks, then a portfolio risk and drift review. All
// market access and order submission goes through the injected
// collaborators; the cycle itself only computes and persists state.
type AutomationCycle struct {
	engine    config.EngineConfig
	market    domain.MarketData
	portfolio domain.PortfolioSource
	execution domain.Execution

	dcaService  *dca.Service
	dcaRepo     *dca.Repository
	stopService *stops.Service
	stopRepo    *stops.Repository
	riskService *risk.Service
	rebalancer  *rebalancing.Service

	log zerolog.Logger
}

// NewAutomationCycle creates the cycle with all components injected.
func NewAutomationCycle(
	engine config.EngineConfig,
	market domain.MarketData,
	portfolio domain.PortfolioSource,
	execution domain.Execution,
	dcaService *dca.Service,
	dcaRepo *dca.Repository,
	stopService *stops.Service,
	stopRepo *stops.Repository,
	riskService *risk.Service,
	rebalancer *rebalancing.Service,
	log zerolog.Logger,
) *AutomationCycle {
	return &AutomationCycle{
		engine:      engine,
		market:      market,
		portfolio:   portfolio,
		execution:   execution,
		dcaService:  dcaService,
		dcaRepo:     dcaRepo,
		stopService: stopService,
		stopRepo:    stopRepo,
		riskService: riskService,
		rebalancer:  rebalancer,
		log:         log.With().Str("service", "automation_cycle").Logger(),
	}
}

// Run executes one cycle pass. Failures on individual schedules or orders
// are logged and skipped so one bad entity cannot stall the rest; a version
// conflict means another worker owns that entity this pass and the next
// scheduled cycle picks it up.
func (c *AutomationCycle) Run(ctx context.Context) error {
	started := time.Now()
	c.log.Info().Msg("Automation cycle started")

	if err := c.runDCAPurchases(ctx); err != nil {
		return fmt.Errorf("dca pass failed: %w", err)
	}
	if err := c.runStopTicks(ctx); err != nil {
		return fmt.Errorf("stop order pass failed: %w", err)
	}
	if err := c.runPortfolioReview(ctx); err != nil {
		return fmt.Errorf("portfolio review failed: %w", err)
	}

	c.log.Info().
		Dur("duration_ms", time.Since(started)).
		Msg("Automation cycle completed")
	return nil
}

func (c *AutomationCycle) runDCAPurchases(ctx context.Context) error {
	schedules, err := c.dcaRepo.GetActive()
	if err != nil {
		return fmt.Errorf("failed to load active schedules: %w", err)
	}

	now := time.Now().UTC()
	for _, schedule := range schedules {
		if err := ctx.Err(); err != nil {
			return err
		}

		price, err := c.market.CurrentPrice(schedule.Asset)
		if err != nil {
			c.log.Warn().Err(err).
				Str("schedule_id", schedule.ID).
				Str("asset", schedule.Asset).
				Msg("No price for schedule, skipping")
			continue
		}

		next, event, err := c.dcaService.ExecuteDuePurchases(schedule, now, price)
		if err != nil {
			c.log.Error().Err(err).
				Str("schedule_id", schedule.ID).
				Msg("Purchase execution failed")
			continue
		}
		if event == nil {
			continue
		}

		if _, err := c.dcaRepo.Save(next); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				c.log.Debug().
					Str("schedule_id", schedule.ID).
					Msg("Schedule claimed by another worker, skipping")
				continue
			}
			return fmt.Errorf("failed to save schedule %s: %w", schedule.ID, err)
		}

		if err := c.execution.SubmitPurchase(*event); err != nil {
			c.log.Error().Err(err).
				Str("schedule_id", schedule.ID).
				Msg("Failed to submit purchase")
			continue
		}

		c.log.Info().
			Str("schedule_id", schedule.ID).
			Str("asset", event.Asset).
			Float64("amount_usd", event.AmountUSD).
			Float64("units", event.UnitsAcquired).
			Int("period", event.PeriodIndex).
			Msg("DCA purchase executed")
	}

	return nil
}

func (c *AutomationCycle) runStopTicks(ctx context.Context) error {
	orders, err := c.stopRepo.GetActive()
	if err != nil {
		return fmt.Errorf("failed to load active stop orders: %w", err)
	}

	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return err
		}

		price, err := c.market.CurrentPrice(order.Asset)
		if err != nil {
			c.log.Warn().Err(err).
				Str("order_id", order.ID).
				Str("asset", order.Asset).
				Msg("No price for stop order, skipping")
			continue
		}

		next, changed, err := c.stopService.ApplyPriceTick(order, price)
		if err != nil {
			c.log.Error().Err(err).
				Str("order_id", order.ID).
				Msg("Price tick rejected")
			continue
		}
		if !changed {
			continue
		}

		if _, err := c.stopRepo.Save(next); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				c.log.Debug().
					Str("order_id", order.ID).
					Msg("Stop order claimed by another worker, skipping")
				continue
			}
			return fmt.Errorf("failed to save stop order %s: %w", order.ID, err)
		}

		if next.Status != stops.StatusTriggered {
			continue
		}

		if err := c.execution.SubmitStopExit(
			next.ID, next.Asset, string(next.TriggerReason), next.Amount, *next.TriggerPrice,
		); err != nil {
			c.log.Error().Err(err).
				Str("order_id", next.ID).
				Msg("Failed to submit stop exit")
		}
	}

	return nil
}

func (c *AutomationCycle) runPortfolioReview(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	positions, totalValue, err := c.snapshotPositions()
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		c.log.Debug().Msg("Empty portfolio, skipping review")
		return nil
	}

	assessment, err := c.riskService.AssessPortfolio(positions)
	if err != nil {
		return fmt.Errorf("risk assessment failed: %w", err)
	}

	c.log.Info().
		Float64("risk_score", assessment.RiskScore).
		Str("risk_level", string(assessment.RiskLevel)).
		Float64("volatility", assessment.Volatility).
		Float64("var_95", assessment.ValueAtRisk).
		Float64("diversification", assessment.DiversificationScore).
		Strs("recommendations", assessment.Recommendations).
		Msg("Portfolio risk assessed")

	if sharpe, drawdown := c.realizedPerformance(positions, totalValue); sharpe != nil || drawdown != nil {
		ev := c.log.Info()
		if sharpe != nil {
			ev = ev.Float64("sharpe", *sharpe)
		}
		if drawdown != nil {
			ev = ev.Float64("max_drawdown", *drawdown)
		}
		ev.Msg("Realized portfolio performance")
	}

	target, err := c.portfolio.TargetAllocation()
	if err != nil {
		return fmt.Errorf("failed to load target allocation: %w", err)
	}
	if len(target) == 0 {
		c.log.Debug().Msg("No target allocation configured, skipping rebalance check")
		return nil
	}

	current := make(domain.AllocationMap, len(positions))
	for _, p := range positions {
		current[p.Asset] = p.Value / totalValue
	}

	plan, err := c.rebalancer.Analyze(current, target, totalValue, c.engine.RebalanceThreshold)
	if err != nil {
		return fmt.Errorf("drift analysis failed: %w", err)
	}
	if !plan.NeedsRebalancing {
		c.log.Debug().
			Float64("max_drift", plan.MaxDrift).
			Msg("Portfolio within drift tolerance")
		return nil
	}

	orders, err := c.rebalancer.GenerateOrders(current, target, totalValue)
	if err != nil {
		return fmt.Errorf("order generation failed: %w", err)
	}

	for _, order := range orders {
		if err := c.execution.SubmitRebalanceOrder(order.Asset, order.Action, order.AmountUSD, order.Priority); err != nil {
			c.log.Error().Err(err).
				Str("asset", order.Asset).
				Msg("Failed to submit rebalance order")
			continue
		}
		c.log.Info().
			Str("asset", order.Asset).
			Str("action", string(order.Action)).
			Float64("amount_usd", order.AmountUSD).
			Int("priority", order.Priority).
			Msg("Rebalance order submitted")
	}

	return nil
}

// snapshotPositions prices the current holdings and fills in volatility
// estimates from historical closes when the source reports none.
func (c *AutomationCycle) snapshotPositions() ([]domain.Position, float64, error) {
	holdings, err := c.portfolio.Holdings()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load holdings: %w", err)
	}

	var positions []domain.Position
	var totalValue float64
	for _, h := range holdings {
		if h.Units <= 0 {
			continue
		}

		price, err := c.market.CurrentPrice(h.Asset)
		if err != nil {
			c.log.Warn().Err(err).Str("asset", h.Asset).Msg("No price for holding, skipping")
			continue
		}

		vol := h.Volatility
		if vol <= 0 {
			vol = c.estimateVolatility(h.Asset)
		}

		value := h.Units * price
		positions = append(positions, domain.Position{
			Asset:      h.Asset,
			Value:      value,
			Volatility: vol,
			Locked:     h.Locked,
		})
		totalValue += value
	}

	return positions, totalValue, nil
}

// realizedPerformance reconstructs a value-weighted portfolio index from each
// position's close history and derives the annualized Sharpe ratio and the
// maximum drawdown over the window. Both are nil when no position carries
// enough history.
func (c *AutomationCycle) realizedPerformance(positions []domain.Position, totalValue float64) (sharpe, drawdown *float64) {
	if totalValue <= 0 {
		return nil, nil
	}

	window := c.engine.VolatilityEstimateLen
	var series [][]float64
	var weights []float64
	minLen := 0
	for _, p := range positions {
		closes, err := c.market.HistoricalCloses(p.Asset, window+1)
		if err != nil {
			continue
		}
		returns := formulas.CalculateReturns(closes)
		if len(returns) < 2 {
			continue
		}
		series = append(series, returns)
		weights = append(weights, p.Value/totalValue)
		if minLen == 0 || len(returns) < minLen {
			minLen = len(returns)
		}
	}
	if minLen < 2 {
		return nil, nil
	}

	// Align every series on its most recent minLen returns.
	portfolioReturns := make([]float64, minLen)
	for i, returns := range series {
		tail := returns[len(returns)-minLen:]
		for j, r := range tail {
			portfolioReturns[j] += weights[i] * r
		}
	}

	index := make([]float64, minLen+1)
	index[0] = 1.0
	for i, r := range portfolioReturns {
		index[i+1] = index[i] * (1 + r)
	}

	return formulas.CalculateSharpeRatio(portfolioReturns, c.engine.RiskFreeRate, formulas.TradingDaysPerYear),
		formulas.MaxDrawdown(index)
}

func (c *AutomationCycle) estimateVolatility(asset string) float64 {
	window := c.engine.VolatilityEstimateLen
	closes, err := c.market.HistoricalCloses(asset, window+1)
	if err != nil {
		c.log.Debug().Err(err).Str("asset", asset).Msg("No close history for volatility estimate")
		return 0
	}

	estimate := formulas.EstimateVolatility(closes, window)
	if estimate == nil {
		return 0
	}
	return *estimate
}
