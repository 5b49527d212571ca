// Package dca manages recurring, date-driven purchase schedules and tracks
// realized average cost against a lump-sum counterfactual.
package dca

import (
	"time"

	"github.com/avasilakis/helmsman/internal/domain"
	"github.com/avasilakis/helmsman/pkg/formulas"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service implements the schedule lifecycle. It holds no schedule state of
// its own: every operation takes the current schedule value and returns the
// next one, leaving storage to the repository and callers.
type Service struct {
	log zerolog.Logger
}

// NewService creates a new DCA service.
func NewService(log zerolog.Logger) *Service {
	return &Service{
		log: log.With().Str("service", "dca").Logger(),
	}
}

// CreateSchedule validates the parameters and returns a new active schedule
// with zeroed counters and the first purchase due at the start date.
func (s *Service) CreateSchedule(params CreateParams) (Schedule, error) {
	if params.Asset == "" {
		return Schedule{}, domain.NewValidationError("asset", "required")
	}
	if params.AmountPerPeriod <= 0 {
		return Schedule{}, domain.NewValidationError("amount_per_period", "must be positive")
	}
	if params.DurationPeriods <= 0 {
		return Schedule{}, domain.NewValidationError("duration_periods", "must be positive")
	}
	if !params.Frequency.Valid() {
		return Schedule{}, domain.NewValidationError("frequency", "must be one of daily, weekly, biweekly, monthly")
	}
	if params.StartDate.IsZero() {
		return Schedule{}, domain.NewValidationError("start_date", "required")
	}

	id := params.ID
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now().UTC()
	schedule := Schedule{
		ID:               id,
		Asset:            params.Asset,
		AmountPerPeriod:  params.AmountPerPeriod,
		Frequency:        params.Frequency,
		StartDate:        params.StartDate.UTC(),
		DurationPeriods:  params.DurationPeriods,
		Status:           StatusActive,
		NextPurchaseDate: params.StartDate.UTC(),
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	s.log.Info().
		Str("schedule_id", schedule.ID).
		Str("asset", schedule.Asset).
		Str("frequency", string(schedule.Frequency)).
		Int("duration_periods", schedule.DurationPeriods).
		Msg("DCA schedule created")

	return schedule, nil
}

// ExecuteDuePurchases executes at most one purchase against the schedule.
//
// A call is a no-op (nil event, unchanged schedule) when the schedule is not
// active or the current date is before the next purchase date. A successful
// execution advances NextPurchaseDate one period at a time until it lies
// after the current date, so a schedule that fell several periods behind
// skips the missed periods instead of replaying them. Repeated calls with
// the same date therefore execute exactly once - this is the
// at-most-once-per-period contract.
//
// A non-positive price is always a validation error, even when the call
// would otherwise be a no-op: bad input is never silently ignored.
func (s *Service) ExecuteDuePurchases(schedule Schedule, currentDate time.Time, currentPrice float64) (Schedule, *domain.PurchaseEvent, error) {
	if currentPrice <= 0 {
		return schedule, nil, domain.NewValidationError("current_price", "must be positive")
	}

	if schedule.Status != StatusActive || currentDate.Before(schedule.NextPurchaseDate) {
		return schedule, nil, nil
	}

	units := schedule.AmountPerPeriod / currentPrice
	event := domain.PurchaseEvent{
		ScheduleID:    schedule.ID,
		Asset:         schedule.Asset,
		AmountUSD:     schedule.AmountPerPeriod,
		UnitsAcquired: units,
		Price:         currentPrice,
		PeriodIndex:   schedule.PurchasesCompleted + 1,
		ExecutedAt:    currentDate.Unix(),
	}

	schedule.PurchasesCompleted++
	schedule.TotalInvested += schedule.AmountPerPeriod
	schedule.TotalUnitsAcquired += units
	for !schedule.NextPurchaseDate.After(currentDate) {
		schedule.NextPurchaseDate = schedule.Frequency.Advance(schedule.NextPurchaseDate)
	}
	schedule.Events = append(schedule.Events, event)
	schedule.UpdatedAt = time.Now().UTC()

	if schedule.PurchasesCompleted >= schedule.DurationPeriods {
		schedule.Status = StatusCompleted
		s.log.Info().
			Str("schedule_id", schedule.ID).
			Int("purchases", schedule.PurchasesCompleted).
			Msg("DCA schedule completed")
	}

	return schedule, &event, nil
}

// CancelSchedule moves an active schedule to cancelled. Cancelling a
// schedule already in a terminal state is a no-op: the unchanged schedule is
// returned with false.
func (s *Service) CancelSchedule(schedule Schedule) (Schedule, bool) {
	if schedule.Status.Terminal() {
		return schedule, false
	}

	schedule.Status = StatusCancelled
	schedule.UpdatedAt = time.Now().UTC()

	s.log.Info().Str("schedule_id", schedule.ID).Msg("DCA schedule cancelled")
	return schedule, true
}

// PerformanceReport summarizes realized performance at the current price.
//
// AverageCost is nil before the first purchase (no division by zero). The
// lump-sum counterfactual - what the invested total would be worth had it
// all been deployed at startPrice - is included only when startPrice is
// positive; the caller supplies it from the market data collaborator.
func (s *Service) PerformanceReport(schedule Schedule, currentPrice, startPrice float64) (*Report, error) {
	if currentPrice <= 0 {
		return nil, domain.NewValidationError("current_price", "must be positive")
	}

	report := &Report{
		ScheduleID:         schedule.ID,
		PurchasesCompleted: schedule.PurchasesCompleted,
		TotalInvested:      schedule.TotalInvested,
		TotalUnitsAcquired: schedule.TotalUnitsAcquired,
		CurrentValue:       schedule.TotalUnitsAcquired * currentPrice,
	}

	if schedule.TotalUnitsAcquired > 0 {
		avg := schedule.TotalInvested / schedule.TotalUnitsAcquired
		report.AverageCost = &avg
	}

	report.ProfitLoss = report.CurrentValue - schedule.TotalInvested
	if schedule.TotalInvested > 0 {
		report.ReturnPercent = report.ProfitLoss / schedule.TotalInvested * 100
	}

	if startPrice > 0 && schedule.TotalInvested > 0 {
		lumpSumUnits := schedule.TotalInvested / startPrice
		lumpSumValue := lumpSumUnits * currentPrice
		advantage := report.CurrentValue - lumpSumValue
		report.LumpSumUnits = &lumpSumUnits
		report.LumpSumValue = &lumpSumValue
		report.DCAAdvantage = &advantage
	}

	return report, nil
}

// ProjectCompletion estimates the schedule's value at its final purchase,
// assuming the asset compounds at annualReturn (converted to the schedule's
// cadence). Units held so far grow for every remaining period; each future
// contribution compounds from its own purchase date onward. A finished
// schedule projects its current value unchanged.
func (s *Service) ProjectCompletion(schedule Schedule, currentPrice, annualReturn float64) (*Projection, error) {
	if currentPrice <= 0 {
		return nil, domain.NewValidationError("current_price", "must be positive")
	}

	remaining := schedule.DurationPeriods - schedule.PurchasesCompleted
	if remaining < 0 || schedule.Status.Terminal() {
		remaining = 0
	}

	ratePerPeriod := 0.0
	if ppy := schedule.Frequency.PeriodsPerYear(); ppy > 0 {
		ratePerPeriod = annualReturn / float64(ppy)
	}

	projected := formulas.CompoundGrowth(schedule.TotalUnitsAcquired*currentPrice, ratePerPeriod, remaining)
	for i := 1; i <= remaining; i++ {
		projected += formulas.CompoundGrowth(schedule.AmountPerPeriod, ratePerPeriod, remaining-i)
	}

	contributions := float64(remaining) * schedule.AmountPerPeriod
	return &Projection{
		ScheduleID:             schedule.ID,
		RemainingPeriods:       remaining,
		RemainingContributions: contributions,
		ProjectedValue:         projected,
		ProjectedProfit:        projected - schedule.TotalInvested - contributions,
	}, nil
}
