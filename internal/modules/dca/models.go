package dca

import (
	"time"

	"github.com/avasilakis/helmsman/internal/domain"
)

// Frequency is the purchase cadence of a schedule.
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}

// Advance returns t moved forward by one period. Monthly uses calendar-month
// arithmetic via AddDate, with Go's normalization rules (Jan 31 + 1 month
// lands in early March).
func (f Frequency) Advance(t time.Time) time.Time {
	switch f {
	case FrequencyDaily:
		return t.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7)
	case FrequencyBiweekly:
		return t.AddDate(0, 0, 14)
	case FrequencyMonthly:
		return t.AddDate(0, 1, 0)
	}
	return t
}

// PeriodsPerYear returns how many purchase periods fit in a year, used to
// convert an annual growth rate to the schedule's cadence. Zero for an
// unknown frequency.
func (f Frequency) PeriodsPerYear() int {
	switch f {
	case FrequencyDaily:
		return 365
	case FrequencyWeekly:
		return 52
	case FrequencyBiweekly:
		return 26
	case FrequencyMonthly:
		return 12
	}
	return 0
}

// Status is the lifecycle state of a schedule.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further purchases can occur.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Schedule is a recurring purchase plan. Operations on it follow the
// functional update pattern: they take the current value and return the next
// one, leaving persistence to the repository.
type Schedule struct {
	ID              string    `json:"id"`
	Asset           string    `json:"asset"`
	AmountPerPeriod float64   `json:"amount_per_period"` // USD per purchase
	Frequency       Frequency `json:"frequency"`
	StartDate       time.Time `json:"start_date"`
	DurationPeriods int       `json:"duration_periods"`
	Status          Status    `json:"status"`

	// Accumulated state, mutated only by ExecuteDuePurchases.
	PurchasesCompleted int       `json:"purchases_completed"`
	TotalInvested      float64   `json:"total_invested"`
	TotalUnitsAcquired float64   `json:"total_units_acquired"`
	NextPurchaseDate   time.Time `json:"next_purchase_date"`

	Events []domain.PurchaseEvent `json:"events,omitempty"` // Purchase history, oldest first

	Version   int64     `json:"version"` // Optimistic concurrency token
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateParams are the inputs to CreateSchedule.
type CreateParams struct {
	ID              string // Optional; a UUID is generated when empty
	Asset           string
	AmountPerPeriod float64
	Frequency       Frequency
	DurationPeriods int
	StartDate       time.Time
}

// Report compares a schedule's realized performance against a lump-sum
// counterfactual at the current price.
type Report struct {
	ScheduleID         string   `json:"schedule_id"`
	PurchasesCompleted int      `json:"purchases_completed"`
	TotalInvested      float64  `json:"total_invested"`
	TotalUnitsAcquired float64  `json:"total_units_acquired"`
	AverageCost        *float64 `json:"average_cost"` // nil before the first purchase
	CurrentValue       float64  `json:"current_value"`
	ProfitLoss         float64  `json:"profit_loss"`
	ReturnPercent      float64  `json:"return_percent"`

	// Lump-sum comparison; only populated when a start price was supplied.
	LumpSumUnits *float64 `json:"lump_sum_units,omitempty"`
	LumpSumValue *float64 `json:"lump_sum_value,omitempty"`
	DCAAdvantage *float64 `json:"dca_advantage,omitempty"`
}

// Projection estimates where a schedule lands at its final purchase under an
// assumed annual growth rate.
type Projection struct {
	ScheduleID             string  `json:"schedule_id"`
	RemainingPeriods       int     `json:"remaining_periods"`
	RemainingContributions float64 `json:"remaining_contributions"`
	ProjectedValue         float64 `json:"projected_value"`
	ProjectedProfit        float64 `json:"projected_profit"`
}
