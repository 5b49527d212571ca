package dca

import (
	"testing"
	"time"

	"github.com/avasilakis/helmsman/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return NewService(zerolog.Nop())
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func weeklySchedule(t *testing.T, periods int) Schedule {
	t.Helper()
	s, err := newTestService().CreateSchedule(CreateParams{
		Asset:           "BTC",
		AmountPerPeriod: 100,
		Frequency:       FrequencyWeekly,
		DurationPeriods: periods,
		StartDate:       date(2026, time.January, 5),
	})
	require.NoError(t, err)
	return s
}

func TestCreateSchedule(t *testing.T) {
	s := weeklySchedule(t, 52)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, 0, s.PurchasesCompleted)
	assert.Equal(t, 0.0, s.TotalInvested)
	assert.Equal(t, s.StartDate, s.NextPurchaseDate)
	assert.Equal(t, int64(1), s.Version)
}

func TestCreateSchedule_CallerSuppliedID(t *testing.T) {
	s, err := newTestService().CreateSchedule(CreateParams{
		ID:              "dca-custom-1",
		Asset:           "ETH",
		AmountPerPeriod: 50,
		Frequency:       FrequencyDaily,
		DurationPeriods: 10,
		StartDate:       date(2026, time.March, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, "dca-custom-1", s.ID)
}

func TestCreateSchedule_Validation(t *testing.T) {
	svc := newTestService()

	tests := []struct {
		name   string
		params CreateParams
	}{
		{"missing asset", CreateParams{AmountPerPeriod: 100, Frequency: FrequencyWeekly, DurationPeriods: 10, StartDate: date(2026, 1, 1)}},
		{"zero amount", CreateParams{Asset: "BTC", Frequency: FrequencyWeekly, DurationPeriods: 10, StartDate: date(2026, 1, 1)}},
		{"negative amount", CreateParams{Asset: "BTC", AmountPerPeriod: -5, Frequency: FrequencyWeekly, DurationPeriods: 10, StartDate: date(2026, 1, 1)}},
		{"zero duration", CreateParams{Asset: "BTC", AmountPerPeriod: 100, Frequency: FrequencyWeekly, StartDate: date(2026, 1, 1)}},
		{"bad frequency", CreateParams{Asset: "BTC", AmountPerPeriod: 100, Frequency: "hourly", DurationPeriods: 10, StartDate: date(2026, 1, 1)}},
		{"zero start date", CreateParams{Asset: "BTC", AmountPerPeriod: 100, Frequency: FrequencyWeekly, DurationPeriods: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSchedule(tt.params)
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err))
		})
	}
}

func TestExecuteDuePurchases(t *testing.T) {
	svc := newTestService()
	s := weeklySchedule(t, 52)

	s, event, err := svc.ExecuteDuePurchases(s, date(2026, time.January, 5), 50000)
	require.NoError(t, err)
	require.NotNil(t, event)

	assert.Equal(t, 100.0, event.AmountUSD)
	assert.InDelta(t, 0.002, event.UnitsAcquired, 0.000001)
	assert.Equal(t, 1, event.PeriodIndex)

	assert.Equal(t, 1, s.PurchasesCompleted)
	assert.Equal(t, 100.0, s.TotalInvested)
	assert.Equal(t, date(2026, time.January, 12), s.NextPurchaseDate)
	assert.Equal(t, StatusActive, s.Status)
	require.Len(t, s.Events, 1)
}

func TestExecuteDuePurchases_NotDueIsNoOp(t *testing.T) {
	svc := newTestService()
	s := weeklySchedule(t, 52)

	next, event, err := svc.ExecuteDuePurchases(s, date(2026, time.January, 4), 50000)
	require.NoError(t, err)
	assert.Nil(t, event)
	assert.Equal(t, s, next)
}

func TestExecuteDuePurchases_AtMostOncePerPeriod(t *testing.T) {
	svc := newTestService()
	s := weeklySchedule(t, 52)
	day := date(2026, time.January, 5)

	s, event, err := svc.ExecuteDuePurchases(s, day, 50000)
	require.NoError(t, err)
	require.NotNil(t, event)

	afterFirst := s

	// Same day, repeated calls: all no-ops.
	for i := 0; i < 3; i++ {
		var e *domain.PurchaseEvent
		s, e, err = svc.ExecuteDuePurchases(s, day, 51000)
		require.NoError(t, err)
		assert.Nil(t, e)
	}

	assert.Equal(t, afterFirst.PurchasesCompleted, s.PurchasesCompleted)
	assert.Equal(t, afterFirst.TotalInvested, s.TotalInvested)
	assert.Equal(t, afterFirst.TotalUnitsAcquired, s.TotalUnitsAcquired)
}

func TestExecuteDuePurchases_BackloggedScheduleSkipsMissedPeriods(t *testing.T) {
	svc := newTestService()
	s := weeklySchedule(t, 52)

	// Three weeks behind: Jan 5, 12, 19 all missed, the call arrives Jan 26.
	day := date(2026, time.January, 26)

	s, event, err := svc.ExecuteDuePurchases(s, day, 50000)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, 1, s.PurchasesCompleted)
	assert.Equal(t, 100.0, s.TotalInvested)
	assert.Equal(t, date(2026, time.February, 2), s.NextPurchaseDate)

	// The missed periods are skipped, not replayed: repeated calls with the
	// same date stay no-ops.
	for i := 0; i < 3; i++ {
		var e *domain.PurchaseEvent
		s, e, err = svc.ExecuteDuePurchases(s, day, 50000)
		require.NoError(t, err)
		assert.Nil(t, e)
	}
	assert.Equal(t, 1, s.PurchasesCompleted)
	assert.Equal(t, 100.0, s.TotalInvested)
}

func TestExecuteDuePurchases_CompletesAfterDuration(t *testing.T) {
	svc := newTestService()
	s := weeklySchedule(t, 2)

	s, _, err := svc.ExecuteDuePurchases(s, date(2026, time.January, 5), 50000)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, s.Status)

	s, event, err := svc.ExecuteDuePurchases(s, date(2026, time.January, 12), 40000)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, StatusCompleted, s.Status)
	assert.Equal(t, 2, s.PurchasesCompleted)

	// Completed schedules never purchase again, however late the call.
	s, event, err = svc.ExecuteDuePurchases(s, date(2027, time.January, 1), 30000)
	require.NoError(t, err)
	assert.Nil(t, event)
	assert.Equal(t, 2, s.PurchasesCompleted)
}

func TestExecuteDuePurchases_TwelveWeeks(t *testing.T) {
	svc := newTestService()
	s := weeklySchedule(t, 52)

	prices := []float64{50000, 48000, 52000, 47000, 51000, 49500, 53000, 50500, 46000, 54000, 52500, 49000}
	day := date(2026, time.January, 5)

	var units float64
	for _, price := range prices {
		var event *domain.PurchaseEvent
		var err error
		s, event, err = svc.ExecuteDuePurchases(s, day, price)
		require.NoError(t, err)
		require.NotNil(t, event)
		units += 100 / price
		day = day.AddDate(0, 0, 7)
	}

	assert.Equal(t, 12, s.PurchasesCompleted)
	assert.Equal(t, 1200.0, s.TotalInvested)
	assert.InDelta(t, units, s.TotalUnitsAcquired, 1e-9)
	assert.Equal(t, StatusActive, s.Status)
}

func TestExecuteDuePurchases_InvalidPriceAlwaysErrors(t *testing.T) {
	svc := newTestService()
	s := weeklySchedule(t, 52)

	// Bad price errors even when the schedule would not be due.
	_, _, err := svc.ExecuteDuePurchases(s, date(2025, time.December, 1), 0)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	_, _, err = svc.ExecuteDuePurchases(s, date(2026, time.January, 5), -10)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestFrequencyAdvance_Monthly(t *testing.T) {
	// Calendar-month arithmetic with Go normalization.
	assert.Equal(t, date(2026, time.February, 15), FrequencyMonthly.Advance(date(2026, time.January, 15)))
	assert.Equal(t, date(2026, time.March, 3), FrequencyMonthly.Advance(date(2026, time.January, 31)))
}

func TestCancelSchedule(t *testing.T) {
	svc := newTestService()
	s := weeklySchedule(t, 52)

	s, ok := svc.CancelSchedule(s)
	assert.True(t, ok)
	assert.Equal(t, StatusCancelled, s.Status)

	// Terminal states are never reactivated or re-cancelled.
	s2, ok := svc.CancelSchedule(s)
	assert.False(t, ok)
	assert.Equal(t, s, s2)

	// Cancelled schedules do not purchase.
	_, event, err := svc.ExecuteDuePurchases(s, date(2026, time.June, 1), 50000)
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestPerformanceReport(t *testing.T) {
	svc := newTestService()
	s := weeklySchedule(t, 52)

	s, _, err := svc.ExecuteDuePurchases(s, date(2026, time.January, 5), 50000)
	require.NoError(t, err)
	s, _, err = svc.ExecuteDuePurchases(s, date(2026, time.January, 12), 40000)
	require.NoError(t, err)

	report, err := svc.PerformanceReport(s, 45000, 50000)
	require.NoError(t, err)

	// Units: 100/50000 + 100/40000 = 0.0045
	require.NotNil(t, report.AverageCost)
	assert.InDelta(t, 200.0/0.0045, *report.AverageCost, 0.01)
	assert.InDelta(t, 0.0045*45000, report.CurrentValue, 0.0001)
	assert.InDelta(t, report.CurrentValue-200, report.ProfitLoss, 0.0001)

	// Lump sum: 200/50000 units = 0.004 → 180 at the current price.
	require.NotNil(t, report.LumpSumValue)
	assert.InDelta(t, 180, *report.LumpSumValue, 0.0001)
	require.NotNil(t, report.DCAAdvantage)
	assert.InDelta(t, report.CurrentValue-180, *report.DCAAdvantage, 0.0001)
}

func TestPerformanceReport_NoPurchasesYet(t *testing.T) {
	svc := newTestService()
	s := weeklySchedule(t, 52)

	report, err := svc.PerformanceReport(s, 45000, 0)
	require.NoError(t, err)

	assert.Nil(t, report.AverageCost)
	assert.Equal(t, 0.0, report.CurrentValue)
	assert.Equal(t, 0.0, report.ReturnPercent)
	assert.Nil(t, report.LumpSumValue)
}

func TestProjectCompletion(t *testing.T) {
	svc := newTestService()
	s := weeklySchedule(t, 4)

	s, _, err := svc.ExecuteDuePurchases(s, date(2026, time.January, 5), 50000)
	require.NoError(t, err)

	// Flat market: the projection is current value plus remaining deposits.
	p, err := svc.ProjectCompletion(s, 50000, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, p.RemainingPeriods)
	assert.Equal(t, 300.0, p.RemainingContributions)
	assert.InDelta(t, 400.0, p.ProjectedValue, 0.0001)
	assert.InDelta(t, 0.0, p.ProjectedProfit, 0.0001)

	// 52% annual is 1% per weekly period. Held units compound three periods,
	// each remaining deposit from its own purchase date onward:
	// 100*1.01^3 + 100*1.01^2 + 100*1.01 + 100 = 406.0401
	p, err = svc.ProjectCompletion(s, 50000, 0.52)
	require.NoError(t, err)
	assert.InDelta(t, 406.0401, p.ProjectedValue, 0.0001)
	assert.InDelta(t, 6.0401, p.ProjectedProfit, 0.0001)
}

func TestProjectCompletion_FinishedSchedule(t *testing.T) {
	svc := newTestService()
	s := weeklySchedule(t, 1)

	s, _, err := svc.ExecuteDuePurchases(s, date(2026, time.January, 5), 50000)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, s.Status)

	p, err := svc.ProjectCompletion(s, 60000, 0.10)
	require.NoError(t, err)
	assert.Equal(t, 0, p.RemainingPeriods)
	assert.InDelta(t, 120.0, p.ProjectedValue, 0.0001)
	assert.InDelta(t, 20.0, p.ProjectedProfit, 0.0001)

	_, err = svc.ProjectCompletion(s, 0, 0.10)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}
