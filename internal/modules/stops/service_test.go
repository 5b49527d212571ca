package stops

import (
	"testing"

	"github.com/avasilakis/helmsman/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return NewService(zerolog.Nop())
}

func ptr(f float64) *float64 { return &f }

func trailingOrder(t *testing.T, percent, price float64) Order {
	t.Helper()
	o, err := newTestService().CreateOrder(CreateParams{
		Asset:           "BTC",
		Amount:          0.5,
		TrailingEnabled: true,
		TrailingPercent: ptr(percent),
		CurrentPrice:    price,
	})
	require.NoError(t, err)
	return o
}

func TestCreateOrder_Trailing(t *testing.T) {
	o := trailingOrder(t, 5, 52000)

	assert.Equal(t, StatusActive, o.Status)
	require.NotNil(t, o.TrailingStopPrice)
	assert.InDelta(t, 49400, *o.TrailingStopPrice, 0.0001)
	assert.Equal(t, int64(1), o.Version)
}

func TestCreateOrder_Validation(t *testing.T) {
	svc := newTestService()

	tests := []struct {
		name   string
		params CreateParams
	}{
		{"missing asset", CreateParams{Amount: 1, StopLossPrice: ptr(100)}},
		{"zero amount", CreateParams{Asset: "BTC", StopLossPrice: ptr(100)}},
		{"no exit condition", CreateParams{Asset: "BTC", Amount: 1}},
		{"zero stop loss", CreateParams{Asset: "BTC", Amount: 1, StopLossPrice: ptr(0)}},
		{"zero take profit", CreateParams{Asset: "BTC", Amount: 1, TakeProfitPrice: ptr(0)}},
		{"trailing without percent", CreateParams{Asset: "BTC", Amount: 1, TrailingEnabled: true, CurrentPrice: 100}},
		{"trailing percent at hundred", CreateParams{Asset: "BTC", Amount: 1, TrailingEnabled: true, TrailingPercent: ptr(100), CurrentPrice: 100}},
		{"trailing without price", CreateParams{Asset: "BTC", Amount: 1, TrailingEnabled: true, TrailingPercent: ptr(5)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrder(tt.params)
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err))
		})
	}
}

func TestApplyPriceTick_TrailingRatchet(t *testing.T) {
	svc := newTestService()
	o := trailingOrder(t, 5, 52000)

	// Price rises: the stop follows it up.
	o, changed, err := svc.ApplyPriceTick(o, 55000)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusActive, o.Status)
	assert.InDelta(t, 52250, *o.TrailingStopPrice, 0.0001)

	// Price falls back below the ratcheted stop: the stop holds and triggers.
	o, changed, err = svc.ApplyPriceTick(o, 50000)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusTriggered, o.Status)
	assert.InDelta(t, 52250, *o.TrailingStopPrice, 0.0001, "stop must not move down")
	assert.Equal(t, ReasonTrailingStop, o.TriggerReason)
	require.NotNil(t, o.TriggerPrice)
	assert.Equal(t, 50000.0, *o.TriggerPrice)
}

func TestApplyPriceTick_TrailingStopIsMonotonic(t *testing.T) {
	svc := newTestService()
	o := trailingOrder(t, 10, 100)

	prices := []float64{105, 98, 110, 120, 111, 108.5, 130, 125}
	last := *o.TrailingStopPrice
	for _, p := range prices {
		o, _, _ = svc.ApplyPriceTick(o, p)
		if o.Status != StatusActive {
			break
		}
		require.NotNil(t, o.TrailingStopPrice)
		assert.GreaterOrEqual(t, *o.TrailingStopPrice, last,
			"trailing stop decreased after tick to %.2f", p)
		last = *o.TrailingStopPrice
	}
}

func TestApplyPriceTick_StopLoss(t *testing.T) {
	svc := newTestService()
	o, err := svc.CreateOrder(CreateParams{
		Asset:         "ETH",
		Amount:        10,
		StopLossPrice: ptr(3000),
	})
	require.NoError(t, err)

	o, changed, err := svc.ApplyPriceTick(o, 3100)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, StatusActive, o.Status)

	o, changed, err = svc.ApplyPriceTick(o, 3000)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusTriggered, o.Status)
	assert.Equal(t, ReasonStopLoss, o.TriggerReason)
}

func TestApplyPriceTick_TakeProfit(t *testing.T) {
	svc := newTestService()
	o, err := svc.CreateOrder(CreateParams{
		Asset:           "ETH",
		Amount:          10,
		TakeProfitPrice: ptr(4000),
	})
	require.NoError(t, err)

	o, changed, err := svc.ApplyPriceTick(o, 4000)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusTriggered, o.Status)
	assert.Equal(t, ReasonTakeProfit, o.TriggerReason)
}

func TestApplyPriceTick_TrailingTakesPrecedence(t *testing.T) {
	svc := newTestService()

	// Both a trailing stop and a plain stop loss would fire at 90;
	// the trailing reason wins.
	o, err := svc.CreateOrder(CreateParams{
		Asset:           "SOL",
		Amount:          100,
		StopLossPrice:   ptr(95),
		TrailingEnabled: true,
		TrailingPercent: ptr(5),
		CurrentPrice:    100,
	})
	require.NoError(t, err)

	o, changed, err := svc.ApplyPriceTick(o, 90)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusTriggered, o.Status)
	assert.Equal(t, ReasonTrailingStop, o.TriggerReason)
}

func TestApplyPriceTick_TerminalStatesAreNoOps(t *testing.T) {
	svc := newTestService()
	o := trailingOrder(t, 5, 100)

	o, _, _ = svc.ApplyPriceTick(o, 80) // Triggers
	require.Equal(t, StatusTriggered, o.Status)

	// A triggered order never reactivates, whatever the price does.
	next, changed, err := svc.ApplyPriceTick(o, 200)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, o, next)

	cancelled, err := svc.CreateOrder(CreateParams{Asset: "BTC", Amount: 1, StopLossPrice: ptr(100)})
	require.NoError(t, err)
	cancelled, ok := svc.CancelOrder(cancelled)
	require.True(t, ok)

	next, changed, err = svc.ApplyPriceTick(cancelled, 50)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, StatusCancelled, next.Status)
}

func TestApplyPriceTick_InvalidPriceAlwaysErrors(t *testing.T) {
	svc := newTestService()
	o := trailingOrder(t, 5, 100)

	for _, price := range []float64{0, -1} {
		next, changed, err := svc.ApplyPriceTick(o, price)
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
		assert.False(t, changed)
		assert.Equal(t, o, next)
	}

	// Bad input is rejected even when the order could not advance anyway.
	cancelled, ok := svc.CancelOrder(o)
	require.True(t, ok)
	_, _, err := svc.ApplyPriceTick(cancelled, 0)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestCancelOrder(t *testing.T) {
	svc := newTestService()
	o := trailingOrder(t, 5, 100)

	o, ok := svc.CancelOrder(o)
	assert.True(t, ok)
	assert.Equal(t, StatusCancelled, o.Status)

	// Cancel is a no-op from any terminal state.
	o2, ok := svc.CancelOrder(o)
	assert.False(t, ok)
	assert.Equal(t, o, o2)

	triggered := trailingOrder(t, 5, 100)
	triggered, _, _ = svc.ApplyPriceTick(triggered, 80)
	require.Equal(t, StatusTriggered, triggered.Status)
	_, ok = svc.CancelOrder(triggered)
	assert.False(t, ok)
}
