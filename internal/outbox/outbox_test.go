package outbox

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/avasilakis/helmsman/internal/database"
	"github.com/avasilakis/helmsman/internal/domain"
)

func newTestOutbox(t *testing.T) *Outbox {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))
	return New(db, zerolog.Nop())
}

func TestOutbox_RecordsIntentsInOrder(t *testing.T) {
	o := newTestOutbox(t)

	require.NoError(t, o.SubmitRebalanceOrder("BTC", domain.OrderSideSell, 5000, 1))
	require.NoError(t, o.SubmitRebalanceOrder("USDT", domain.OrderSideBuy, 5000, 2))
	require.NoError(t, o.SubmitPurchase(domain.PurchaseEvent{
		ScheduleID: "sched-1", Asset: "ETH", AmountUSD: 100, Price: 3000,
	}))
	require.NoError(t, o.SubmitStopExit("order-1", "SOL", "stop loss", 10, 95))

	intents, err := o.Pending(0, 10)
	require.NoError(t, err)
	require.Len(t, intents, 4)

	assert.Equal(t, KindRebalance, intents[0].Kind)
	assert.Equal(t, "SELL", intents[0].Side)
	assert.Equal(t, 1, intents[0].Priority)

	assert.Equal(t, KindPurchase, intents[2].Kind)
	assert.Equal(t, "sched-1", intents[2].Reference)
	assert.Equal(t, 3000.0, intents[2].Price)

	assert.Equal(t, KindStopExit, intents[3].Kind)
	assert.Equal(t, "order-1:stop loss", intents[3].Reference)
	assert.Equal(t, 950.0, intents[3].AmountUSD)
}

func TestOutbox_PendingSinceID(t *testing.T) {
	o := newTestOutbox(t)

	require.NoError(t, o.SubmitRebalanceOrder("BTC", domain.OrderSideSell, 100, 1))
	require.NoError(t, o.SubmitRebalanceOrder("ETH", domain.OrderSideBuy, 100, 2))

	all, err := o.Pending(0, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)

	rest, err := o.Pending(all[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "ETH", rest[0].Asset)
}
