package stops

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/avasilakis/helmsman/internal/database"
	"github.com/avasilakis/helmsman/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func newTestRepo(t *testing.T) *Repository {
	return NewRepository(setupTestDB(t), zerolog.Nop())
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	o := trailingOrder(t, 5, 52000)

	require.NoError(t, repo.Create(o))

	loaded, err := repo.Get(o.ID)
	require.NoError(t, err)

	assert.Equal(t, o.ID, loaded.ID)
	assert.Equal(t, o.Asset, loaded.Asset)
	assert.Equal(t, o.Amount, loaded.Amount)
	assert.True(t, loaded.TrailingEnabled)
	require.NotNil(t, loaded.TrailingStopPrice)
	assert.InDelta(t, 49400, *loaded.TrailingStopPrice, 0.0001)
	assert.Nil(t, loaded.StopLossPrice)
	assert.Equal(t, StatusActive, loaded.Status)
	assert.Empty(t, loaded.TriggerReason)
	assert.Nil(t, loaded.TriggeredAt)
	assert.Equal(t, int64(1), loaded.Version)
}

func TestRepository_GetMissing(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRepository_SaveRoundTripsTrigger(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService()
	o := trailingOrder(t, 5, 52000)
	require.NoError(t, repo.Create(o))

	o, changed, err := svc.ApplyPriceTick(o, 49000)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, StatusTriggered, o.Status)

	saved, err := repo.Save(o)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)

	loaded, err := repo.Get(o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusTriggered, loaded.Status)
	assert.Equal(t, ReasonTrailingStop, loaded.TriggerReason)
	require.NotNil(t, loaded.TriggerPrice)
	assert.Equal(t, 49000.0, *loaded.TriggerPrice)
	require.NotNil(t, loaded.TriggeredAt)
	assert.Equal(t, int64(2), loaded.Version)
}

func TestRepository_SaveDetectsConflict(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService()
	o := trailingOrder(t, 5, 100)
	require.NoError(t, repo.Create(o))

	// Two workers load the same order and tick it independently.
	first, err := repo.Get(o.ID)
	require.NoError(t, err)
	second, err := repo.Get(o.ID)
	require.NoError(t, err)

	first, _, _ = svc.ApplyPriceTick(first, 110)
	_, err = repo.Save(first)
	require.NoError(t, err)

	second, _, _ = svc.ApplyPriceTick(second, 80)
	_, err = repo.Save(second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrVersionConflict))

	// Only the winning tick is visible.
	loaded, err := repo.Get(o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, loaded.Status)
	require.NotNil(t, loaded.TrailingStopPrice)
	assert.InDelta(t, 104.5, *loaded.TrailingStopPrice, 0.0001)
}

func TestRepository_GetActive(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService()

	active := trailingOrder(t, 5, 100)
	require.NoError(t, repo.Create(active))

	cancelled := trailingOrder(t, 5, 100)
	cancelled, ok := svc.CancelOrder(cancelled)
	require.True(t, ok)
	require.NoError(t, repo.Create(cancelled))

	orders, err := repo.GetActive()
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, active.ID, orders[0].ID)
}
