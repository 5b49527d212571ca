package dca

import (
	"database/sql"
	"errors"
	"testing"
	"time"

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
	s := weeklySchedule(t, 52)

	require.NoError(t, repo.Create(s))

	loaded, err := repo.Get(s.ID)
	require.NoError(t, err)

	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, s.Asset, loaded.Asset)
	assert.Equal(t, s.Frequency, loaded.Frequency)
	assert.Equal(t, s.Status, loaded.Status)
	assert.Equal(t, s.NextPurchaseDate, loaded.NextPurchaseDate)
	assert.Equal(t, int64(1), loaded.Version)
	assert.Empty(t, loaded.Events)
}

func TestRepository_GetMissing(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRepository_SaveRoundTripsEvents(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService()
	s := weeklySchedule(t, 52)
	require.NoError(t, repo.Create(s))

	s, event, err := svc.ExecuteDuePurchases(s, date(2026, time.January, 5), 50000)
	require.NoError(t, err)
	require.NotNil(t, event)

	s, err = repo.Save(s)
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.Version)

	loaded, err := repo.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.PurchasesCompleted)
	assert.Equal(t, 100.0, loaded.TotalInvested)
	require.Len(t, loaded.Events, 1)
	assert.Equal(t, *event, loaded.Events[0])
}

func TestRepository_SaveDetectsVersionConflict(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService()
	s := weeklySchedule(t, 52)
	require.NoError(t, repo.Create(s))

	// Two workers load the same version.
	first, err := repo.Get(s.ID)
	require.NoError(t, err)
	second, err := repo.Get(s.ID)
	require.NoError(t, err)

	first, _, err = svc.ExecuteDuePurchases(first, date(2026, time.January, 5), 50000)
	require.NoError(t, err)
	_, err = repo.Save(first)
	require.NoError(t, err)

	// The stale copy loses the race.
	second, _, err = svc.ExecuteDuePurchases(second, date(2026, time.January, 5), 51000)
	require.NoError(t, err)
	_, err = repo.Save(second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrVersionConflict))

	// Only the first purchase applied.
	loaded, err := repo.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.PurchasesCompleted)
	assert.Equal(t, 100.0, loaded.TotalInvested)
}

func TestRepository_GetActive(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService()

	active := weeklySchedule(t, 52)
	require.NoError(t, repo.Create(active))

	cancelled := weeklySchedule(t, 52)
	cancelled, _ = svc.CancelSchedule(cancelled)
	require.NoError(t, repo.Create(cancelled))

	schedules, err := repo.GetActive()
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, active.ID, schedules[0].ID)
}
