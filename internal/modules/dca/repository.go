package dca

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avasilakis/helmsman/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Repository persists DCA schedules. Saves use optimistic compare-and-swap
// on the version column: two workers racing to mutate the same schedule
// cannot both apply, which is the per-entity serialization the engine
// requires. Purchase history is stored as a msgpack blob alongside the
// scalar columns.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new DCA schedule repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "dca").Logger(),
	}
}

// Create inserts a new schedule. The schedule's version must be 1.
func (r *Repository) Create(s Schedule) error {
	events, err := encodeEvents(s.Events)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO dca_schedules
			(id, asset, amount_per_period, frequency, start_date, duration_periods,
			 status, purchases_completed, total_invested, total_units_acquired,
			 next_purchase_date, events, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Asset, s.AmountPerPeriod, string(s.Frequency),
		s.StartDate.Unix(), s.DurationPeriods, string(s.Status),
		s.PurchasesCompleted, s.TotalInvested, s.TotalUnitsAcquired,
		s.NextPurchaseDate.Unix(), events, s.Version,
		s.CreatedAt.Unix(), s.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert schedule %s: %w", s.ID, err)
	}

	return nil
}

// Save persists a mutated schedule, expecting the stored row to still carry
// the version the schedule was loaded with. Returns domain.ErrVersionConflict
// when another writer got there first; the caller should re-read and retry
// on its next pass.
func (r *Repository) Save(s Schedule) (Schedule, error) {
	events, err := encodeEvents(s.Events)
	if err != nil {
		return s, err
	}

	res, err := r.db.Exec(`
		UPDATE dca_schedules SET
			status = ?, purchases_completed = ?, total_invested = ?,
			total_units_acquired = ?, next_purchase_date = ?, events = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(s.Status), s.PurchasesCompleted, s.TotalInvested,
		s.TotalUnitsAcquired, s.NextPurchaseDate.Unix(), events,
		time.Now().UTC().Unix(), s.ID, s.Version,
	)
	if err != nil {
		return s, fmt.Errorf("failed to update schedule %s: %w", s.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return s, fmt.Errorf("failed to check update of schedule %s: %w", s.ID, err)
	}
	if affected == 0 {
		return s, fmt.Errorf("schedule %s: %w", s.ID, domain.ErrVersionConflict)
	}

	s.Version++
	return s, nil
}

// Get returns one schedule by ID.
func (r *Repository) Get(id string) (Schedule, error) {
	row := r.db.QueryRow(selectColumns+" WHERE id = ?", id)
	s, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Schedule{}, fmt.Errorf("schedule %s: %w", id, domain.ErrNotFound)
	}
	return s, err
}

// GetActive returns all active schedules, oldest first.
func (r *Repository) GetActive() ([]Schedule, error) {
	rows, err := r.db.Query(selectColumns+" WHERE status = ? ORDER BY created_at", string(StatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to query active schedules: %w", err)
	}
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}

	return schedules, nil
}

const selectColumns = `
	SELECT id, asset, amount_per_period, frequency, start_date, duration_periods,
	       status, purchases_completed, total_invested, total_units_acquired,
	       next_purchase_date, events, version, created_at, updated_at
	FROM dca_schedules`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSchedule(row rowScanner) (Schedule, error) {
	var s Schedule
	var frequency, status string
	var startDate, nextDate, createdAt, updatedAt int64
	var events []byte

	err := row.Scan(
		&s.ID, &s.Asset, &s.AmountPerPeriod, &frequency, &startDate,
		&s.DurationPeriods, &status, &s.PurchasesCompleted, &s.TotalInvested,
		&s.TotalUnitsAcquired, &nextDate, &events, &s.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return Schedule{}, err
	}

	s.Frequency = Frequency(frequency)
	s.Status = Status(status)
	s.StartDate = time.Unix(startDate, 0).UTC()
	s.NextPurchaseDate = time.Unix(nextDate, 0).UTC()
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	s.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	if len(events) > 0 {
		if err := msgpack.Unmarshal(events, &s.Events); err != nil {
			return Schedule{}, fmt.Errorf("failed to decode events for schedule %s: %w", s.ID, err)
		}
	}

	return s, nil
}

func encodeEvents(events []domain.PurchaseEvent) ([]byte, error) {
	if len(events) == 0 {
		return nil, nil
	}
	data, err := msgpack.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("failed to encode purchase events: %w", err)
	}
	return data, nil
}
