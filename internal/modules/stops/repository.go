package stops

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avasilakis/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// Repository persists stop orders with the same optimistic compare-and-swap
// discipline as the DCA repository: concurrent ticks against the same order
// cannot both apply.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new stop order repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "stops").Logger(),
	}
}

// Create inserts a new order. The order's version must be 1.
func (r *Repository) Create(o Order) error {
	_, err := r.db.Exec(`
		INSERT INTO stop_orders
			(id, asset, amount, stop_loss_price, take_profit_price,
			 trailing_enabled, trailing_percent, trailing_stop_price,
			 status, trigger_reason, trigger_price, triggered_at,
			 version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Asset, o.Amount, o.StopLossPrice, o.TakeProfitPrice,
		boolToInt(o.TrailingEnabled), o.TrailingPercent, o.TrailingStopPrice,
		string(o.Status), nullString(string(o.TriggerReason)), o.TriggerPrice,
		nullTime(o.TriggeredAt), o.Version, o.CreatedAt.Unix(), o.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert stop order %s: %w", o.ID, err)
	}

	return nil
}

// Save persists a mutated order, expecting the stored version to match.
// Returns domain.ErrVersionConflict when a concurrent writer won.
func (r *Repository) Save(o Order) (Order, error) {
	res, err := r.db.Exec(`
		UPDATE stop_orders SET
			trailing_stop_price = ?, status = ?, trigger_reason = ?,
			trigger_price = ?, triggered_at = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		o.TrailingStopPrice, string(o.Status), nullString(string(o.TriggerReason)),
		o.TriggerPrice, nullTime(o.TriggeredAt),
		time.Now().UTC().Unix(), o.ID, o.Version,
	)
	if err != nil {
		return o, fmt.Errorf("failed to update stop order %s: %w", o.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return o, fmt.Errorf("failed to check update of stop order %s: %w", o.ID, err)
	}
	if affected == 0 {
		return o, fmt.Errorf("stop order %s: %w", o.ID, domain.ErrVersionConflict)
	}

	o.Version++
	return o, nil
}

// Get returns one order by ID.
func (r *Repository) Get(id string) (Order, error) {
	row := r.db.QueryRow(selectColumns+" WHERE id = ?", id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, fmt.Errorf("stop order %s: %w", id, domain.ErrNotFound)
	}
	return o, err
}

// GetActive returns all active orders, oldest first.
func (r *Repository) GetActive() ([]Order, error) {
	rows, err := r.db.Query(selectColumns+" WHERE status = ? ORDER BY created_at", string(StatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to query active stop orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stop orders: %w", err)
	}

	return orders, nil
}

const selectColumns = `
	SELECT id, asset, amount, stop_loss_price, take_profit_price,
	       trailing_enabled, trailing_percent, trailing_stop_price,
	       status, trigger_reason, trigger_price, triggered_at,
	       version, created_at, updated_at
	FROM stop_orders`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (Order, error) {
	var o Order
	var trailingEnabled int
	var status string
	var reason sql.NullString
	var triggeredAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&o.ID, &o.Asset, &o.Amount, &o.StopLossPrice, &o.TakeProfitPrice,
		&trailingEnabled, &o.TrailingPercent, &o.TrailingStopPrice,
		&status, &reason, &o.TriggerPrice, &triggeredAt,
		&o.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return Order{}, err
	}

	o.TrailingEnabled = trailingEnabled != 0
	o.Status = Status(status)
	if reason.Valid {
		o.TriggerReason = TriggerReason(reason.String)
	}
	if triggeredAt.Valid {
		ts := time.Unix(triggeredAt.Int64, 0).UTC()
		o.TriggeredAt = &ts
	}
	o.CreatedAt = time.Unix(createdAt, 0).UTC()
	o.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return o, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
