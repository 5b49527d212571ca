// Package outbox records the engine's order intents durably. The engine
// only describes what should happen; a downstream executor drains the
// outbox and places actual trades.
package outbox

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/avasilakis/helmsman/internal/domain"
)

// Intent kinds.
const (
	KindRebalance = "rebalance"
	KindPurchase  = "dca_purchase"
	KindStopExit  = "stop_exit"
)

// Intent is one recorded order intent.
type Intent struct {
	ID        int64   `json:"id"`
	Kind      string  `json:"kind"`
	Asset     string  `json:"asset"`
	Side      string  `json:"side,omitempty"`
	AmountUSD float64 `json:"amount_usd"`
	Price     float64 `json:"price,omitempty"`
	Reference string  `json:"reference,omitempty"` // Schedule or order ID, or trigger reason
	Priority  int     `json:"priority,omitempty"`
	CreatedAt int64   `json:"created_at"`
}

// Outbox implements domain.Execution by appending intents to the engine
// database.
type Outbox struct {
	db  *sql.DB
	log zerolog.Logger
}

// New creates a new outbox.
func New(db *sql.DB, log zerolog.Logger) *Outbox {
	return &Outbox{
		db:  db,
		log: log.With().Str("component", "outbox").Logger(),
	}
}

// SubmitRebalanceOrder records one rebalance order intent.
func (o *Outbox) SubmitRebalanceOrder(asset string, side domain.OrderSide, amountUSD float64, priority int) error {
	return o.insert(Intent{
		Kind:      KindRebalance,
		Asset:     asset,
		Side:      string(side),
		AmountUSD: amountUSD,
		Priority:  priority,
	})
}

// SubmitPurchase records one executed DCA purchase for settlement.
func (o *Outbox) SubmitPurchase(event domain.PurchaseEvent) error {
	return o.insert(Intent{
		Kind:      KindPurchase,
		Asset:     event.Asset,
		Side:      string(domain.OrderSideBuy),
		AmountUSD: event.AmountUSD,
		Price:     event.Price,
		Reference: event.ScheduleID,
	})
}

// SubmitStopExit records a triggered stop order for closing.
func (o *Outbox) SubmitStopExit(orderID, asset, reason string, amount, triggerPrice float64) error {
	return o.insert(Intent{
		Kind:      KindStopExit,
		Asset:     asset,
		Side:      string(domain.OrderSideSell),
		AmountUSD: amount * triggerPrice,
		Price:     triggerPrice,
		Reference: orderID + ":" + reason,
	})
}

// Pending returns intents newer than sinceID, oldest first.
func (o *Outbox) Pending(sinceID int64, limit int) ([]Intent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := o.db.Query(`
		SELECT id, kind, asset, side, amount_usd, price, reference, priority, created_at
		FROM order_intents WHERE id > ? ORDER BY id LIMIT ?`,
		sinceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query order intents: %w", err)
	}
	defer rows.Close()

	var intents []Intent
	for rows.Next() {
		var in Intent
		var side, reference sql.NullString
		var price sql.NullFloat64
		var priority sql.NullInt64
		if err := rows.Scan(&in.ID, &in.Kind, &in.Asset, &side, &in.AmountUSD,
			&price, &reference, &priority, &in.CreatedAt); err != nil {
			return nil, err
		}
		in.Side = side.String
		in.Price = price.Float64
		in.Reference = reference.String
		in.Priority = int(priority.Int64)
		intents = append(intents, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order intents: %w", err)
	}

	return intents, nil
}

func (o *Outbox) insert(in Intent) error {
	_, err := o.db.Exec(`
		INSERT INTO order_intents (kind, asset, side, amount_usd, price, reference, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Kind, in.Asset, nullable(in.Side), in.AmountUSD,
		nullableFloat(in.Price), nullable(in.Reference), in.Priority,
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s intent for %s: %w", in.Kind, in.Asset, err)
	}

	o.log.Debug().
		Str("kind", in.Kind).
		Str("asset", in.Asset).
		Float64("amount_usd", in.AmountUSD).
		Msg("Order intent recorded")
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableFloat(f float64) interface{} {
	if f == 0 {
		return nil
	}
	return f
}
