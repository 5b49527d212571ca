// Package marketdata provides cache-backed market data access. An external
// feeder writes prices and daily closes into the engine database; the
// automation cycle reads them through the domain.MarketData interface. The
// engine itself never calls an exchange.
package marketdata

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TTLCurrentPrice bounds how long a stored price counts as fresh. Stale
// prices are still served as a fallback, with a warning.
const TTLCurrentPrice = 10 * time.Minute

// Store reads and writes cached market data.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates a new market data store.
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "marketdata").Logger(),
	}
}

// SetPrice upserts the current price of an asset.
func (s *Store) SetPrice(asset string, price float64) error {
	if price <= 0 {
		return fmt.Errorf("non-positive price %f for %s", price, asset)
	}

	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO market_prices (asset, price, updated_at, expires_at)
		VALUES (?, ?, ?, ?)`,
		asset, price, now.Unix(), now.Add(TTLCurrentPrice).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store price for %s: %w", asset, err)
	}
	return nil
}

// RecordClose upserts one daily close. The date is truncated to midnight UTC.
func (s *Store) RecordClose(asset string, date time.Time, closePrice float64) error {
	if closePrice <= 0 {
		return fmt.Errorf("non-positive close %f for %s", closePrice, asset)
	}

	day := date.UTC().Truncate(24 * time.Hour)
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO market_closes (asset, date, close)
		VALUES (?, ?, ?)`,
		asset, day.Unix(), closePrice,
	)
	if err != nil {
		return fmt.Errorf("failed to store close for %s: %w", asset, err)
	}
	return nil
}

// CurrentPrice returns the latest price for an asset. A stale cache entry is
// better than none, so expiry only downgrades the answer, never removes it.
func (s *Store) CurrentPrice(asset string) (float64, error) {
	var price float64
	var expiresAt int64
	err := s.db.QueryRow(
		"SELECT price, expires_at FROM market_prices WHERE asset = ?", asset,
	).Scan(&price, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("no price cached for %s", asset)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read price for %s: %w", asset, err)
	}

	if expiresAt <= time.Now().Unix() {
		s.log.Warn().Str("asset", asset).Msg("Serving stale price")
	}
	return price, nil
}

// HistoricalCloses returns up to the last n daily closes, oldest first.
func (s *Store) HistoricalCloses(asset string, n int) ([]float64, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.Query(`
		SELECT close FROM market_closes
		WHERE asset = ? ORDER BY date DESC LIMIT ?`,
		asset, n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read closes for %s: %w", asset, err)
	}
	defer rows.Close()

	var closes []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		closes = append(closes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating closes for %s: %w", asset, err)
	}

	// Query is newest-first; callers want oldest-first.
	for i, j := 0, len(closes)-1; i < j; i, j = i+1, j-1 {
		closes[i], closes[j] = closes[j], closes[i]
	}
	return closes, nil
}

// PriceAt returns the last recorded close at or before the given date
// (Unix seconds).
func (s *Store) PriceAt(asset string, date int64) (float64, error) {
	var closePrice float64
	err := s.db.QueryRow(`
		SELECT close FROM market_closes
		WHERE asset = ? AND date <= ?
		ORDER BY date DESC LIMIT 1`,
		asset, date,
	).Scan(&closePrice)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("no close for %s at or before %d", asset, date)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read close for %s: %w", asset, err)
	}
	return closePrice, nil
}

// DeleteClosesBefore removes closes older than the cutoff. Returns the
// number of rows deleted.
func (s *Store) DeleteClosesBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM market_closes WHERE date < ?", cutoff.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old closes: %w", err)
	}
	return res.RowsAffected()
}
