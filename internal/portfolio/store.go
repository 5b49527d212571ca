// Package portfolio stores what the portfolio holds and what it should
// hold. Holdings are updated by the operator or an external sync process;
// the automation cycle only reads them.
package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/avasilakis/helmsman/internal/domain"
)

// Store implements domain.PortfolioSource on the engine database.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates a new portfolio store.
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "portfolio").Logger(),
	}
}

// SetHolding upserts one holding. Zero units removes it.
func (s *Store) SetHolding(h domain.Holding) error {
	if h.Asset == "" {
		return domain.NewValidationError("asset", "empty asset symbol")
	}
	if h.Units < 0 {
		return domain.NewValidationError("units", "negative units")
	}

	if h.Units == 0 {
		_, err := s.db.Exec("DELETE FROM holdings WHERE asset = ?", h.Asset)
		if err != nil {
			return fmt.Errorf("failed to remove holding %s: %w", h.Asset, err)
		}
		return nil
	}

	locked := 0
	if h.Locked {
		locked = 1
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO holdings (asset, units, volatility, locked, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		h.Asset, h.Units, h.Volatility, locked, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store holding %s: %w", h.Asset, err)
	}
	return nil
}

// Holdings returns all current holdings.
func (s *Store) Holdings() ([]domain.Holding, error) {
	rows, err := s.db.Query("SELECT asset, units, volatility, locked FROM holdings ORDER BY asset")
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var h domain.Holding
		var locked int
		if err := rows.Scan(&h.Asset, &h.Units, &h.Volatility, &locked); err != nil {
			return nil, err
		}
		h.Locked = locked != 0
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return holdings, nil
}

// SetTargetAllocation replaces the whole target allocation atomically.
func (s *Store) SetTargetAllocation(target domain.AllocationMap) error {
	if err := target.Validate(); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM allocation_targets"); err != nil {
		return fmt.Errorf("failed to clear allocation targets: %w", err)
	}

	now := time.Now().UTC().Unix()
	for asset, weight := range target {
		if _, err := tx.Exec(
			"INSERT INTO allocation_targets (asset, weight, updated_at) VALUES (?, ?, ?)",
			asset, weight, now,
		); err != nil {
			return fmt.Errorf("failed to store target for %s: %w", asset, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit allocation targets: %w", err)
	}

	s.log.Info().Int("assets", len(target)).Msg("Target allocation updated")
	return nil
}

// TargetAllocation returns the configured target weights. Empty map when
// none are configured.
func (s *Store) TargetAllocation() (domain.AllocationMap, error) {
	rows, err := s.db.Query("SELECT asset, weight FROM allocation_targets")
	if err != nil {
		return nil, fmt.Errorf("failed to query allocation targets: %w", err)
	}
	defer rows.Close()

	target := make(domain.AllocationMap)
	for rows.Next() {
		var asset string
		var weight float64
		if err := rows.Scan(&asset, &weight); err != nil {
			return nil, err
		}
		target[asset] = weight
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocation targets: %w", err)
	}

	return target, nil
}
