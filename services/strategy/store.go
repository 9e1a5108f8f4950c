package strategy

import (
	"errors"
	"fmt"
	"strings"

	"finproof/models"

	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("strategy not found")
	ErrInvalidInput = errors.New("invalid strategy")
)

// Store persists trading strategies and enforces the activation invariant:
// at most one strategy per asset type is active at any point in time.
type Store struct {
	db *gorm.DB
}

// NewStore creates a strategy store backed by db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Save upserts a strategy by name. An existing strategy keeps its id and
// its activation state; Save never flips is_active in either direction.
func (s *Store) Save(strat *models.Strategy) (*models.Strategy, error) {
	strat.Name = strings.TrimSpace(strat.Name)
	if strat.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !models.ValidAssetType(strat.AssetType) {
		return nil, fmt.Errorf("%w: unknown asset type %q", ErrInvalidInput, strat.AssetType)
	}

	var existing models.Strategy
	err := s.db.Where("name = ?", strat.Name).First(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to look up strategy: %w", err)
		}
		strat.IsActive = false
		if err := s.db.Create(strat).Error; err != nil {
			return nil, fmt.Errorf("failed to create strategy: %w", err)
		}
		return strat, nil
	}

	updates := map[string]interface{}{
		"asset_type":      strat.AssetType,
		"buy_rules":       strat.BuyRules,
		"sell_rules":      strat.SellRules,
		"position_sizing": strat.PositionSizing,
	}
	if err := s.db.Model(&existing).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update strategy: %w", err)
	}
	return s.Get(existing.ID)
}

// Get returns a strategy by id.
func (s *Store) Get(id uint) (*models.Strategy, error) {
	var strat models.Strategy
	if err := s.db.First(&strat, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load strategy: %w", err)
	}
	return &strat, nil
}

// GetByName returns a strategy by its unique name.
func (s *Store) GetByName(name string) (*models.Strategy, error) {
	var strat models.Strategy
	if err := s.db.Where("name = ?", name).First(&strat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load strategy: %w", err)
	}
	return &strat, nil
}

// List returns all strategies, optionally filtered by asset type.
func (s *Store) List(assetType string) ([]models.Strategy, error) {
	query := s.db.Order("name ASC")
	if assetType != "" {
		query = query.Where("asset_type = ?", assetType)
	}
	var out []models.Strategy
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list strategies: %w", err)
	}
	return out, nil
}

// Activate marks a strategy active and deactivates every other strategy of
// the same asset type. Both writes happen in one transaction so no
// intermediate state with two active strategies is ever visible.
func (s *Store) Activate(id uint) (*models.Strategy, error) {
	strat, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Strategy{}).
			Where("asset_type = ? AND id <> ?", strat.AssetType, id).
			Update("is_active", false).Error
		if err != nil {
			return fmt.Errorf("failed to deactivate siblings: %w", err)
		}
		return tx.Model(&models.Strategy{}).
			Where("id = ?", id).
			Update("is_active", true).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to activate strategy %d: %w", id, err)
	}
	return s.Get(id)
}

// Deactivate clears a strategy's active flag. The asset type may end up
// with no active strategy, which is a valid state.
func (s *Store) Deactivate(id uint) error {
	res := s.db.Model(&models.Strategy{}).
		Where("id = ?", id).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("failed to deactivate strategy %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetActive returns the active strategy for an asset type, or ErrNotFound
// when none is active.
func (s *Store) GetActive(assetType string) (*models.Strategy, error) {
	var strat models.Strategy
	err := s.db.Where("asset_type = ? AND is_active = ?", assetType, true).
		First(&strat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load active strategy: %w", err)
	}
	return &strat, nil
}

// Delete removes a strategy permanently.
func (s *Store) Delete(id uint) error {
	res := s.db.Delete(&models.Strategy{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete strategy %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
