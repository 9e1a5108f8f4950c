package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Asset types a strategy can be scoped to.
const (
	AssetTypeStock  = "STOCK"
	AssetTypeCrypto = "CRYPTO"
	AssetTypeForex  = "FOREX"
	AssetTypeETF    = "ETF"
)

// ValidAssetType reports whether t is a known asset type.
func ValidAssetType(t string) bool {
	switch t {
	case AssetTypeStock, AssetTypeCrypto, AssetTypeForex, AssetTypeETF:
		return true
	}
	return false
}

// Decision actions.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

// Strategy is a named rule-set governing when an analysis result becomes a
// trade decision. At most one strategy per asset type is active at any time;
// StrategyStore.Activate is the only operation allowed to flip is_active.
type Strategy struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	Name           string            `gorm:"uniqueIndex;size:100" json:"name"`
	AssetType      string            `gorm:"index;size:10" json:"asset_type"`
	BuyRules       datatypes.JSONMap `json:"buy_rules"`
	SellRules      datatypes.JSONMap `json:"sell_rules"`
	PositionSizing datatypes.JSONMap `json:"position_sizing"`
	IsActive       bool              `gorm:"index" json:"is_active"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Decision is the outcome of evaluating a strategy against an analysis
// result. It is handed to the trading collaborator and broadcast to
// notification subscribers; it is not persisted by the core.
type Decision struct {
	Symbol       string  `json:"symbol"`
	Action       string  `json:"action"`
	Reason       string  `json:"reason"`
	StrategyName string  `json:"strategy_name"`
	Confidence   float64 `json:"confidence"`
	JobID        uint    `json:"job_id,omitempty"`
}

// MigrateStrategyModels runs database migrations for strategy models
func MigrateStrategyModels(db *gorm.DB) error {
	return db.AutoMigrate(&Strategy{})
}
