package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Trade represents an order written by the trading collaborator after it
// accepts a BUY or SELL decision. The core references this table for its
// foreign keys only; filling status and broker_order_id is the broker
// integration's job.
type Trade struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Symbol        string          `gorm:"index;size:20" json:"symbol"`
	Side          string          `gorm:"size:10" json:"side"` // BUY, SELL
	Quantity      int64           `json:"quantity"`
	Price         decimal.Decimal `gorm:"type:decimal(20,8)" json:"price"`
	Commission    decimal.Decimal `gorm:"type:decimal(20,8)" json:"commission"`
	StrategyID    uint            `gorm:"index" json:"strategy_id,omitempty"`
	Strategy      *Strategy       `gorm:"foreignKey:StrategyID" json:"strategy,omitempty"`
	JobID         uint            `gorm:"index" json:"job_id,omitempty"`
	Status        string          `gorm:"size:20" json:"status"` // pending, executed, cancelled, failed
	BrokerOrderID string          `gorm:"size:64" json:"broker_order_id,omitempty"`
	ExecutedAt    *time.Time      `json:"executed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MigrateTradingModels runs database migrations for trading-related models
func MigrateTradingModels(db *gorm.DB) error {
	return db.AutoMigrate(&Trade{})
}
