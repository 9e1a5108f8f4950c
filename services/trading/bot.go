package trading

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"finproof/models"
	"finproof/services/marketdata"
	"finproof/services/strategy"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const commissionRate = 0.0015

// Bot turns BUY and SELL decisions into paper trade orders. It is fed by
// the job pipeline through HandleDecision and never initiates analysis on
// its own.
type Bot struct {
	db         *gorm.DB
	strategies *strategy.Store
	enabled    bool
	mutex      sync.RWMutex
}

// NewBot creates a trading bot instance.
func NewBot(db *gorm.DB, strategies *strategy.Store) *Bot {
	return &Bot{db: db, strategies: strategies}
}

// Enable turns order creation on.
func (bot *Bot) Enable() {
	bot.mutex.Lock()
	defer bot.mutex.Unlock()
	bot.enabled = true
	log.Println("Trading bot enabled")
}

// Disable turns order creation off. Decisions are still logged.
func (bot *Bot) Disable() {
	bot.mutex.Lock()
	defer bot.mutex.Unlock()
	bot.enabled = false
	log.Println("Trading bot disabled")
}

// IsEnabled returns whether the bot creates orders.
func (bot *Bot) IsEnabled() bool {
	bot.mutex.RLock()
	defer bot.mutex.RUnlock()
	return bot.enabled
}

// HandleDecision acts on a decision produced by the strategy engine. HOLD
// decisions and anything arriving while the bot is disabled are dropped.
func (bot *Bot) HandleDecision(decision models.Decision, snapshot *marketdata.Snapshot) {
	if decision.Action == models.ActionHold {
		return
	}
	if !bot.IsEnabled() {
		log.Printf("%s decision for %s ignored, trading bot is disabled", decision.Action, decision.Symbol)
		return
	}
	if snapshot == nil || snapshot.Price <= 0 {
		log.Printf("%s decision for %s has no usable price, skipping order", decision.Action, decision.Symbol)
		return
	}

	trade, err := bot.placeOrder(decision, snapshot)
	if err != nil {
		log.Printf("Failed to place %s order for %s: %v", decision.Action, decision.Symbol, err)
		return
	}
	log.Printf("%s order %s created for %s: %d units at %s (strategy %s)",
		trade.Side, trade.BrokerOrderID, trade.Symbol, trade.Quantity,
		trade.Price.StringFixed(2), decision.StrategyName)
}

// placeOrder sizes and persists a paper order for the decision.
func (bot *Bot) placeOrder(decision models.Decision, snapshot *marketdata.Snapshot) (*models.Trade, error) {
	price := decimal.NewFromFloat(snapshot.Price)

	var strategyID uint
	sizing := map[string]interface{}{}
	if strat, err := bot.strategies.GetByName(decision.StrategyName); err == nil {
		strategyID = strat.ID
		sizing = strat.PositionSizing
	}

	quantity := positionSize(sizing, price)
	if quantity <= 0 {
		return nil, fmt.Errorf("position sizing produced zero quantity at price %s", price.StringFixed(2))
	}

	commission := price.Mul(decimal.NewFromInt(quantity)).Mul(decimal.NewFromFloat(commissionRate))
	now := time.Now().UTC()

	trade := &models.Trade{
		Symbol:        decision.Symbol,
		Side:          decision.Action,
		Quantity:      quantity,
		Price:         price,
		Commission:    commission,
		StrategyID:    strategyID,
		JobID:         decision.JobID,
		Status:        "executed",
		BrokerOrderID: uuid.NewString(),
		ExecutedAt:    &now,
	}
	if err := bot.db.Create(trade).Error; err != nil {
		return nil, fmt.Errorf("failed to create trade: %w", err)
	}
	return trade, nil
}

// positionSize derives an order quantity from a strategy's sizing config.
// Supported keys: fixed_quantity (units per order) and fixed_amount (cash
// budget per order). Absent or unusable config falls back to a budget of
// 1000 per order.
func positionSize(sizing map[string]interface{}, price decimal.Decimal) int64 {
	if q, ok := sizingNumber(sizing, "fixed_quantity"); ok && q > 0 {
		return int64(q)
	}

	budget := decimal.NewFromInt(1000)
	if a, ok := sizingNumber(sizing, "fixed_amount"); ok && a > 0 {
		budget = decimal.NewFromFloat(a)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	return budget.Div(price).IntPart()
}

// sizingNumber reads a numeric sizing value. Configs loaded from the
// database carry json.Number, configs set in code carry native numerics.
func sizingNumber(sizing map[string]interface{}, key string) (float64, bool) {
	switch n := sizing[key].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// ManualTrade records an operator-initiated order outside the decision
// pipeline.
func (bot *Bot) ManualTrade(symbol, side string, quantity int64, price decimal.Decimal) (*models.Trade, error) {
	if side != models.ActionBuy && side != models.ActionSell {
		return nil, fmt.Errorf("invalid trade side %q", side)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	commission := price.Mul(decimal.NewFromInt(quantity)).Mul(decimal.NewFromFloat(commissionRate))
	now := time.Now().UTC()

	trade := &models.Trade{
		Symbol:        symbol,
		Side:          side,
		Quantity:      quantity,
		Price:         price,
		Commission:    commission,
		Status:        "executed",
		BrokerOrderID: uuid.NewString(),
		ExecutedAt:    &now,
	}
	if err := bot.db.Create(trade).Error; err != nil {
		return nil, fmt.Errorf("failed to create trade: %w", err)
	}
	log.Printf("Manual %s order created: %s %d units at %s", side, symbol, quantity, price.StringFixed(2))
	return trade, nil
}

// ListTrades returns recent trades newest-first.
func (bot *Bot) ListTrades(limit int) ([]models.Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	var trades []models.Trade
	err := bot.db.Order("created_at DESC, id DESC").Limit(limit).Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}
