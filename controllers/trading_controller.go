package controllers

import (
	"net/http"
	"strconv"

	"finproof/services/trading"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// TradingController handles trading-related requests
type TradingController struct {
	bot *trading.Bot
}

// NewTradingController creates a new trading controller
func NewTradingController(bot *trading.Bot) *TradingController {
	return &TradingController{bot: bot}
}

// GetTrades returns recent trades
// GET /api/trades
func (tc *TradingController) GetTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	trades, err := tc.bot.ListTrades(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch trades"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": trades})
}

// CreateManualTrade records an operator-initiated trade
// POST /api/trades
func (tc *TradingController) CreateManualTrade(c *gin.Context) {
	var req struct {
		Symbol   string  `json:"symbol" binding:"required"`
		Side     string  `json:"side" binding:"required"`
		Quantity int64   `json:"quantity" binding:"required"`
		Price    float64 `json:"price" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trade, err := tc.bot.ManualTrade(req.Symbol, req.Side, req.Quantity, decimal.NewFromFloat(req.Price))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": trade})
}

// GetBotStatus reports whether the bot creates orders
// GET /api/bot/status
func (tc *TradingController) GetBotStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"enabled": tc.bot.IsEnabled()})
}

// StartBot enables order creation
// POST /api/bot/start
func (tc *TradingController) StartBot(c *gin.Context) {
	tc.bot.Enable()
	c.JSON(http.StatusOK, gin.H{"message": "Trading bot enabled"})
}

// StopBot disables order creation
// POST /api/bot/stop
func (tc *TradingController) StopBot(c *gin.Context) {
	tc.bot.Disable()
	c.JSON(http.StatusOK, gin.H{"message": "Trading bot disabled"})
}
