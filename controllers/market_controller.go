package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"finproof/services/marketdata"

	"github.com/gin-gonic/gin"
)

// MarketController exposes market data lookups
type MarketController struct {
	provider marketdata.Provider
	news     marketdata.NewsSource
}

// NewMarketController creates a new market data controller
func NewMarketController(provider marketdata.Provider, news marketdata.NewsSource) *MarketController {
	return &MarketController{provider: provider, news: news}
}

// GetSnapshot returns the latest price and RSI for a symbol
// GET /api/market/:symbol/snapshot
func (mc *MarketController) GetSnapshot(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	snapshot, err := mc.provider.GetSnapshot(c.Request.Context(), symbol)
	if err != nil {
		if errors.Is(err, marketdata.ErrNoData) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No data for symbol"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch snapshot"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}

// GetSeries returns historical candles for a symbol
// GET /api/market/:symbol/history
func (mc *MarketController) GetSeries(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	period := c.DefaultQuery("period", "1y")

	series, err := mc.provider.GetSeries(c.Request.Context(), symbol, period)
	if err != nil {
		if errors.Is(err, marketdata.ErrNoData) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No data for symbol"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch history"})
		return
	}

	closes := series.Closes()
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"symbol":  series.Symbol,
			"candles": series.Candles,
			"indicators": gin.H{
				"rsi":    marketdata.CalculateRSI(closes, 14),
				"ma_20":  marketdata.CalculateMA(closes, 20),
				"ma_50":  marketdata.CalculateMA(closes, 50),
				"ema_12": marketdata.CalculateEMA(closes, 12),
			},
		},
	})
}

// GetHeadlines returns recent news headlines for a symbol
// GET /api/market/:symbol/news
func (mc *MarketController) GetHeadlines(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	headlines, err := mc.news.Headlines(c.Request.Context(), symbol, limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch news"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": headlines})
}
