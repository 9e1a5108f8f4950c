package controllers

import (
	"errors"
	"net/http"

	"finproof/models"
	"finproof/services/strategy"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

// StrategyController handles strategy management requests
type StrategyController struct {
	store *strategy.Store
}

// NewStrategyController creates a new strategy controller
func NewStrategyController(store *strategy.Store) *StrategyController {
	return &StrategyController{store: store}
}

// SaveStrategy upserts a strategy by name
// POST /api/strategies
func (sc *StrategyController) SaveStrategy(c *gin.Context) {
	var req struct {
		Name           string                 `json:"name" binding:"required"`
		AssetType      string                 `json:"asset_type" binding:"required"`
		BuyRules       map[string]interface{} `json:"buy_rules"`
		SellRules      map[string]interface{} `json:"sell_rules"`
		PositionSizing map[string]interface{} `json:"position_sizing"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	saved, err := sc.store.Save(&models.Strategy{
		Name:           req.Name,
		AssetType:      req.AssetType,
		BuyRules:       datatypes.JSONMap(req.BuyRules),
		SellRules:      datatypes.JSONMap(req.SellRules),
		PositionSizing: datatypes.JSONMap(req.PositionSizing),
	})
	if err != nil {
		if errors.Is(err, strategy.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save strategy"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": saved})
}

// GetStrategy returns a strategy by id
// GET /api/strategies/:id
func (sc *StrategyController) GetStrategy(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid strategy id"})
		return
	}

	strat, err := sc.store.Get(id)
	if err != nil {
		if errors.Is(err, strategy.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Strategy not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch strategy"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": strat})
}

// ListStrategies returns all strategies, optionally filtered by asset type
// GET /api/strategies
func (sc *StrategyController) ListStrategies(c *gin.Context) {
	strategies, err := sc.store.List(c.Query("asset_type"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list strategies"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": strategies})
}

// ActivateStrategy makes a strategy the active one for its asset type
// POST /api/strategies/:id/activate
func (sc *StrategyController) ActivateStrategy(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid strategy id"})
		return
	}

	strat, err := sc.store.Activate(id)
	if err != nil {
		if errors.Is(err, strategy.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Strategy not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to activate strategy"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": strat})
}

// DeactivateStrategy clears a strategy's active flag
// POST /api/strategies/:id/deactivate
func (sc *StrategyController) DeactivateStrategy(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid strategy id"})
		return
	}

	if err := sc.store.Deactivate(id); err != nil {
		if errors.Is(err, strategy.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Strategy not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deactivate strategy"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Strategy deactivated"})
}

// GetActiveStrategy returns the active strategy for an asset type
// GET /api/strategies/active/:asset_type
func (sc *StrategyController) GetActiveStrategy(c *gin.Context) {
	assetType := c.Param("asset_type")
	if !models.ValidAssetType(assetType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown asset type"})
		return
	}

	strat, err := sc.store.GetActive(assetType)
	if err != nil {
		if errors.Is(err, strategy.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No active strategy for asset type"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch active strategy"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": strat})
}

// DeleteStrategy removes a strategy
// DELETE /api/strategies/:id
func (sc *StrategyController) DeleteStrategy(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid strategy id"})
		return
	}

	if err := sc.store.Delete(id); err != nil {
		if errors.Is(err, strategy.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Strategy not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete strategy"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Strategy deleted"})
}
