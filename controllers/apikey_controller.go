package controllers

import (
	"net/http"

	"finproof/config"

	"github.com/gin-gonic/gin"
)

// APIKeyController manages encrypted upstream API credentials
type APIKeyController struct {
	manager *config.APIKeyManager
}

// NewAPIKeyController creates a new API key controller
func NewAPIKeyController(manager *config.APIKeyManager) *APIKeyController {
	return &APIKeyController{manager: manager}
}

func (kc *APIKeyController) ready(c *gin.Context) bool {
	if kc.manager == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Key storage is not configured"})
		return false
	}
	return true
}

// SaveKey stores a credential for an upstream service
// PUT /api/keys/:service
func (kc *APIKeyController) SaveKey(c *gin.Context) {
	if !kc.ready(c) {
		return
	}

	var req struct {
		APIKey string `json:"api_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := kc.manager.SaveAPIKey(c.Param("service"), req.APIKey); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store key"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Key stored"})
}

// DeleteKey removes a stored credential
// DELETE /api/keys/:service
func (kc *APIKeyController) DeleteKey(c *gin.Context) {
	if !kc.ready(c) {
		return
	}

	if err := kc.manager.DeleteAPIKey(c.Param("service")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Key deleted"})
}

// HasKey reports whether a credential exists without revealing it
// GET /api/keys/:service
func (kc *APIKeyController) HasKey(c *gin.Context) {
	if !kc.ready(c) {
		return
	}

	key, err := kc.manager.GetAPIKey(c.Param("service"))
	c.JSON(http.StatusOK, gin.H{"service": c.Param("service"), "configured": err == nil && key != ""})
}
