package routes

import (
	"finproof/config"
	"finproof/controllers"
	"finproof/middleware"
	"finproof/services/analysis"
	"finproof/services/jobs"
	"finproof/services/marketdata"
	"finproof/services/notify"
	"finproof/services/strategy"
	"finproof/services/trading"

	"github.com/gin-gonic/gin"
)

// Deps holds the shared services the route handlers operate on.
type Deps struct {
	JobStore      *jobs.Store
	Registry      *analysis.Registry
	StrategyStore *strategy.Store
	Bot           *trading.Bot
	Provider      marketdata.Provider
	News          marketdata.NewsSource
	Hub           *notify.Hub
	Keys          *config.APIKeyManager
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, deps Deps) {
	jobController := controllers.NewJobController(deps.JobStore, deps.Registry)
	strategyController := controllers.NewStrategyController(deps.StrategyStore)
	tradingController := controllers.NewTradingController(deps.Bot)
	marketController := controllers.NewMarketController(deps.Provider, deps.News)
	keyController := controllers.NewAPIKeyController(deps.Keys)

	// API v1 group
	api := router.Group("/api/v1")
	{
		// Analysis job routes
		jobsGroup := api.Group("/jobs")
		jobsGroup.Use(middleware.SubmitRateLimitMiddleware())
		{
			jobsGroup.POST("", jobController.SubmitJob)
			jobsGroup.POST("/batch", jobController.SubmitBatch)
			jobsGroup.GET("", jobController.ListJobs)
			jobsGroup.GET("/statistics", jobController.GetStatistics)
			jobsGroup.GET("/:id", jobController.GetJob)
			jobsGroup.GET("/:id/result", jobController.GetJobResult)
			jobsGroup.POST("/:id/cancel", jobController.CancelJob)
		}

		// Analysis module catalog
		api.GET("/modules", jobController.ListModules)

		// Strategy routes
		strategies := api.Group("/strategies")
		{
			strategies.GET("", strategyController.ListStrategies)
			strategies.POST("", strategyController.SaveStrategy)
			strategies.GET("/active/:asset_type", strategyController.GetActiveStrategy)
			strategies.GET("/:id", strategyController.GetStrategy)
			strategies.POST("/:id/activate", strategyController.ActivateStrategy)
			strategies.POST("/:id/deactivate", strategyController.DeactivateStrategy)
			strategies.DELETE("/:id", strategyController.DeleteStrategy)
		}

		// Market data routes
		market := api.Group("/market")
		{
			market.GET("/:symbol/snapshot", marketController.GetSnapshot)
			market.GET("/:symbol/history", marketController.GetSeries)
			market.GET("/:symbol/news", marketController.GetHeadlines)
		}

		// Trading routes
		tradingGroup := api.Group("/trading")
		{
			tradingGroup.GET("/trades", tradingController.GetTrades)
			tradingGroup.POST("/trades", tradingController.CreateManualTrade)
			tradingGroup.GET("/bot/status", tradingController.GetBotStatus)
			tradingGroup.POST("/bot/start", tradingController.StartBot)
			tradingGroup.POST("/bot/stop", tradingController.StopBot)
		}

		// Credential management, admin only
		keys := api.Group("/keys")
		keys.Use(middleware.JWTAuthMiddleware(), middleware.RequireRole("admin"))
		{
			keys.GET("/:service", keyController.HasKey)
			keys.PUT("/:service", keyController.SaveKey)
			keys.DELETE("/:service", keyController.DeleteKey)
		}
	}

	// WebSocket notifications
	router.GET("/ws/events", func(c *gin.Context) {
		deps.Hub.HandleWebSocket(c.Writer, c.Request)
	})
}
