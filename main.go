package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"finproof/config"
	"finproof/models"
	"finproof/routes"
	"finproof/scheduler"
	"finproof/services/analysis"
	"finproof/services/jobs"
	"finproof/services/marketdata"
	"finproof/services/notify"
	"finproof/services/strategy"
	"finproof/services/trading"

	"github.com/gin-gonic/gin"
)

// dbInitialized tracks whether the database has been initialized. It is
// read by the /ready endpoint while the background init goroutine writes
// it, hence the mutex.
var dbInitialized bool
var dbInitMutex sync.RWMutex

func main() {
	log.Println("==============================================")
	log.Println("  FinProof Analysis API - Starting...")
	log.Println("==============================================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	// Health endpoints are registered before any heavy initialization so
	// the platform can probe the process while the database comes up.
	setupHealthEndpoints(router)

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Initialize database, services and routes in the background. The
	// handles are published under svcMutex because the shutdown path reads
	// them from the main goroutine.
	var (
		svcMutex    sync.Mutex
		executor    *jobs.Executor
		maintenance *scheduler.Scheduler
		hub         *notify.Hub
		mongoCache  *marketdata.MongoCache
	)
	go func() {
		db, err := config.InitDB()
		if err != nil {
			log.Printf("ERROR: Database connection failed: %v", err)
			log.Println("Service will continue in limited mode (health check only)")
			return
		}

		log.Println("Running database migrations...")
		if err := runMigrations(); err != nil {
			log.Printf("ERROR: Migration failed: %v", err)
		} else {
			log.Println("Database migrations completed successfully")
		}

		cache, err := marketdata.NewMongoCache(cfg.MongoURI)
		if err != nil {
			log.Printf("MongoDB not configured or failed to connect: %v", err)
		}

		provider := marketdata.NewHTTPProvider(cfg.MarketDataBaseURL, cfg.NewsBaseURL, cache)
		registry := analysis.NewRegistry(analysis.Deps{News: provider, Research: provider})

		keys, err := config.NewAPIKeyManager(cfg.DataDir)
		if err != nil {
			log.Printf("Warning: API key manager unavailable: %v", err)
		}

		jobStore := jobs.NewStore(db, registry)
		strategyStore := strategy.NewStore(db)
		engine := strategy.NewEngine(strategyStore)
		bot := trading.NewBot(db, strategyStore)
		eventHub := notify.NewHub()

		exec := jobs.NewExecutor(jobStore, registry, provider, jobs.ExecutorOptions{
			Workers:      cfg.WorkerCount,
			PollInterval: cfg.PollInterval,
			MaxAttempts:  cfg.MaxAttempts,
			RetryBackoff: cfg.RetryBackoff,
			NLPTimeout:   cfg.NLPTimeout,
		})
		exec.OnComplete(func(job *models.Job, result *analysis.Result) {
			eventHub.NotifyJobCompleted(job, result)

			snapshot, err := provider.GetSnapshot(context.Background(), job.Symbol)
			if err != nil {
				log.Printf("No snapshot for %s, skipping decision: %v", job.Symbol, err)
				return
			}
			decision := engine.Evaluate(job.Symbol, result.Confidence, snapshot)
			decision.JobID = job.ID
			eventHub.NotifyDecision(decision)
			bot.HandleDecision(decision, snapshot)
		})
		exec.OnFail(func(job *models.Job, message string) {
			eventHub.NotifyJobFailed(job, message)
		})
		if err := exec.Start(); err != nil {
			log.Printf("ERROR: Failed to start job executor: %v", err)
		}

		dbInitMutex.Lock()
		dbInitialized = true
		dbInitMutex.Unlock()

		routes.SetupRoutes(router, routes.Deps{
			JobStore:      jobStore,
			Registry:      registry,
			StrategyStore: strategyStore,
			Bot:           bot,
			Provider:      provider,
			News:          provider,
			Hub:           eventHub,
			Keys:          keys,
		})

		sched := scheduler.NewScheduler(db, jobStore, cache)
		go sched.Start()

		svcMutex.Lock()
		executor = exec
		maintenance = sched
		hub = eventHub
		mongoCache = cache
		svcMutex.Unlock()

		log.Println("Application fully initialized with database")
	}()

	gracefulShutdown(server, func() {
		svcMutex.Lock()
		exec, sched, eventHub, cache := executor, maintenance, hub, mongoCache
		svcMutex.Unlock()

		if sched != nil {
			sched.Stop()
		}
		if exec != nil {
			exec.Stop()
		}
		if eventHub != nil {
			eventHub.Shutdown()
		}
		if cache != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			cache.Close(ctx)
			cancel()
		}
	})
}

// runMigrations runs all database migrations
func runMigrations() error {
	db := config.DB

	if err := models.MigrateJobModels(db); err != nil {
		return err
	}
	if err := models.MigrateStrategyModels(db); err != nil {
		return err
	}
	if err := models.MigrateTradingModels(db); err != nil {
		return err
	}
	return nil
}

// setupHealthEndpoints sets up liveness and readiness probes
func setupHealthEndpoints(router *gin.Engine) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "FinProof Analysis API",
			"version": "1.0.0",
		})
	})

	// Liveness probe, always OK while the process runs
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Readiness probe, checks the database connection
	router.GET("/ready", func(c *gin.Context) {
		dbInitMutex.RLock()
		isDBReady := dbInitialized
		dbInitMutex.RUnlock()

		if !isDBReady {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database not connected",
			})
			return
		}

		sqlDB, err := config.DB.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database connection error",
			})
			return
		}
		if err := sqlDB.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database ping failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})

	router.GET("/startup", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "started",
		})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for health checks to reduce noise
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" || path == "/startup" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		// Only log errors or slow requests
		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown waits for a termination signal, then stops background
// services before shutting the HTTP server down.
func gracefulShutdown(server *http.Server, stopServices func()) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	stopServices()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if config.DB != nil {
		sqlDB, err := config.DB.DB()
		if err == nil {
			sqlDB.Close()
			log.Println("Database connection closed")
		}
	}

	log.Println("Server shutdown completed")
}
