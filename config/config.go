package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port        string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	SQLitePath  string
	JWTSecret   string
	DataDir     string
	MongoURI    string
	Environment string

	// Executor tuning
	WorkerCount  int
	PollInterval time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	NLPTimeout   time.Duration

	// Market data
	MarketDataBaseURL string
	NewsBaseURL       string
}

var AppConfig *Config
var DB *gorm.DB

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		DBHost:      getEnv("DB_HOST", ""),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", ""),
		DBName:      getEnv("DB_NAME", "finproof_db"),
		SQLitePath:  getEnv("SQLITE_PATH", "data/finproof.db"),
		JWTSecret:   getEnv("JWT_SECRET", "dev-secret-change-me"),
		DataDir:     getEnv("DATA_DIR", "data"),
		MongoURI:    getEnv("MONGODB_URI", ""),
		Environment: getEnv("ENVIRONMENT", "development"),

		WorkerCount:  getEnvInt("EXECUTOR_WORKERS", 4),
		PollInterval: getEnvDuration("EXECUTOR_POLL_INTERVAL", 2*time.Second),
		MaxAttempts:  getEnvInt("EXECUTOR_MAX_ATTEMPTS", 3),
		RetryBackoff: getEnvDuration("EXECUTOR_RETRY_BACKOFF", 5*time.Second),
		NLPTimeout:   getEnvDuration("NLP_MODULE_TIMEOUT", 45*time.Second),

		MarketDataBaseURL: getEnv("MARKET_DATA_BASE_URL", "https://query1.finance.yahoo.com"),
		NewsBaseURL:       getEnv("NEWS_BASE_URL", "https://query1.finance.yahoo.com"),
	}

	if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	AppConfig = config
	return config, nil
}

// InitDB initializes the database connection. Postgres is used when DB_HOST
// is configured; otherwise the service falls back to a local sqlite file so
// development and tests need no external database.
func InitDB() (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Warn
	}
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	var db *gorm.DB
	var err error

	if AppConfig.DBHost != "" {
		log.Printf("Connecting to database: host=%s port=%s user=%s dbname=%s",
			maskHost(AppConfig.DBHost),
			AppConfig.DBPort,
			AppConfig.DBUser,
			AppConfig.DBName,
		)

		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=require TimeZone=UTC",
			AppConfig.DBHost,
			AppConfig.DBUser,
			AppConfig.DBPassword,
			AppConfig.DBName,
			AppConfig.DBPort,
		)
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	} else {
		log.Printf("DB_HOST not set, using sqlite at %s", AppConfig.SQLitePath)
		dsn := fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL", AppConfig.SQLitePath)
		db, err = gorm.Open(sqlite.Open(dsn), gormCfg)
	}

	if err != nil {
		log.Printf("Database connection error: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Printf("Database connection verified successfully")
	DB = db
	return db, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}
