package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config holds all configuration for the application
type Config struct {
	Environment string
	Database    DatabaseConfig
	Redis       RedisConfig
	Server      ServerConfig
	Leaderboard LeaderboardConfig
	Profile     ProfileConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	DB       int
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         int
	ServiceToken string // required from internal callers of the write endpoints
}

// LeaderboardConfig tunes the ranking engine
type LeaderboardConfig struct {
	CacheTTL        time.Duration // lifetime of the cached top-N snapshot
	TopN            int           // entries per role in the snapshot
	StaleAfter      time.Duration // entries verified longer ago than this are swept
	SweepInterval   time.Duration // scheduled sweep period, 0 disables it
	ProfileTimeout  time.Duration // bound on every profile source call
	WorkerCount     int
	WorkerQueueSize int
}

// ProfileConfig selects where authoritative points are read from
type ProfileConfig struct {
	Source       string // "db" or "http"
	ServiceURL   string
	ServiceToken string
}

// Load loads configuration from environment variables
func Load(logger *zap.Logger) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Load .env file from root directory (parent of the binary dir)
	if err := godotenv.Load("../.env"); err != nil {
		// Try loading from current directory as fallback
		if err := godotenv.Load(); err != nil {
			logger.Info("No .env file found, using environment variables")
		}
	}

	cfg := &Config{
		Environment: getEnv("GO_ENV", "development"),
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "leaderboard"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Username: getEnv("REDIS_USERNAME", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port:         getEnvAsInt("BACKEND_PORT", 8000),
			ServiceToken: getEnv("SERVICE_TOKEN", ""),
		},
		Leaderboard: LeaderboardConfig{
			CacheTTL:        getEnvAsDuration("CACHE_TTL", 60*time.Second),
			TopN:            getEnvAsInt("TOP_N", 100),
			StaleAfter:      getEnvAsDuration("SWEEP_STALE_AFTER", 5*time.Minute),
			SweepInterval:   getEnvAsDuration("SWEEP_INTERVAL", 5*time.Minute),
			ProfileTimeout:  getEnvAsDuration("PROFILE_TIMEOUT", 3*time.Second),
			WorkerCount:     getEnvAsInt("WORKER_COUNT", 4),
			WorkerQueueSize: getEnvAsInt("WORKER_QUEUE_SIZE", 256),
		},
		Profile: ProfileConfig{
			Source:       getEnv("PROFILE_SOURCE", "db"),
			ServiceURL:   getEnv("PROFILE_SERVICE_URL", ""),
			ServiceToken: getEnv("PROFILE_SERVICE_TOKEN", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	if c.Leaderboard.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %v", c.Leaderboard.CacheTTL)
	}
	if c.Leaderboard.TopN <= 0 {
		return fmt.Errorf("TOP_N must be positive, got %d", c.Leaderboard.TopN)
	}
	if c.Leaderboard.StaleAfter <= 0 {
		return fmt.Errorf("SWEEP_STALE_AFTER must be positive, got %v", c.Leaderboard.StaleAfter)
	}
	if c.Leaderboard.WorkerCount <= 0 || c.Leaderboard.WorkerQueueSize <= 0 {
		return fmt.Errorf("WORKER_COUNT and WORKER_QUEUE_SIZE must be positive")
	}
	if c.Environment == "production" && c.Server.ServiceToken == "" {
		return fmt.Errorf("SERVICE_TOKEN is required when GO_ENV=production")
	}
	switch c.Profile.Source {
	case "db":
	case "http":
		if c.Profile.ServiceURL == "" {
			return fmt.Errorf("PROFILE_SERVICE_URL is required when PROFILE_SOURCE=http")
		}
	default:
		return fmt.Errorf("unknown PROFILE_SOURCE %q", c.Profile.Source)
	}
	return nil
}

// GetDSN returns the PostgreSQL DSN
func (c *Config) GetDSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("90s") or plain seconds ("90")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
