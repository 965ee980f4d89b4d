package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leaderboard/internal/api/handlers"
	"leaderboard/internal/config"
	"leaderboard/internal/jobs"
	"leaderboard/internal/models"
	"leaderboard/internal/profile"
	"leaderboard/internal/repository"
	"leaderboard/internal/service"
	"leaderboard/internal/websocket"
	"leaderboard/internal/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// sweepTaskTimeout bounds a background sweep run by the worker pool
const sweepTaskTimeout = 2 * time.Minute

func main() {
	log, err := initLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(log)
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	log.Info("Configuration loaded",
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port),
		zap.String("profile_source", cfg.Profile.Source))

	db, err := initPostgres(cfg)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	log.Info("Connected to PostgreSQL")

	redisClient, err := initRedis(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	log.Info("Connected to Redis")

	postgresRepo := repository.NewPostgresRepository(db)
	badgeRepo := repository.NewBadgeRepository(db)
	redisRepo := repository.NewRedisRepository(redisClient)

	if err := postgresRepo.AutoMigrate(); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	log.Info("Database migrations completed")

	profiles, err := newProfileSource(cfg, db)
	if err != nil {
		log.Fatal("Failed to set up profile source", zap.Error(err))
	}

	workerPool := worker.NewPool(cfg.Leaderboard.WorkerCount, cfg.Leaderboard.WorkerQueueSize, sweepTaskTimeout, log)
	workerPool.Start()

	leaderboardService := service.NewLeaderboardService(service.Dependencies{
		Store:      postgresRepo,
		Badges:     badgeRepo,
		Profiles:   profiles,
		Cache:      redisRepo,
		Versions:   redisRepo,
		Dispatcher: workerPool,
	}, service.Options{
		TopN:           cfg.Leaderboard.TopN,
		CacheTTL:       cfg.Leaderboard.CacheTTL,
		StaleAfter:     cfg.Leaderboard.StaleAfter,
		ProfileTimeout: cfg.Leaderboard.ProfileTimeout,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := websocket.NewHub(redisRepo, websocket.DefaultPollInterval, log)
	go hub.Run(ctx)

	var scheduler *jobs.SweepScheduler
	if cfg.Leaderboard.SweepInterval > 0 {
		scheduler = jobs.NewSweepScheduler(leaderboardService, cfg.Leaderboard.SweepInterval, log)
		if err := scheduler.Start(); err != nil {
			log.Error("Failed to start sweep scheduler", zap.Error(err))
			scheduler = nil
		}
	}

	var sweepStats handlers.SweepStatsSource
	if scheduler != nil {
		sweepStats = scheduler
	}
	leaderboardHandler := handlers.NewLeaderboardHandler(leaderboardService, hub, log).
		WithRuntimeStats(workerPool, sweepStats)

	app := fiber.New(fiber.Config{
		AppName:      "Leaderboard Service",
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, X-User-ID, X-User-Role, X-Service-Token",
	}))

	if cfg.Server.ServiceToken == "" {
		log.Warn("SERVICE_TOKEN is not set, write endpoints accept any caller")
	}
	handlers.RegisterRoutes(app, leaderboardHandler, cfg.Server.ServiceToken)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Info("Shutting down server...")

		if scheduler != nil && scheduler.IsRunning() {
			if err := scheduler.Stop(); err != nil {
				log.Warn("Sweep scheduler shutdown error", zap.Error(err))
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Warn("Server forced to shutdown", zap.Error(err))
		}

		// queued sweeps and badge runs may be lost past the deadline
		if err := workerPool.Shutdown(30 * time.Second); err != nil {
			log.Warn("Worker pool shutdown error", zap.Error(err))
		}
		cancel()

		if err := postgresRepo.Close(); err != nil {
			log.Warn("Error closing PostgreSQL", zap.Error(err))
		}
		if err := redisRepo.Close(); err != nil {
			log.Warn("Error closing Redis", zap.Error(err))
		}

		log.Info("Server shutdown complete")
	}()

	log.Info("Server starting", zap.Int("port", cfg.Server.Port))
	if err := app.Listen(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}

// initLogger builds the structured logger for the current environment
func initLogger() (*zap.Logger, error) {
	var cfg zap.Config
	switch os.Getenv("GO_ENV") {
	case "production":
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "staging":
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// newProfileSource picks the authoritative points store
func newProfileSource(cfg *config.Config, db *gorm.DB) (profile.Source, error) {
	switch cfg.Profile.Source {
	case "http":
		return profile.NewHTTPSource(cfg.Profile.ServiceURL, cfg.Profile.ServiceToken, cfg.Leaderboard.ProfileTimeout)
	default:
		src := profile.NewGormSource(db)
		if err := src.AutoMigrate(); err != nil {
			return nil, err
		}
		return src, nil
	}
}

// initPostgres initializes PostgreSQL connection with connection pooling
func initPostgres(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// request handlers plus every pool worker may hold a connection
	maxOpen := cfg.Leaderboard.WorkerCount + 20
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// initRedis initializes Redis connection with connection pooling
func initRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.Redis.Username,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

// customErrorHandler handles errors globally
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	return c.Status(code).JSON(models.ErrorResponse{
		Error:   "Request failed",
		Message: err.Error(),
	})
}
