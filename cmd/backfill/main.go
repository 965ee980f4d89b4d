package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"leaderboard/internal/config"
	"leaderboard/internal/models"
	"leaderboard/internal/profile"
	"leaderboard/internal/repository"
	"leaderboard/internal/service"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// defaultBadges is the starter catalog written with -seed-badges
var defaultBadges = []models.BadgeDefinition{
	{Name: "Registration", Description: "Joined the platform", PointsRequired: intPtr(0), IsActive: true},
	{Name: "First Steps", Description: "Earned 10 points", PointsRequired: intPtr(10), IsActive: true},
	{Name: "Rising Star", Description: "Earned 100 points", PointsRequired: intPtr(100), IsActive: true},
	{Name: "Top Ten", Description: "Reached the top 10 of your leaderboard", RankRequired: intPtr(10), IsActive: true},
	{Name: "Champion", Description: "Reached first place", RankRequired: intPtr(1), IsActive: true},
}

func intPtr(v int) *int { return &v }

func main() {
	seedBadges := flag.Bool("seed-badges", false, "write the default badge catalog before backfilling")
	flag.Parse()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(log, *seedBadges); err != nil {
		log.Error("Backfill failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.Logger, seedBadges bool) error {
	cfg, err := config.Load(log)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Profile.Source != "db" {
		return fmt.Errorf("backfill reads the profiles table directly; PROFILE_SOURCE=%s is not supported", cfg.Profile.Source)
	}

	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return fmt.Errorf("connect to PostgreSQL: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	postgresRepo := repository.NewPostgresRepository(db)
	badgeRepo := repository.NewBadgeRepository(db)
	redisRepo := repository.NewRedisRepository(redisClient)
	profiles := profile.NewGormSource(db)
	defer func() {
		_ = postgresRepo.Close()
		_ = redisRepo.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if err := postgresRepo.Ping(ctx); err != nil {
		return fmt.Errorf("ping PostgreSQL: %w", err)
	}
	if err := postgresRepo.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := profiles.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate profiles: %w", err)
	}
	log.Info("Database migrations completed")

	if seedBadges {
		for i := range defaultBadges {
			if err := badgeRepo.Upsert(ctx, &defaultBadges[i]); err != nil {
				return fmt.Errorf("seed badge %s: %w", defaultBadges[i].Name, err)
			}
		}
		log.Info("Badge catalog seeded", zap.Int("badges", len(defaultBadges)))
	}

	all, err := profiles.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}
	log.Info("Backfilling leaderboard", zap.Int("profiles", len(all)))

	svc := service.NewLeaderboardService(service.Dependencies{
		Store:    postgresRepo,
		Badges:   badgeRepo,
		Profiles: profiles,
		Cache:    redisRepo,
		Versions: redisRepo,
	}, service.Options{
		TopN:           cfg.Leaderboard.TopN,
		CacheTTL:       cfg.Leaderboard.CacheTTL,
		StaleAfter:     cfg.Leaderboard.StaleAfter,
		ProfileTimeout: cfg.Leaderboard.ProfileTimeout,
	}, log)

	start := time.Now()
	written, err := svc.Backfill(ctx, all)
	if err != nil {
		return err
	}

	for _, role := range models.Roles() {
		count, err := postgresRepo.CountByRole(ctx, role)
		if err != nil {
			return fmt.Errorf("count %s entries: %w", role, err)
		}
		log.Info("Role ranked", zap.String("role", role.String()), zap.Int64("entries", count))
	}

	log.Info("Backfill completed", zap.Int("written", written), zap.Duration("took", time.Since(start)))
	return nil
}
