package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/trash2cash/trash2cash-api/internal/repository"
	"github.com/trash2cash/trash2cash-api/internal/service"
	"github.com/trash2cash/trash2cash-api/pkg/config"
	"github.com/trash2cash/trash2cash-api/pkg/database"
	"github.com/trash2cash/trash2cash-api/pkg/logger"
)

func main() {
	var timeout time.Duration
	flag.DurationVar(&timeout, "timeout", time.Minute, "overall seed timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Env == config.EnvProduction {
		log.Fatalf("refusing to seed demo data in %s", cfg.Env)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("connect postgres", "error", err)
	}
	defer db.Close()

	seeder := service.NewSeedService(
		repository.NewUserRepository(db),
		repository.NewVoucherRepository(db),
		repository.NewZoneRepository(db),
		repository.NewChallengeRepository(db),
		logr,
	)
	report, err := seeder.Run(ctx, cfg.Seed.DemoPassword)
	if err != nil {
		logr.Sugar().Fatalw("seed failed", "error", err)
	}
	logr.Sugar().Infow("demo data ready",
		"users_created", report.UsersCreated,
		"users_existing", report.UsersSkipped,
		"vouchers", report.Vouchers,
		"zones", report.Zones,
		"challenges", report.Challenges,
	)
}
