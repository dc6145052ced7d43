package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/halcyongames/starhold/internal/app"
	"github.com/halcyongames/starhold/internal/corp"
	"github.com/halcyongames/starhold/internal/hangar"
	"github.com/halcyongames/starhold/internal/messaging"
	"github.com/halcyongames/starhold/internal/platform/cache"
	"github.com/halcyongames/starhold/internal/platform/db"
	"github.com/halcyongames/starhold/internal/succession"
	"github.com/halcyongames/starhold/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	corpRepo := corp.NewRepository(pool)
	infoCache := corp.NewInfoCache(redisClient, 10*time.Minute)
	messenger := messaging.NewRedisOutbox(redisClient)

	hangarRepo := hangar.NewRepository(pool)
	billing := hangar.NewBilling(hangarRepo, hangarRepo, messenger, cfg.RentPeriod, logger)

	successionRepo := succession.NewRepository(pool)
	successionService := succession.NewService(successionRepo, corpRepo, corpRepo,
		nil, infoCache, messenger, succession.Config{
			Window:          cfg.VolunteerWindow,
			BaseMemberLimit: cfg.BaseMemberLimit,
			MembersPerLevel: cfg.MembersPerLevel,
		}, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRentBilling, Handler: jobs.HandleRentBilling(billing)},
			{Type: jobs.TaskSuccessionSweep, Handler: jobs.HandleSuccessionSweep(successionService, logger)},
			{Type: jobs.TaskIncomeSweep, Handler: jobs.HandleIncomeSweep(corpRepo, logger)},
		},
		Cron: []jobs.CronRegistration{
			{
				Spec:    "*/10 * * * *",
				Task:    asynq.NewTask(jobs.TaskSuccessionSweep, nil),
				Options: []asynq.Option{asynq.MaxRetry(1)},
			},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
