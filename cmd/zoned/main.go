package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/halcyongames/starhold/internal/app"
	"github.com/halcyongames/starhold/internal/bus"
	"github.com/halcyongames/starhold/internal/corp"
	"github.com/halcyongames/starhold/internal/gateway"
	"github.com/halcyongames/starhold/internal/manager"
	"github.com/halcyongames/starhold/internal/messaging"
	"github.com/halcyongames/starhold/internal/observability"
	"github.com/halcyongames/starhold/internal/ops"
	"github.com/halcyongames/starhold/internal/platform/cache"
	"github.com/halcyongames/starhold/internal/platform/db"
	"github.com/halcyongames/starhold/internal/succession"
	"github.com/halcyongames/starhold/internal/votes"
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
	publisher := bus.NewPublisher(redisClient)

	corpService := corp.NewService(corpRepo, corpRepo, nil, nil,
		messenger, publisher, infoCache, corp.ServiceConfig{
			Origin:           cfg.ZoneID,
			FreelancerCorpID: cfg.FreelancerCorpID,
			JoinCooldown:     cfg.JoinCooldown,
			LeaveDelay:       cfg.LeaveDelay,
			BaseMemberLimit:  cfg.BaseMemberLimit,
			MembersPerLevel:  cfg.MembersPerLevel,
		}, logger)

	metrics := observability.NewMetrics()

	handler := corp.NewHandler(corpRepo, logger)
	subscriber := bus.NewSubscriber(redisClient, cfg.ZoneID, handler, metrics, logger)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	invites := manager.NewInviteRegistry(cfg.InviteTTL, messenger, logger)
	mgr := manager.New(invites, corpService, jobsClient, redisClient, manager.Config{
		InviteSweepEvery: cfg.InviteSweepEvery,
		LeaveSweepEvery:  cfg.LeaveSweepEvery,
		RentCheckEvery:   cfg.RentCheckEvery,
		IncomeSweepEvery: cfg.IncomeSweepEvery,
		RentThrottle:     cfg.RentThrottle,
	}, logger)

	successionService := succession.NewService(succession.NewRepository(pool), corpRepo, corpRepo,
		nil, infoCache, messenger, succession.Config{
			Window:          cfg.VolunteerWindow,
			BaseMemberLimit: cfg.BaseMemberLimit,
			MembersPerLevel: cfg.MembersPerLevel,
		}, logger)
	voteService := votes.NewService(votes.NewRepository(pool), corpRepo, messenger, logger)

	gw := gateway.New(redisClient, cfg.ZoneID, corpService, corpRepo,
		successionService, voteService, invites, messenger, metrics, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	router := ops.NewRouter(ops.RouterParams{
		Logger:     logger,
		Info:       corp.NewInfoReader(infoCache, corpRepo),
		JobHandler: jobs.NewHandler(inspector, logger),
		Metrics:    metrics,
	})

	srv := &http.Server{
		Addr:         cfg.OpsAddr,
		Handler:      router,
		ReadTimeout:  cfg.OpsReadTimeout,
		WriteTimeout: cfg.OpsWriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return subscriber.Run(ctx)
	})

	g.Go(func() error {
		return gw.Run(ctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		last := time.Now()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now := <-ticker.C:
				mgr.Update(ctx, now.Sub(last))
				last = now
			}
		}
	})

	g.Go(func() error {
		logger.Info("ops server listening", slog.String("addr", cfg.OpsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("zone shutdown", slog.Any("error", err))
		os.Exit(1)
	}
}
