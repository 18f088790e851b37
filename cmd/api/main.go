package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"portfolio/internal/audit"
	"portfolio/internal/cache"
	"portfolio/internal/config"
	"portfolio/internal/database"
	"portfolio/internal/handlers"
	"portfolio/internal/jobs"
	"portfolio/internal/log"
	"portfolio/internal/repository"
	"portfolio/internal/security"
	"portfolio/internal/server"
	"portfolio/internal/service"
	"portfolio/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.WithComponent(log.New(cfg.Environment), "api")

	ctx := context.Background()

	if cfg.Postgres.AutoMigrate {
		if err := database.MigrateUp(cfg.Postgres.DSN, logger); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply migrations")
		}
	}

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBuckets(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure buckets failed")
	}

	issuer, err := security.NewTokenIssuer(cfg.Security)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid token configuration")
	}

	userRepo := repository.NewUserRepository(dbPool)
	tokenRepo := repository.NewRefreshTokenRepository(dbPool)
	messageRepo := repository.NewMessageRepository(dbPool)
	recorder := audit.NewRecorder(repository.NewAuditRepository(dbPool), logger)
	throttle := cache.NewLoginThrottle(redisClient, cfg.Security.LoginMaxAttempts, cfg.Security.LoginWindow)
	jobQueue := jobs.NewQueue(redisClient, cfg.Redis.Stream)

	handlerSet := handlers.NewHandlerSet(logger, cfg, handlers.Deps{
		Tokens:     issuer,
		Principals: userRepo,
		Auth:       service.NewAuthService(userRepo, tokenRepo, issuer, throttle, recorder, logger),
		Users:      service.NewUserService(userRepo, tokenRepo, recorder, logger),
		Messages:   service.NewMessageService(messageRepo, recorder, logger),
		Avatars:    service.NewAvatarService(userRepo, objectStore, jobQueue, recorder, cfg.Storage, logger),
		Audit:      recorder,
		DB:         userRepo,
		Cache: handlers.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(jobQueue, cfg.Jobs.PurgeSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop()

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
