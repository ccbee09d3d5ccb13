package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	docs "lookback/docs"
	appassets "lookback/internal/application/service/assets"
	apphistory "lookback/internal/application/service/history"
	"lookback/internal/config"
	interfaces "lookback/internal/domain/interfaces"
	infraassets "lookback/internal/infrastructure/assets"
	infrabars "lookback/internal/infrastructure/bars"
	"lookback/internal/infrastructure/broker"
	infracalendar "lookback/internal/infrastructure/calendar"
	"lookback/internal/infrastructure/checkpoint"
	infrahttp "lookback/internal/interfaces/http"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Host = cfg.HTTP.Addr()

	assetsRepo, err := infraassets.NewRepository(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("failed to init assets repo: %v", err)
	}
	defer assetsRepo.Close()

	barsRepo, err := infrabars.NewRepository(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("failed to init bars repo: %v", err)
	}
	defer barsRepo.Close()

	calendarRepo, err := infracalendar.NewRepository(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("failed to init calendar repo: %v", err)
	}
	defer calendarRepo.Close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var windowCheckpoint interfaces.WindowCheckpoint
	if redisClient != nil {
		windowCheckpoint = checkpoint.NewRedisStore(redisClient, 0)
	}

	assetsService := appassets.NewService(assetsRepo)
	historyService := apphistory.NewService(calendarRepo, barsRepo, apphistory.WallClock{}, windowCheckpoint, logger)
	if err := historyService.Restore(ctx); err != nil {
		logger.WithError(err).Warn("window checkpoint restore failed, continuing cold")
	}

	var consumer *broker.Consumer
	if cfg.RabbitMQ.URL != "" {
		consumer, err = broker.NewConsumer(cfg.RabbitMQ, historyService, barsRepo, logger)
		if err != nil {
			logger.Fatalf("failed to init bar consumer: %v", err)
		}
		if err := consumer.Start(ctx); err != nil {
			logger.Fatalf("failed to start bar consumer: %v", err)
		}
	} else {
		logger.Info("RABBITMQ_URL not set, serving from stored bars only")
	}

	cacheTTL := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	handler := infrahttp.NewHandler(assetsService, historyService, redisClient, cacheTTL)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: handler,
	}

	go func() {
		logger.Infof("HTTP server listening on %s", cfg.HTTP.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown error: %v", err)
	}
	if consumer != nil {
		if err := consumer.Close(shutdownCtx); err != nil {
			logger.Errorf("consumer shutdown error: %v", err)
		}
	}
	if err := historyService.Checkpoint(shutdownCtx); err != nil {
		logger.Errorf("window checkpoint save error: %v", err)
	}
	logger.Info("server stopped")
}
