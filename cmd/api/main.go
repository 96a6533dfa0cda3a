package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/cembakir/veriflow/internal/broadcast"
	"github.com/cembakir/veriflow/internal/cache"
	"github.com/cembakir/veriflow/internal/config"
	"github.com/cembakir/veriflow/internal/events"
	"github.com/cembakir/veriflow/internal/handler"
	"github.com/cembakir/veriflow/internal/infra/postgresql"
	"github.com/cembakir/veriflow/internal/infra/postgresql/migrations"
	infraredis "github.com/cembakir/veriflow/internal/infra/redis"
	"github.com/cembakir/veriflow/internal/observability"
	"github.com/cembakir/veriflow/internal/quota"
	"github.com/cembakir/veriflow/internal/repository"
	"github.com/cembakir/veriflow/internal/service"
	"github.com/cembakir/veriflow/internal/transport"
	"github.com/cembakir/veriflow/internal/upstream"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
)

const retryEventBuffer = 64

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		rabbit, err := events.NewRabbitMQPublisher(cfg.RabbitMQURL)
		if err != nil {
			logger.Fatal("rabbitmq initialization failed", zap.Error(err))
		}
		publisher = rabbit
	}
	defer publisher.Close()

	metrics := observability.NewMetrics()

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	verifier, err := upstream.NewClient(cfg.VerifyAPIURL, cfg.VerifyAPIKey, cfg.MaxVerifyAttempts)
	if err != nil {
		logger.Fatal("verification client initialization failed", zap.Error(err))
	}

	retryEvents := make(chan upstream.RetryEvent, retryEventBuffer)
	verifier.SetRetryEvents(retryEvents)
	go func() {
		for ev := range retryEvents {
			metrics.IncUpstreamRetry("all")
			logger.Info("upstream retry",
				zap.String("item", ev.Item),
				zap.Int("attempt", ev.Attempt),
				zap.Duration("delay", ev.Delay),
				zap.Error(ev.Err),
			)
		}
	}()

	batchRepo := repository.NewGormBatchRepo(db)
	cacheStore := cache.NewStore(repository.NewGormCacheRepo(db), cfg.CacheTTL(), logger)
	ledger := quota.NewLedger(repository.NewGormQuotaRepo(db), logger)

	engine, err := service.NewEngine(service.EngineDeps{
		Batches:     batchRepo,
		Cache:       cacheStore,
		Quota:       ledger,
		Verifier:    verifier,
		Classifier:  upstream.NewDefaultClassifier(),
		Limiter:     limiter,
		Broadcaster: broadcast.NewBroadcaster(),
		Events:      publisher,
		Metrics:     metrics,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("engine initialization failed", zap.Error(err))
	}
	engine.SetInterCallDelay(cfg.InterCallDelay())

	app := fiber.New(fiber.Config{
		AppName:      "veriflow",
		ErrorHandler: transport.ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterBatchRoutes(app, engine); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}
	handler.RegisterProgressRoutes(app, engine.Broadcaster(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Interrupted batches from a previous process are picked up in the
	// background once the server is accepting traffic.
	go func() {
		if err := engine.ResumeIncomplete(ctx, cfg.ResumeConcurrency); err != nil {
			logger.Error("boot resume failed", zap.Error(err))
		}
	}()

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	logger.Info("veriflow api started", zap.Int("port", cfg.APIPort))

	<-ctx.Done()
	logger.Info("shutdown signal received, draining active batches")

	engine.BeginShutdown()

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
	defer cancel()
	if err := engine.WaitIdle(drainCtx); err != nil {
		logger.Warn("drain window expired with batches still active",
			zap.Int("active", len(engine.ActiveRuns())),
			zap.Error(err),
		)
	}

	if err := app.Shutdown(); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	logger.Info("veriflow api stopped")
}
