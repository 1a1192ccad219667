package main

import (
	"context"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/segments/api/handler"
	"github.com/fastygo/segments/internal/config"
	"github.com/fastygo/segments/internal/infrastructure/buffer"
	"github.com/fastygo/segments/internal/infrastructure/monitor"
	redisInfra "github.com/fastygo/segments/internal/infrastructure/redis"
	"github.com/fastygo/segments/internal/middleware"
	"github.com/fastygo/segments/internal/router"
	"github.com/fastygo/segments/internal/services"
	"github.com/fastygo/segments/internal/services/lifecycle"
	"github.com/fastygo/segments/internal/storage"
	"github.com/fastygo/segments/pkg/httpcontext"
	"github.com/fastygo/segments/pkg/logger"
	"github.com/fastygo/segments/repository"
	redisRepo "github.com/fastygo/segments/repository/redis"
	"github.com/fastygo/segments/usecase/access"
	"github.com/fastygo/segments/usecase/event"
	"github.com/fastygo/segments/usecase/revision"
	segmentUC "github.com/fastygo/segments/usecase/segment"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:       cfg.Logger.Level,
		Encoding:    cfg.Logger.Encoding,
		AppName:     cfg.AppName,
		Environment: cfg.Environment,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	store, err := storage.Open(appCtx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("database connection failed", zap.Error(err))
	}
	manager.Register("database", func(ctx context.Context) error {
		return store.Close()
	})

	redisClient, err := redisInfra.NewClient(appCtx, cfg.Redis, zapLogger)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	if redisClient != nil {
		manager.Register("redis", func(ctx context.Context) error {
			return redisClient.Close()
		})
	}

	bufferStore, err := buffer.Open(cfg.Buffer.Path, "outbox")
	if err != nil {
		zapLogger.Fatal("failed to open outbox", zap.Error(err))
	}
	manager.Register("outbox", func(ctx context.Context) error {
		return bufferStore.Close()
	})

	mon := monitor.New(monitor.Targets{
		Driver:   store.Driver,
		Database: store.Ping,
		Redis:    redisClient,
		Buffer:   bufferStore,
	}, 10*time.Second, zapLogger)
	mon.Refresh()
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	publisher := event.NewPublisher(zapLogger)
	publisher.SubscribeAll("audit", event.NewAuditLogger(zapLogger))

	var cache repository.SegmentCache
	if redisClient != nil {
		cache = redisRepo.NewSegmentCache(redisClient, cfg.Segments.CacheTTL)

		relay := services.NewEventRelay(
			bufferStore,
			redisRepo.NewEventChannel(redisClient, cfg.Redis.EventChannel),
			mon,
			zapLogger,
			services.RelayConfig{
				Interval:   cfg.Buffer.SyncInterval,
				BatchSize:  cfg.Buffer.BatchSize,
				MaxRetries: cfg.Buffer.MaxRetry,
				Retention:  time.Duration(cfg.Buffer.RetentionHours) * time.Hour,
			},
		)
		relay.Start()
		manager.Register("event_relay", func(ctx context.Context) error {
			relay.Stop(ctx)
			return nil
		})
		publisher.SubscribeAll("relay", services.NewRelayObserver(relay))
	}

	segmentUseCase := segmentUC.New(segmentUC.Deps{
		Segments:   store.Segments,
		Users:      store.Users,
		Transactor: store.Transactor,
		Recorder:   revision.New(store.Revisions, zapLogger),
		Events:     publisher,
		Policy:     access.NewRolePolicy(),
		Cache:      cache,
	}, segmentUC.Options{
		AllowPurge: cfg.Segments.AllowPhysicalDelete,
	}, zapLogger)

	if cfg.Segments.AllowPhysicalDelete {
		zapLogger.Warn("physical segment deletion is enabled")
	}

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Segment: apiHandler.NewSegmentHandler(segmentUseCase, store.Users, ctxAdapter, zapLogger),
		Health:  apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	authMiddleware := middleware.JWTAuth(cfg.JWT.Secret, cfg.JWT.Issuer, zapLogger)
	r := router.New(handlers, authMiddleware)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started",
			zap.String("address", cfg.Address()),
			zap.String("driver", store.Driver),
			zap.Bool("redis", redisClient != nil))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	zapLogger.Info("shutting down", zap.Strings("order", manager.Components()))
	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
