// Command api serves the REST routes and the websocket, and runs the
// background hand-off dispatcher.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/ReceiptDrop/internal/api"
	"github.com/dharsanguruparan/ReceiptDrop/internal/auth"
	"github.com/dharsanguruparan/ReceiptDrop/internal/cache"
	"github.com/dharsanguruparan/ReceiptDrop/internal/config"
	"github.com/dharsanguruparan/ReceiptDrop/internal/database"
	"github.com/dharsanguruparan/ReceiptDrop/internal/extraction"
	"github.com/dharsanguruparan/ReceiptDrop/internal/notify"
	"github.com/dharsanguruparan/ReceiptDrop/internal/processing"
	"github.com/dharsanguruparan/ReceiptDrop/internal/queue"
	"github.com/dharsanguruparan/ReceiptDrop/internal/repository"
	"github.com/dharsanguruparan/ReceiptDrop/internal/s3storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := config.InitLogger(cfg.LogLevel)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api.stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pool, err := database.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	repo := repository.NewExtractionRepository(pool)

	store, err := s3storage.New(cfg.S3)
	if err != nil {
		return err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	jobs := queue.NewClient(queueClient, inspector, queue.Options{
		Queue:      cfg.Queue.Name,
		MaxRetry:   cfg.Queue.MaxRetry(),
		Retention:  cfg.Queue.Retention,
		CancelWait: cfg.Queue.CancelWait,
	})

	hub := notify.NewHub(logger)
	publisher := notify.NewPublisher(rdb, cfg.Notify.Channel, logger)
	relay := notify.NewRelay(rdb, cfg.Notify.Channel, hub, logger)

	dispatcher := processing.New(cfg.Dispatch.Workers, nil, logger)
	svc := extraction.NewService(extraction.Deps{
		Store:      repo,
		Objects:    store,
		Cache:      cache.NewImageCache(rdb, cfg.Cache.ImageTTL, logger),
		Jobs:       jobs,
		Notifier:   publisher,
		Dispatcher: dispatcher,
		Logger:     logger,
	}, extraction.Options{
		MaxBytes:     cfg.Upload.MaxBytes,
		AllowedTypes: cfg.Upload.AllowedTypes,
		KeyPrefix:    cfg.S3.KeyPrefix,
	})

	authSvc := auth.New(cfg.Auth)
	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.RouterDeps{
		Extractions: svc,
		Auth:        authSvc,
		Websocket:   notify.NewWSHandler(hub, authSvc, logger).Handle,
		MaxBytes:    cfg.Upload.MaxBytes,
		Logger:      logger,
	})
	srv := api.New(cfg.HTTP, router, logger)

	g, gctx := errgroup.WithContext(ctx)
	// Hand-offs outlive the signal; Shutdown drains them within its timeout.
	dispatcher.Start(context.WithoutCancel(ctx))
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return dispatcher.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
