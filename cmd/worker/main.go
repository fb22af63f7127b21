// Command worker consumes extraction jobs from the asynq queue.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/dharsanguruparan/ReceiptDrop/internal/cache"
	"github.com/dharsanguruparan/ReceiptDrop/internal/config"
	"github.com/dharsanguruparan/ReceiptDrop/internal/database"
	"github.com/dharsanguruparan/ReceiptDrop/internal/inference"
	"github.com/dharsanguruparan/ReceiptDrop/internal/notify"
	"github.com/dharsanguruparan/ReceiptDrop/internal/queue"
	"github.com/dharsanguruparan/ReceiptDrop/internal/repository"
	"github.com/dharsanguruparan/ReceiptDrop/internal/s3storage"
	"github.com/dharsanguruparan/ReceiptDrop/internal/worker"
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
		logger.Error("worker.stopped", "error", err)
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

	processor := worker.NewProcessor(worker.Deps{
		Store:     repository.NewExtractionRepository(pool),
		Objects:   store,
		Cache:     cache.NewImageCache(rdb, cfg.Cache.ImageTTL, logger),
		Extractor: inference.New(cfg.Ollama, logger),
		Notifier:  notify.NewPublisher(rdb, cfg.Notify.Channel, logger),
		Logger:    logger,
	})

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, asynq.Config{
		Concurrency:     cfg.Queue.Concurrency,
		Queues:          map[string]int{cfg.Queue.Name: 1},
		RetryDelayFunc:  queue.RetryDelay(cfg.Queue.Backoff),
		ErrorHandler:    processor.ErrorHandler(),
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	})

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	logger.Info("worker.starting", "queue", cfg.Queue.Name, "concurrency", cfg.Queue.Concurrency, "model", cfg.Ollama.Model)
	return server.Run(processor.Handler())
}
