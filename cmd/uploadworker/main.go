// Package main is the entry point for the uploadworker binary: an asynq
// server consuming upload tasks, mirroring the teacher's cmd/worker.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/caseflow/bulkscan-processor/internal/blobstore"
	"github.com/caseflow/bulkscan-processor/internal/config"
	"github.com/caseflow/bulkscan-processor/internal/docstore"
	"github.com/caseflow/bulkscan-processor/internal/lease"
	"github.com/caseflow/bulkscan-processor/internal/logging"
	"github.com/caseflow/bulkscan-processor/internal/store"
	"github.com/caseflow/bulkscan-processor/internal/uploadworker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New("uploadworker")
	entry := logging.WithComponent(logger, "uploadworker")

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	envelopes := store.New(pool)

	minioClient, err := blobstore.NewMinioClient(cfg)
	if err != nil {
		log.Fatalf("init minio: %v", err)
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	leases := lease.NewManager(redisClient)
	var containers []string
	for container := range cfg.ContainerJurisdictions {
		containers = append(containers, container)
	}
	blobs := blobstore.New(cfg, minioClient, leases, containers)

	docs, err := docstore.New(ctx, cfg, minioClient)
	if err != nil {
		log.Fatalf("init document store: %v", err)
	}

	processor := uploadworker.NewProcessor(blobs, docs, envelopes, entry, cfg.SignatureAlgorithm, cfg.PublicKeyBase64, cfg.LeaseTTL)

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.ProcessingPool,
	})
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	entry.Info("uploadworker started")
	if err := server.Run(mux); err != nil {
		entry.WithError(err).Warn("uploadworker stopped")
		os.Exit(1)
	}
}
