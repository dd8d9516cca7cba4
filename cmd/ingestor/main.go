// Package main is the entry point for the ingestor binary: the Ingestion
// Coordinator, run on a cron schedule against every configured container.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/caseflow/bulkscan-processor/internal/blobstore"
	"github.com/caseflow/bulkscan-processor/internal/config"
	"github.com/caseflow/bulkscan-processor/internal/coordinator"
	"github.com/caseflow/bulkscan-processor/internal/envelope"
	"github.com/caseflow/bulkscan-processor/internal/lease"
	"github.com/caseflow/bulkscan-processor/internal/logging"
	"github.com/caseflow/bulkscan-processor/internal/notify"
	"github.com/caseflow/bulkscan-processor/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New("ingestor")
	entry := logging.WithComponent(logger, "ingestor")

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	if err := store.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
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
	if _, err := blobs.ListContainers(ctx); err != nil {
		log.Fatalf("ensure containers: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()
	notifier := notify.New(asynqClient, entry, cfg.TestContainers)

	builder := envelope.New(cfg.ContainerJurisdictions)
	coord := coordinator.New(blobs, envelopes, builder, notifier, entry, cfg.SignatureAlgorithm, cfg.PublicKeyBase64, cfg.LeaseTTL, cfg.BlobProcessingDelay)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	spec := "@every " + cfg.CoordinatorInterval.String()
	if _, err := c.AddFunc(spec, func() { coord.Tick(ctx) }); err != nil {
		log.Fatalf("schedule coordinator: %v", err)
	}
	c.Start()
	entry.WithField("interval", cfg.CoordinatorInterval).Info("ingestor started")

	<-ctx.Done()
	<-c.Stop().Done()
}
