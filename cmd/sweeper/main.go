// Package main is the entry point for the sweeper binary: the Completion
// Sweeper, run on a cron schedule against every configured container.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/caseflow/bulkscan-processor/internal/blobstore"
	"github.com/caseflow/bulkscan-processor/internal/config"
	"github.com/caseflow/bulkscan-processor/internal/lease"
	"github.com/caseflow/bulkscan-processor/internal/logging"
	"github.com/caseflow/bulkscan-processor/internal/store"
	"github.com/caseflow/bulkscan-processor/internal/sweeper"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New("sweeper")
	entry := logging.WithComponent(logger, "sweeper")

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

	sweep := sweeper.New(blobs, envelopes, entry, cfg.SweeperGracePeriod)

	c := cron.New()
	spec := "@every " + cfg.SweeperInterval.String()
	if _, err := c.AddFunc(spec, func() { sweep.Tick(ctx) }); err != nil {
		log.Fatalf("schedule sweeper: %v", err)
	}
	c.Start()
	entry.WithField("interval", cfg.SweeperInterval).Info("sweeper started")

	<-ctx.Done()
	<-c.Stop().Done()
}
