// Package main is the entry point for the uploadenqueue binary: a
// cron-driven poller that finds envelopes awaiting upload and enqueues one
// asynq task per envelope, mirroring the teacher's cmd/server enqueue side.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"

	"github.com/caseflow/bulkscan-processor/internal/config"
	"github.com/caseflow/bulkscan-processor/internal/logging"
	"github.com/caseflow/bulkscan-processor/internal/store"
	"github.com/caseflow/bulkscan-processor/internal/uploadqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New("uploadenqueue")
	entry := logging.WithComponent(logger, "uploadenqueue")

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	envelopes := store.New(pool)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()

	tick := func() {
		candidates, err := envelopes.FindUploadCandidates(ctx, cfg.MaxUploadFailures, cfg.ProcessingPool*4)
		if err != nil {
			entry.WithError(err).Error("find upload candidates")
			return
		}
		for _, env := range candidates {
			if err := uploadqueue.EnqueueUpload(ctx, asynqClient, env.ID, 3); err != nil {
				entry.WithError(err).WithField("envelope_id", env.ID).Error("enqueue upload task")
			}
		}
	}

	c := cron.New()
	spec := "@every " + cfg.UploaderInterval.String()
	if _, err := c.AddFunc(spec, tick); err != nil {
		log.Fatalf("schedule uploader: %v", err)
	}
	c.Start()
	entry.WithField("interval", cfg.UploaderInterval).Info("uploadenqueue started")

	<-ctx.Done()
	<-c.Stop().Done()
}
