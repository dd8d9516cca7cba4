// Package main is the entry point for the reportapi binary: the thin HTTP
// reporting surface over the Envelope & Event Store.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/caseflow/bulkscan-processor/internal/config"
	"github.com/caseflow/bulkscan-processor/internal/logging"
	"github.com/caseflow/bulkscan-processor/internal/reportapi"
	"github.com/caseflow/bulkscan-processor/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New("reportapi")
	entry := logging.WithComponent(logger, "reportapi")

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	envelopes := store.New(pool)

	srv := reportapi.New(envelopes, entry, cfg.ReportAPIAddress)
	entry.WithField("addr", cfg.ReportAPIAddress).Info("reportapi listening")
	if err := srv.Serve(ctx); err != nil {
		entry.WithError(err).Warn("reportapi stopped")
		os.Exit(1)
	}
}
