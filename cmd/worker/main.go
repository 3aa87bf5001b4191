package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"voice2note-be/internal/bootstrap"
	"voice2note-be/internal/config"
	"voice2note-be/internal/tracer"
	"voice2note-be/pkg/database"

	"golang.org/x/sync/errgroup"
)

// The worker consumes stage events from a shared bus (nats or rabbitmq). Status changes
// reach API instances through the hub's redis channel.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer := tracer.InitTracer("voice2note-worker")
	defer func() { _ = shutdownTracer(context.Background()) }()

	cfg := config.Load()
	if cfg.Events.Bus == "" || cfg.Events.Bus == "memory" {
		log.Fatal("worker needs EVENT_BUS=nats or EVENT_BUS=rabbitmq; the memory bus runs inside the API process")
	}

	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection, database.DefaultPoolConfig)
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	container, err := bootstrap.NewContainer(ctx, gormDB, cfg)
	if err != nil {
		log.Panicf("Unable to bootstrap: %v", err)
	}
	defer container.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		container.Hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return container.RunWorker(gctx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		container.Logger.Error("Worker", "stopped", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}
