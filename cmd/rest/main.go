package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice2note-be/internal/bootstrap"
	"voice2note-be/internal/config"
	"voice2note-be/internal/server"
	"voice2note-be/internal/tracer"
	"voice2note-be/pkg/database"

	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 0. Tracing, off unless OTEL_ENABLED=true
	shutdownTracer := tracer.InitTracer("voice2note-api")
	defer func() { _ = shutdownTracer(context.Background()) }()

	// 1. Configuration
	cfg := config.Load()

	// 2. Management database
	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection, database.DefaultPoolConfig)
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	// 3. Dependencies
	container, err := bootstrap.NewContainer(ctx, gormDB, cfg)
	if err != nil {
		log.Panicf("Unable to bootstrap: %v", err)
	}
	defer container.Close()

	srv := server.New(cfg, container)

	// 4. Server, status hub and, for the in-process bus, the pipeline worker
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		container.Hub.Run(gctx)
		return nil
	})
	g.Go(srv.Run)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.Events.Bus == "" || cfg.Events.Bus == "memory" {
		g.Go(func() error {
			return container.RunWorker(gctx)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		container.Logger.Error("Main", "stopped", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}
