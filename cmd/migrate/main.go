package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"

	"voice2note-be/internal/config"
	"voice2note-be/internal/pkg/logger"
	"voice2note-be/internal/repository/tenantstore"
	"voice2note-be/internal/tenant"
	"voice2note-be/pkg/database"

	"github.com/fatih/color"
)

// Usage:
//
//	migrate                      create the management schema only
//	migrate tenant_1 tenant_7    also provision the listed tenants
//	migrate -tenant 3            provision by numeric id
func main() {
	tenantFlag := flag.Int64("tenant", 0, "numeric tenant id to provision")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Load()
	log := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	defer func() { _ = log.Sync() }()

	color.Cyan("Connecting to management database...")
	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, database.DefaultPoolConfig)
	if err != nil {
		color.Red("Unable to connect: %v", err)
		os.Exit(1)
	}

	provisioner := tenantstore.NewProvisioner(db, log)
	if err := provisioner.Bootstrap(ctx); err != nil {
		color.Red("Management schema failed: %v", err)
		os.Exit(1)
	}
	color.Green("Management schema ready")

	ids, err := tenantsFromArgs(*tenantFlag, flag.Args())
	if err != nil {
		color.Red("%v", err)
		os.Exit(2)
	}

	failed := 0
	for _, id := range ids {
		color.Yellow("Provisioning %s", id)
		if err := provisioner.Provision(ctx, id); err != nil {
			color.Red("  %s: %v", id, err)
			failed++
			continue
		}
		color.Green("  %s ready", id)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func tenantsFromArgs(n int64, refs []string) ([]tenant.ID, error) {
	var ids []tenant.ID
	if n != 0 {
		id, err := tenant.FromInt(n)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	for _, ref := range refs {
		id, err := tenant.ParseRef(strings.TrimSpace(ref))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
