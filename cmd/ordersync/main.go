// Command ordersync runs order synchronisation jobs from the command line.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/bootstrap"
	"github.com/beautyops/backend/internal/infrastructure/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := newRootCmd(cfg, openStack).Execute(); err != nil {
		os.Exit(1)
	}
}

// openStack connects to the database and wires the same pipeline the server uses
func openStack(ctx context.Context, cfg *config.Config, log *zap.Logger) (syncService, func(), error) {
	db, err := bootstrap.OpenDatabase(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	stack, err := bootstrap.NewStack(ctx, cfg, bootstrap.Options{DB: db.DB, Logger: log})
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	release := func() {
		if err := stack.Close(context.Background()); err != nil {
			log.Warn("Error closing order sync resources", zap.Error(err))
		}
		if err := db.Close(); err != nil {
			log.Warn("Error closing database", zap.Error(err))
		}
		_ = log.Sync()
	}
	return stack.Orchestrator, release, nil
}
