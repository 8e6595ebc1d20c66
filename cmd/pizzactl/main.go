package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pizzeria-be/internal/config"
	"pizzeria-be/internal/db"
	"pizzeria-be/internal/logger"

	"github.com/spf13/cobra"
)

var openDBFunc = db.NewDatabase

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pizzactl",
		Short: "Administrative tasks for the pizzeria backend",
		Long: `pizzactl runs maintenance tasks against the configured store.

It reads the same environment (and .env file) as the server:
  migrate      - apply or roll back database migrations
  seed         - insert the default menu into an empty catalog
  clean-orders - delete every order
  stats        - print today's revenue and the top sellers`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(config.LoadConfig().AppEnv)
		},
	}

	root.AddCommand(
		newMigrateCmd(),
		newSeedCmd(),
		newCleanOrdersCmd(),
		newStatsCmd(),
	)
	return root
}

// openPostgres connects for commands that only make sense against the database.
func openPostgres(cfg *config.Config) (*sql.DB, error) {
	if cfg.StoreDriver != config.StoreDriverPostgres {
		return nil, fmt.Errorf("this command needs STORE_DRIVER=postgres (got %q)", cfg.StoreDriver)
	}
	return openDBFunc(cfg)
}
