package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/hongminglow/aria-characters/internal/config"
	"github.com/hongminglow/aria-characters/internal/storage/postgres"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply all pending migrations to the PostgreSQL database and exit.`,
		RunE:  runMigrate,
	}
	cmd.Flags().String("database-url", "", "PostgreSQL connection string")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Read(configFile, cmd.Flags())
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if cfg.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL is required")
	}

	cmd.Println("Connecting to database and running migrations...")
	store, err := postgres.New(cmd.Context(), postgres.Config{
		DatabaseURL:    cfg.DatabaseURL,
		ConnectTimeout: cfg.DBConnectTimeout,
	})
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	defer store.Close()

	cmd.Println("Migrations completed successfully")
	return nil
}
