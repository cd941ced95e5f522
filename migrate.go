package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nemaec/nemaec-engine/pkg/config"
	"github.com/nemaec/nemaec-engine/pkg/database"
)

var (
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			return migrate(cfg, logger)
		},
	}

	migrateDownCmd = &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back the last migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			db, err := database.OpenSQL(cfg.Database.ConnectionString())
			if err != nil {
				return err
			}
			return database.RollbackMigrations(db, cfg.Database.MigrationsPath, steps, logger)
		},
	}

	migrateVersionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			db, err := database.OpenSQL(cfg.Database.ConnectionString())
			if err != nil {
				return err
			}
			version, dirty, err := database.MigrationVersion(db, cfg.Database.MigrationsPath, logger)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %v)\n", version, dirty)
			return err
		},
	}
)

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

// migrate applies pending migrations from the configured path.
func migrate(cfg *config.Config, logger *zap.Logger) error {
	db, err := database.OpenSQL(cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	logger.Info("Running migrations", zap.String("path", cfg.Database.MigrationsPath))
	return database.RunMigrations(db, cfg.Database.MigrationsPath, logger)
}
