package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nemaec/nemaec-engine/pkg/config"
	"github.com/nemaec/nemaec-engine/pkg/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	configPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "nemaec-engine",
		Short: "Construction schedule backend for police facility works",
		Long: `nemaec-engine tracks valorized work schedules for police facilities:
it imports schedule spreadsheets as versions, rolls budgets up the item
hierarchy and reports what changed between versions.`,
		SilenceUsage: true,
	}
)

func init() {
	// Money goes out as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd, migrateCmd, inspectCmd, diffCmd)
}

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadRuntime reads configuration and builds the process logger.
func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFrom(configPath, Version)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.NewLogger(cfg.Env, debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}
