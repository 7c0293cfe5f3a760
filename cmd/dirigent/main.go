package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"dirigent/internal/config"
	"dirigent/internal/logging"
)

var (
	// Global flags
	configPath  string
	workersPath string
	dbPath      string
	debug       bool

	cfg config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dirigent",
	Short: "dirigent - directive coordination engine",
	Long: `dirigent turns unreliable free-form generator output into verified work.

It extracts structured directives from each generator turn, normalizes their
parameters against declared contracts, routes them to capability-bounded
workers, audits the results against observable ground truth, and retries
with corrective context until the task completes or the iteration bound
forces escalation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Provider keys may live in a local .env during development.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if debug {
			cfg.Logging.Debug = true
		}
		if dbPath != "" {
			cfg.Store.Path = dbPath
		}
		if err := logging.Initialize(cfg.Logging.Debug); err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (YAML)")
	rootCmd.PersistentFlags().StringVarP(&workersPath, "workers", "w", "workers.yaml", "worker and target definitions file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite session archive path (empty disables persistence)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(workersCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
