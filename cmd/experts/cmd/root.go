// Package cmd contains the experts CLI commands.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/garnizeh/experts/internal/config"
	"github.com/garnizeh/experts/internal/experts"
)

var (
	cfgFile      string
	databasePath string
	verbose      bool
	cfg          *config.Config
	logger       *slog.Logger
	version      = "dev"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "experts",
	Short: "Find the users who answer questions on a topic",
	Long: `experts queries Stack Overflow style question and answer tables for the
users who answered questions tagged with a topic, under a byte-scan ceiling.

Example usage:
  experts migrate --seed              # Create the local database with sample data
  experts find bigquery               # Experts on "bigquery"
  experts find go --max-bytes 1000000 # Refuse lookups scanning more than 1MB
  experts clients add reporting --secret s3cret
  experts backup experts-copy.db`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string for the CLI
func SetVersion(v string) {
	version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&databasePath, "database", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// initConfig loads the config file and environment and sets up logging.
func initConfig() error {
	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	experts.SetLogger(logger)

	var err error
	cfg, err = config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if databasePath != "" {
		cfg.DatabasePath = databasePath
	}
	if err := cfg.ValidateFinder(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Debug("configuration loaded",
		"database", cfg.DatabasePath,
		"backend", cfg.Finder.Backend,
		"cost_ceiling_bytes", cfg.Finder.CostCeilingBytes,
	)

	return nil
}
