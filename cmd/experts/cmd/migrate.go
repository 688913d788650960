package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	dbfiles "github.com/garnizeh/experts/db"
	"github.com/garnizeh/experts/internal/db"
	"github.com/garnizeh/experts/internal/repository/sqlite"
)

var migrateSeed bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply the embedded schema migrations to the SQLite database. Applied
migrations are recorded and skipped on later runs.

With --seed, the sample questions and answers are loaded as well.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().BoolVar(&migrateSeed, "seed", false, "load sample posts after migrating")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	conn, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn, dbfiles.Migrations); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if migrateSeed {
		if err := db.Seed(ctx, conn, dbfiles.SeedFiles); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	questions, answers, err := sqlite.New(conn, logger).CountPosts(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date (%d questions, %d answers)\n", cfg.DatabasePath, questions, answers)
	return nil
}
