package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/garnizeh/experts/internal/db"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <src>",
	Short: "Replace the SQLite database with a backup",
	Long: `Replace the configured SQLite database with the backup at <src>.
The backup is integrity-checked and copied next to the database first, then
moved into place, so a failed restore leaves the current database intact.
Stop the server before restoring.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

// backupTables must all exist in a file before it may replace the database.
var backupTables = []string{"schema_migrations", "posts_questions", "posts_answers", "api_clients"}

func init() {
	rootCmd.AddCommand(restoreCmd)
}

func requireTables(cmd *cobra.Command, conn *db.DB, names ...string) error {
	for _, name := range names {
		var n int
		err := conn.QueryRow(cmd.Context(), "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
		if err != nil {
			return fmt.Errorf("inspect schema: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("not an experts database: table %s is missing", name)
		}
	}
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	src := args[0]
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("backup %s: %w", src, err)
	}

	conn, err := db.New(ctx, src, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	var result string
	if err := conn.QueryRow(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("backup %s failed integrity check: %s", src, result)
	}
	if err := requireTables(cmd, conn, backupTables...); err != nil {
		return fmt.Errorf("backup %s: %w", src, err)
	}

	tmp := filepath.Join(filepath.Dir(cfg.DatabasePath), "."+filepath.Base(cfg.DatabasePath)+".restore")
	_ = os.Remove(tmp)
	if err := conn.Backup(ctx, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, cfg.DatabasePath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace database: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "database %s restored from %s\n", cfg.DatabasePath, src)
	return nil
}
