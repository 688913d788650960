package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garnizeh/experts/internal/db"
)

var backupCmd = &cobra.Command{
	Use:   "backup <dest>",
	Short: "Write a consistent copy of the SQLite database",
	Long: `Write a consistent, compacted copy of the SQLite database to <dest>.
The copy is taken with VACUUM INTO, so it is safe while the server runs.
<dest> must not exist.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := db.New(cmd.Context(), cfg.DatabasePath, logger)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := conn.Backup(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
}
