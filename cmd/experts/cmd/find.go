package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/garnizeh/experts/internal/backend"
)

var findMaxBytes int64

var findCmd = &cobra.Command{
	Use:   "find <topic>",
	Short: "List the users who answered questions on a topic",
	Long: `List the users who answered questions whose tags contain <topic>,
one JSON object per line, ordered by number of answers.

The topic is matched as a literal, case-sensitive substring of the tags, so
"go" also matches "google-bigquery". The lookup is refused before it runs
when its estimated scan exceeds the cost ceiling.

Examples:
  experts find bigquery
  experts find bigquery --max-bytes 500000000`,
	Args: cobra.ExactArgs(1),
	RunE: runFind,
}

func init() {
	rootCmd.AddCommand(findCmd)

	findCmd.Flags().Int64Var(&findMaxBytes, "max-bytes", 0, "lower the configured cost ceiling for this lookup")
}

func runFind(cmd *cobra.Command, args []string) error {
	ceiling := cfg.Finder.CostCeilingBytes
	if findMaxBytes < 0 {
		return fmt.Errorf("--max-bytes must be positive, got %d", findMaxBytes)
	}
	if findMaxBytes > 0 {
		ceiling = min(findMaxBytes, ceiling)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Finder.Timeout)
	defer cancel()

	b, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	records, err := b.Finder.Find(ctx, args[0], ceiling)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
