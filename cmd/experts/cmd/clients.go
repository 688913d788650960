package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	dbfiles "github.com/garnizeh/experts/db"
	"github.com/garnizeh/experts/internal/db"
	"github.com/garnizeh/experts/internal/repository/sqlite"
	"github.com/garnizeh/experts/pkg/models"
)

var clientSecret string

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Manage API clients",
	Long:  `Register and remove the clients allowed to request API tokens.`,
}

var clientsAddCmd = &cobra.Command{
	Use:   "add <client-id>",
	Short: "Register an API client or replace its secret",
	Args:  cobra.ExactArgs(1),
	RunE:  runClientsAdd,
}

var clientsRemoveCmd = &cobra.Command{
	Use:   "remove <client-id>",
	Short: "Remove an API client",
	Args:  cobra.ExactArgs(1),
	RunE:  runClientsRemove,
}

func init() {
	rootCmd.AddCommand(clientsCmd)
	clientsCmd.AddCommand(clientsAddCmd, clientsRemoveCmd)

	clientsAddCmd.Flags().StringVar(&clientSecret, "secret", "", "client secret (stored as a bcrypt hash)")
	_ = clientsAddCmd.MarkFlagRequired("secret")
}

func openRepo(cmd *cobra.Command) (*db.DB, *sqlite.SQLiteRepo, error) {
	conn, err := db.New(cmd.Context(), cfg.DatabasePath, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(cmd.Context(), conn, dbfiles.Migrations); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return conn, sqlite.New(conn, logger), nil
}

func runClientsAdd(cmd *cobra.Command, args []string) error {
	if clientSecret == "" {
		return errors.New("--secret must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(clientSecret), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash secret: %w", err)
	}

	conn, repo, err := openRepo(cmd)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := repo.CreateClient(cmd.Context(), &models.APIClient{ClientID: args[0], SecretHash: string(hash)}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "client %s registered\n", args[0])
	return nil
}

func runClientsRemove(cmd *cobra.Command, args []string) error {
	conn, repo, err := openRepo(cmd)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := repo.DeleteClient(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "client %s removed\n", args[0])
	return nil
}
