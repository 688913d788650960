package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garnizeh/experts/pkg/models"
)

// CreateClient inserts or replaces the credentials of an API client.
func (r *SQLiteRepo) CreateClient(ctx context.Context, c *models.APIClient) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if c.ClientID == "" || c.SecretHash == "" {
		return fmt.Errorf("client id and secret hash are required")
	}

	_, err := r.conn.Exec(ctx, `INSERT INTO api_clients (client_id, secret_hash, created) VALUES (?, ?, ?) ON CONFLICT(client_id) DO UPDATE SET secret_hash = excluded.secret_hash`, c.ClientID, c.SecretHash, now())
	return err
}

func (r *SQLiteRepo) GetClient(ctx context.Context, clientID string) (*models.APIClient, error) {
	row := r.conn.QueryRow(ctx, `SELECT client_id, secret_hash, created FROM api_clients WHERE client_id = ?`, clientID)
	var c models.APIClient
	if err := row.Scan(&c.ClientID, &c.SecretHash, &c.Created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return &c, nil
}

func (r *SQLiteRepo) DeleteClient(ctx context.Context, clientID string) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM api_clients WHERE client_id = ?`, clientID)
	return err
}
