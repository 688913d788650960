package repository

import (
	"context"

	"github.com/garnizeh/experts/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.

type ClientRepo interface {
	CreateClient(ctx context.Context, c *models.APIClient) error
	GetClient(ctx context.Context, clientID string) (*models.APIClient, error)
	DeleteClient(ctx context.Context, clientID string) error
}

type PostRepo interface {
	CreateQuestion(ctx context.Context, q *models.Question) (int64, error)
	CreateAnswer(ctx context.Context, a *models.Answer) (int64, error)
	CountPosts(ctx context.Context) (questions, answers int64, err error)
}
