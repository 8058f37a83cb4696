package users

import (
	"context"

	"github.com/dmitrijs2005/medcert/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	SetStatus(ctx context.Context, email string, status string) error
}
