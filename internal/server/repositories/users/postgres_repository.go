package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/medcert/internal/common"
	"github.com/dmitrijs2005/medcert/internal/dbx"
	"github.com/dmitrijs2005/medcert/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// roles are stored as a single comma-separated text column; empty string
// means no roles.
func joinRoles(roles []string) string {
	return strings.Join(roles, ",")
}

func splitRoles(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (email, password_hash, status, roles)
         VALUES ($1, $2, $3, $4)
		 RETURNING id
		 `

	status := user.Status
	if status == "" {
		status = models.StatusActive
	}

	err := r.db.QueryRowContext(ctx, query,
		user.Email, user.PasswordHash, status, joinRoles(user.Roles)).Scan(&user.ID)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	user.Status = status
	return user, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query :=
		`SELECT id, email, password_hash, status, roles FROM users
		 WHERE email = $1
		 `

	user := &models.User{}
	var roles string
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Status, &roles)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	user.Roles = splitRoles(roles)
	return user, nil
}

func (r *PostgresRepository) SetStatus(ctx context.Context, email string, status string) error {
	query :=
		`UPDATE users SET status = $2
		 WHERE email = $1
		 `

	res, err := r.db.ExecContext(ctx, query, email, status)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
