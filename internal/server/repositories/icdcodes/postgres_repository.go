package icdcodes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

func (r *PostgresRepository) Upsert(ctx context.Context, entry *models.IcdCode) error {

	query :=
		`INSERT INTO icd_codes (code, title, version, release, last_fetched_at)
         VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (code, version)
		 DO UPDATE SET title = EXCLUDED.title, release = EXCLUDED.release, last_fetched_at = now()
		 `

	_, err := r.db.ExecContext(ctx, query,
		entry.Code, entry.Title, entry.Version, entry.Release)

	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetByCode(ctx context.Context, code string, version string) (*models.IcdCode, error) {
	query :=
		`SELECT code, title, version, release, last_fetched_at FROM icd_codes
		 WHERE code = $1 AND version = $2
		 `

	entry := &models.IcdCode{}
	err := r.db.QueryRowContext(ctx, query, code, version).Scan(
		&entry.Code, &entry.Title, &entry.Version, &entry.Release, &entry.LastFetchedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return entry, nil
}

func (r *PostgresRepository) SearchCached(ctx context.Context, term string, limit int) ([]*models.IcdCode, error) {
	query :=
		`SELECT code, title, version, release, last_fetched_at FROM icd_codes
		 WHERE code ILIKE '%' || $1 || '%' OR title ILIKE '%' || $1 || '%'
		 ORDER BY code
		 LIMIT $2
		 `

	rows, err := r.db.QueryContext(ctx, query, term, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var entries []*models.IcdCode
	for rows.Next() {
		entry := &models.IcdCode{}
		if err := rows.Scan(&entry.Code, &entry.Title, &entry.Version, &entry.Release, &entry.LastFetchedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return entries, nil
}
