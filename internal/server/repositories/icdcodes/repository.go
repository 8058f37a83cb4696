// Package icdcodes persists the terminology cache: every successful live
// lookup is upserted here, and the resolver falls back to substring search
// over this table when both external sources are down.
package icdcodes

import (
	"context"

	"github.com/dmitrijs2005/medcert/internal/server/models"
)

type Repository interface {
	// Upsert inserts or updates an entry keyed by (code, version).
	// Idempotent under concurrent execution.
	Upsert(ctx context.Context, entry *models.IcdCode) error

	// GetByCode returns the cached entry for an exact (code, version) pair.
	GetByCode(ctx context.Context, code string, version string) (*models.IcdCode, error)

	// SearchCached does a case-insensitive substring match on code or title,
	// bounded by limit.
	SearchCached(ctx context.Context, term string, limit int) ([]*models.IcdCode, error)
}
