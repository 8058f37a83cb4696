package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/medcert/internal/dbx"
	"github.com/dmitrijs2005/medcert/internal/server/repositories/icdcodes"
	"github.com/dmitrijs2005/medcert/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	IcdCodes(db dbx.DBTX) icdcodes.Repository
}
