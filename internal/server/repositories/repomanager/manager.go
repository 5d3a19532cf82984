package repomanager

import (
	"context"
	"database/sql"

	"github.com/aryabasu21/OnlineClipboard/internal/dbx"
	"github.com/aryabasu21/OnlineClipboard/internal/server/repositories/sessions"
	"github.com/aryabasu21/OnlineClipboard/internal/server/repositories/versions"
)

// RepositoryManager vends repositories bound to a specific DBTX, so a
// service can obtain transactional repositories from the handle WithTx
// gives it.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Sessions(db dbx.DBTX) sessions.Repository
	Versions(db dbx.DBTX) versions.Repository
}
