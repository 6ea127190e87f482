// Package repomanager vends repository implementations for a storage backend
// and owns schema migrations and transaction scoping for it.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/slothauth/internal/dbx"
	"github.com/dmitrijs2005/slothauth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/slothauth/internal/server/repositories/refreshtokens"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	// Conn is the non-transactional handle passed to the repository factories.
	Conn() dbx.DBTX
	// WithTx runs fn with a transactional handle; fn's error aborts the unit.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error
	Accounts(db dbx.DBTX) accounts.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Close() error
}
