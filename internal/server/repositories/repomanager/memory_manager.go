package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/slothauth/internal/dbx"
	"github.com/dmitrijs2005/slothauth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/slothauth/internal/server/repositories/refreshtokens"
)

// MemoryRepositoryManager serves process-local repositories. The DBTX
// arguments are ignored and WithTx serializes units of work without
// rollback.
type MemoryRepositoryManager struct {
	txMu          sync.Mutex
	accounts      *accounts.MemoryRepository
	refreshTokens *refreshtokens.MemoryRepository
}

func NewMemoryRepositoryManager() RepositoryManager {
	return &MemoryRepositoryManager{
		accounts:      accounts.NewMemoryRepository(),
		refreshTokens: refreshtokens.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) RunMigrations(ctx context.Context) error { return nil }

func (m *MemoryRepositoryManager) Conn() dbx.DBTX { return nil }

func (m *MemoryRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, nil)
}

func (m *MemoryRepositoryManager) Accounts(dbx.DBTX) accounts.Repository {
	return m.accounts
}

func (m *MemoryRepositoryManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return m.refreshTokens
}

func (m *MemoryRepositoryManager) Close() error { return nil }
