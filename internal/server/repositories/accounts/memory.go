package accounts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/slothauth/internal/common"
	"github.com/dmitrijs2005/slothauth/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps accounts in process memory, in insertion order.
// It's safe for concurrent use; returned accounts are copies.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts []*models.Account
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account.Email = models.NormalizeEmail(account.Email)
	if r.lastLocked(func(a *models.Account) bool { return a.Email == account.Email }) != nil {
		return nil, common.ErrEmailTaken
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.DateJoined.IsZero() {
		account.DateJoined = time.Now().UTC()
	}

	stored := *account
	r.accounts = append(r.accounts, &stored)
	return account, nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.ID == id })
}

func (r *MemoryRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	email = models.NormalizeEmail(email)
	return r.find(func(a *models.Account) bool { return a.Email == email })
}

func (r *MemoryRepository) FindByKey(ctx context.Context, field models.KeyField, value string) (*models.Account, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("unknown key field %q", field)
	}
	if value == "" {
		return nil, common.ErrorNotFound
	}
	return r.find(func(a *models.Account) bool { return a.Key(field) == value })
}

func (r *MemoryRepository) KeyExists(ctx context.Context, field models.KeyField, value string) (bool, error) {
	if !field.Valid() {
		return false, fmt.Errorf("unknown key field %q", field)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastLocked(func(a *models.Account) bool { return a.Key(field) == value }) != nil, nil
}

func (r *MemoryRepository) Update(ctx context.Context, id string, changes Changes) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.lastLocked(func(a *models.Account) bool { return a.ID == id })
	if current == nil {
		return common.ErrorNotFound
	}
	if changes.Email != nil {
		email := models.NormalizeEmail(*changes.Email)
		if other := r.lastLocked(func(a *models.Account) bool {
			return a.Email == email && a.ID != id
		}); other != nil {
			return common.ErrEmailTaken
		}
		current.Email = email
	}
	if changes.PasswordHash != nil {
		current.PasswordHash = *changes.PasswordHash
	}
	if changes.FirstName != nil {
		current.FirstName = *changes.FirstName
	}
	if changes.LastName != nil {
		current.LastName = *changes.LastName
	}
	if changes.IsActive != nil {
		current.IsActive = *changes.IsActive
	}
	if changes.IsStaff != nil {
		current.IsStaff = *changes.IsStaff
	}
	return nil
}

func (r *MemoryRepository) RotateKey(ctx context.Context, id string, field models.KeyField, oldValue, newValue string) (bool, error) {
	if !field.Valid() {
		return false, fmt.Errorf("unknown key field %q", field)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.lastLocked(func(a *models.Account) bool { return a.ID == id })
	if current == nil || current.Key(field) != oldValue {
		return false, nil
	}
	current.SetKey(field, newValue)
	return true, nil
}

func (r *MemoryRepository) find(match func(*models.Account) bool) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a := r.lastLocked(match)
	if a == nil {
		return nil, common.ErrorNotFound
	}
	out := *a
	return &out, nil
}

// lastLocked returns the most recently inserted match. Callers hold mu.
func (r *MemoryRepository) lastLocked(match func(*models.Account) bool) *models.Account {
	for i := len(r.accounts) - 1; i >= 0; i-- {
		if match(r.accounts[i]) {
			return r.accounts[i]
		}
	}
	return nil
}
