// Package accounts declares the credential store contract and its
// PostgreSQL and in-memory implementations.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/slothauth/internal/server/models"
)

// Repository looks up and mutates accounts. Email matching is
// case-insensitive. Lookups resolve ties to the most recently joined
// account and return common.ErrorNotFound when nothing matches.
type Repository interface {
	// Create stores a new account, assigning an ID when empty. A normalized
	// email already present yields common.ErrEmailTaken.
	Create(ctx context.Context, account *models.Account) (*models.Account, error)

	FindByID(ctx context.Context, id string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)

	// FindByKey looks up by one of the key columns. A blank value never matches.
	FindByKey(ctx context.Context, field models.KeyField, value string) (*models.Account, error)

	// KeyExists reports whether any account holds value in field.
	KeyExists(ctx context.Context, field models.KeyField, value string) (bool, error)

	// Update writes the columns set in changes to the account with id.
	// Key columns are never written here; they only move through RotateKey.
	Update(ctx context.Context, id string, changes Changes) error

	// RotateKey replaces field with newValue only if it still holds oldValue.
	// It reports whether this call won the swap.
	RotateKey(ctx context.Context, id string, field models.KeyField, oldValue, newValue string) (bool, error)
}

// Changes names the columns an Update writes. Nil fields keep their stored
// value, so concurrent writers owning different columns don't clobber each
// other.
type Changes struct {
	Email        *string
	PasswordHash *string
	FirstName    *string
	LastName     *string
	IsActive     *bool
	IsStaff      *bool
}

// Empty reports whether changes writes nothing.
func (c Changes) Empty() bool {
	return c.Email == nil && c.PasswordHash == nil && c.FirstName == nil &&
		c.LastName == nil && c.IsActive == nil && c.IsStaff == nil
}
