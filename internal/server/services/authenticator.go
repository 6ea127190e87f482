// Package services holds the authentication core: credential verification,
// the account lifecycle and session issuance.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/slothauth/internal/common"
	"github.com/dmitrijs2005/slothauth/internal/logging"
	"github.com/dmitrijs2005/slothauth/internal/server/keygen"
	"github.com/dmitrijs2005/slothauth/internal/server/models"
	"github.com/dmitrijs2005/slothauth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/slothauth/internal/server/repositories/repomanager"
)

// Credentials is what a caller presents to Authenticate. Blank values count
// as not supplied.
type Credentials struct {
	Email string
	// Username is accepted in place of Email.
	Username                 string
	Password                 string
	PasswordlessKey          string
	OneTimeAuthenticationKey string
	// Force accepts a passwordless key even for accounts that have a
	// password. Only set it for keys the server issued itself.
	Force bool
}

// Authenticator resolves an identity from presented credentials.
type Authenticator struct {
	repos  repomanager.RepositoryManager
	keys   *keygen.Generator
	hasher PasswordHasher
	logger logging.Logger
}

func NewAuthenticator(repos repomanager.RepositoryManager, keys *keygen.Generator, hasher PasswordHasher, logger logging.Logger) *Authenticator {
	return &Authenticator{
		repos:  repos,
		keys:   keys,
		hasher: hasher,
		logger: logging.OrDiscard(logger).With("module", "authenticator"),
	}
}

// Authenticate returns the account the credentials identify, or nil when they
// identify none. Email and password are tried first; a passwordless key is
// only considered when they are not both supplied. Rejections never carry a
// reason; the error is reserved for storage failures.
func (a *Authenticator) Authenticate(ctx context.Context, c Credentials) (*models.Account, error) {
	email := strings.TrimSpace(c.Email)
	if u := strings.TrimSpace(c.Username); u != "" {
		email = u
	}

	switch {
	case email != "" && c.Password != "":
		return a.byPassword(ctx, email, c.Password)
	case c.PasswordlessKey != "":
		return a.byPasswordlessKey(ctx, c.PasswordlessKey, c.Force)
	case c.OneTimeAuthenticationKey != "":
		return a.byOneTimeKey(ctx, c.OneTimeAuthenticationKey)
	}
	return nil, nil
}

// ResolveByID rehydrates a session's account. Unknown ids yield nil.
func (a *Authenticator) ResolveByID(ctx context.Context, id string) (*models.Account, error) {
	return found(a.accounts().FindByID(ctx, id))
}

func (a *Authenticator) byPassword(ctx context.Context, email, password string) (*models.Account, error) {
	account, err := found(a.accounts().FindByEmail(ctx, email))
	if account == nil || err != nil {
		return nil, err
	}
	if !a.hasher.Compare(account.PasswordHash, password) {
		return nil, nil
	}
	return account, nil
}

func (a *Authenticator) byPasswordlessKey(ctx context.Context, key string, force bool) (*models.Account, error) {
	account, err := found(a.accounts().FindByKey(ctx, models.PasswordlessKey, key))
	if account == nil || err != nil {
		return nil, err
	}
	if !account.IsPasswordless() && !force {
		return nil, nil
	}
	return account, nil
}

// byOneTimeKey consumes key. The key is swapped for a fresh one with a
// compare-and-swap, so of two concurrent callers presenting the same key only
// one gets the account.
func (a *Authenticator) byOneTimeKey(ctx context.Context, key string) (*models.Account, error) {
	repo := a.accounts()
	account, err := found(repo.FindByKey(ctx, models.OneTimeAuthenticationKey, key))
	if account == nil || err != nil {
		return nil, err
	}

	next, err := a.keys.Key(ctx, string(models.OneTimeAuthenticationKey), keyExists(repo, models.OneTimeAuthenticationKey))
	if err != nil {
		if !errors.Is(err, common.ErrKeyGenerationExhausted) {
			return nil, err
		}
		// The key still has to stop working; leave the field empty.
		next = ""
	}

	won, err := repo.RotateKey(ctx, account.ID, models.OneTimeAuthenticationKey, key, next)
	if err != nil {
		return nil, err
	}
	if !won {
		a.logger.Info(ctx, "one-time key already consumed", "account_id", account.ID)
		return nil, nil
	}

	account.OneTimeAuthenticationKey = next
	return account, nil
}

func (a *Authenticator) accounts() accounts.Repository {
	return a.repos.Accounts(a.repos.Conn())
}

// found turns a not-found lookup into a nil account.
func found(account *models.Account, err error) (*models.Account, error) {
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

func keyExists(repo accounts.Repository, field models.KeyField) keygen.ExistsFunc {
	return func(ctx context.Context, token string) (bool, error) {
		return repo.KeyExists(ctx, field, token)
	}
}
