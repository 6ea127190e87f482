package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/slothauth/internal/server/config"
	"github.com/dmitrijs2005/slothauth/internal/server/keygen"
	"github.com/dmitrijs2005/slothauth/internal/server/models"
	"github.com/dmitrijs2005/slothauth/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

type fakeMailer struct {
	mu     sync.Mutex
	resets []models.Account
	logins []models.Account
	err    error
}

func (m *fakeMailer) SendPasswordReset(ctx context.Context, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, *a)
	return m.err
}

func (m *fakeMailer) SendPasswordlessLogin(ctx context.Context, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins = append(m.logins, *a)
	return m.err
}

type testEnv struct {
	repos    repomanager.RepositoryManager
	keys     *keygen.Generator
	hasher   PasswordHasher
	mailer   *fakeMailer
	auth     *Authenticator
	accounts *AccountService
	sessions *SessionService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithKeys(t, keygen.New("", 0, nil))
}

func newTestEnvWithKeys(t *testing.T, keys *keygen.Generator) *testEnv {
	t.Helper()
	repos := repomanager.NewMemoryRepositoryManager()
	hasher := NewBcryptHasher(bcrypt.MinCost)
	mailer := &fakeMailer{}
	a := NewAuthenticator(repos, keys, hasher, nil)
	cfg := &config.Config{
		SecretKey:                    "k",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
	}
	return &testEnv{
		repos:    repos,
		keys:     keys,
		hasher:   hasher,
		mailer:   mailer,
		auth:     a,
		accounts: NewAccountService(repos, a, keys, hasher, mailer, nil),
		sessions: NewSessionService(repos, a, cfg, nil),
	}
}

func (e *testEnv) signup(t *testing.T, email, password string) *models.Account {
	t.Helper()
	a, err := e.accounts.Signup(context.Background(), SignupRequest{Email: email, Password: password})
	require.NoError(t, err)
	require.NotNil(t, a)
	return a
}

func (e *testEnv) reload(t *testing.T, id string) *models.Account {
	t.Helper()
	a, err := e.repos.Accounts(e.repos.Conn()).FindByID(context.Background(), id)
	require.NoError(t, err)
	return a
}
