package services

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/slothauth/internal/common"
	"github.com/dmitrijs2005/slothauth/internal/server/config"
	"github.com/dmitrijs2005/slothauth/internal/server/keygen"
	"github.com/dmitrijs2005/slothauth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/slothauth/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLogin_ResolveRefreshLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.signup(t, "a@x.com", "pw")

	pair, err := env.sessions.Login(ctx, acc)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	got, err := env.sessions.Resolve(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)

	next, err := env.sessions.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	_, err = env.sessions.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, common.ErrorUnauthorized, "refresh tokens are single use")

	require.NoError(t, env.sessions.Logout(ctx, next.RefreshToken))
	_, err = env.sessions.Refresh(ctx, next.RefreshToken)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestSessionLogin_RejectsInactive(t *testing.T) {
	env := newTestEnv(t)
	acc := env.signup(t, "a@x.com", "pw")
	acc.IsActive = false

	_, err := env.sessions.Login(context.Background(), acc)
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = env.sessions.Login(context.Background(), nil)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestSessionResolve_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.signup(t, "a@x.com", "pw")

	_, err := env.sessions.Resolve(ctx, "garbage")
	require.ErrorIs(t, err, common.ErrInvalidToken)

	pair, err := env.sessions.Login(ctx, acc)
	require.NoError(t, err)

	inactive := false
	require.NoError(t, env.repos.Accounts(nil).Update(ctx, acc.ID, accounts.Changes{IsActive: &inactive}))

	_, err = env.sessions.Resolve(ctx, pair.AccessToken)
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = env.sessions.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestSessionRefresh_Expired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.signup(t, "a@x.com", "pw")

	require.NoError(t, env.repos.RefreshTokens(nil).Create(ctx, acc.ID, "old", -time.Minute))

	_, err := env.sessions.Refresh(ctx, "old")
	require.ErrorIs(t, err, common.ErrRefreshTokenExpired)
}

func TestSessionLogoutAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.signup(t, "a@x.com", "pw")

	p1, err := env.sessions.Login(ctx, acc)
	require.NoError(t, err)
	p2, err := env.sessions.Login(ctx, acc)
	require.NoError(t, err)

	require.NoError(t, env.sessions.LogoutAll(ctx, acc.ID))

	for _, p := range []*TokenPair{p1, p2} {
		_, err := env.sessions.Refresh(ctx, p.RefreshToken)
		require.ErrorIs(t, err, common.ErrorUnauthorized)
	}
}

func TestSessionRefresh_ConcurrentExchangeHasOneWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.signup(t, "a@x.com", "pw")

	pair, err := env.sessions.Login(ctx, acc)
	require.NoError(t, err)

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.sessions.Refresh(ctx, pair.RefreshToken)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	won := 0
	for err := range errs {
		if err == nil {
			won++
			continue
		}
		require.ErrorIs(t, err, common.ErrorUnauthorized)
	}
	assert.Equal(t, 1, won)
}

// --- PostgreSQL-backed transaction behaviour ---

const sessionAccountID = "0b0f5d9e-6a53-4c8e-bd0e-4c1d2f3a4b5c"

func newPostgresSessions(t *testing.T) (*SessionService, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	rm, err := repomanager.NewPostgresRepositoryManager(db)
	require.NoError(t, err)

	a := NewAuthenticator(rm, keygen.New("", 0, nil), NewBcryptHasher(4), nil)
	cfg := &config.Config{SecretKey: "k", AccessTokenValidityDuration: time.Hour, RefreshTokenValidityDuration: time.Hour}
	return NewSessionService(rm, a, cfg, nil), mock, db
}

func expectRefreshLookup(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT\s+account_id,\s*expires_at\s+FROM\s+refresh_tokens`).
		WithArgs("r").
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "expires_at"}).
			AddRow(sessionAccountID, time.Now().Add(time.Hour)))

	mock.ExpectQuery(`FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs(sessionAccountID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "password_hash", "first_name", "last_name", "is_active", "is_staff",
			"passwordless_key", "one_time_authentication_key", "password_reset_key", "date_joined",
		}).AddRow(sessionAccountID, "a@x.com", "", "", "", true, false, "p", "o", "r", time.Now()))
}

func TestSessionRefresh_CommitsRotation(t *testing.T) {
	s, mock, db := newPostgresSessions(t)
	defer db.Close()

	expectRefreshLookup(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+token`).WithArgs("r").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT\s+INTO\s+refresh_tokens`).WithArgs(sessionAccountID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	pair, err := s.Refresh(context.Background(), "r")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRefresh_DeleteErrRollsBack(t *testing.T) {
	s, mock, db := newPostgresSessions(t)
	defer db.Close()

	expectRefreshLookup(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE\s+FROM\s+refresh_tokens`).WithArgs("r").WillReturnError(errors.New("db down"))
	mock.ExpectRollback()

	_, err := s.Refresh(context.Background(), "r")
	if err == nil || !regexp.MustCompile(`error deleting refresh token: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped delete error, got %v", err)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRefresh_AlreadyExchangedRollsBack(t *testing.T) {
	s, mock, db := newPostgresSessions(t)
	defer db.Close()

	expectRefreshLookup(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE\s+FROM\s+refresh_tokens`).WithArgs("r").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := s.Refresh(context.Background(), "r")
	require.ErrorIs(t, err, common.ErrorUnauthorized)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRefresh_CreateErrRollsBack(t *testing.T) {
	s, mock, db := newPostgresSessions(t)
	defer db.Close()

	expectRefreshLookup(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE\s+FROM\s+refresh_tokens`).WithArgs("r").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT\s+INTO\s+refresh_tokens`).WillReturnError(errors.New("db down"))
	mock.ExpectRollback()

	_, err := s.Refresh(context.Background(), "r")
	require.ErrorIs(t, err, common.ErrorInternal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRefresh_FindErr(t *testing.T) {
	s, mock, db := newPostgresSessions(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+refresh_tokens`).WithArgs("r").WillReturnError(errBoom{})

	_, err := s.Refresh(context.Background(), "r")
	if err == nil || !regexp.MustCompile(`error searching refresh token: .*boom`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped find error, got %v", err)
	}
}
