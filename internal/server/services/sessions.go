package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/slothauth/internal/common"
	"github.com/dmitrijs2005/slothauth/internal/dbx"
	"github.com/dmitrijs2005/slothauth/internal/logging"
	"github.com/dmitrijs2005/slothauth/internal/server/auth"
	"github.com/dmitrijs2005/slothauth/internal/server/config"
	"github.com/dmitrijs2005/slothauth/internal/server/models"
	"github.com/dmitrijs2005/slothauth/internal/server/repositories/repomanager"
)

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// SessionService binds authenticated accounts to bearer tokens: a short-lived
// JWT access token and an opaque, single-use refresh token.
type SessionService struct {
	repomanager                  repomanager.RepositoryManager
	auth                         *Authenticator
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	logger                       logging.Logger
}

func NewSessionService(m repomanager.RepositoryManager, a *Authenticator, cfg *config.Config, logger logging.Logger) *SessionService {
	return &SessionService{
		repomanager:                  m,
		auth:                         a,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		logger:                       logging.OrDiscard(logger).With("module", "sessions"),
	}
}

// Login opens a session for an already authenticated account. Inactive
// accounts are refused.
func (s *SessionService) Login(ctx context.Context, account *models.Account) (*TokenPair, error) {
	if account == nil || !account.IsActive {
		return nil, common.ErrorUnauthorized
	}
	pair, err := s.generateTokenPair(ctx, s.repomanager.Conn(), account.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "session opened", "account_id", account.ID)
	return pair, nil
}

// Logout revokes refreshToken. Unknown tokens are ignored.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) error {
	if _, err := s.repomanager.RefreshTokens(s.repomanager.Conn()).Delete(ctx, refreshToken); err != nil {
		return fmt.Errorf("error deleting refresh token: %w", err)
	}
	return nil
}

// LogoutAll revokes every refresh token of accountID.
func (s *SessionService) LogoutAll(ctx context.Context, accountID string) error {
	if err := s.repomanager.RefreshTokens(s.repomanager.Conn()).DeleteByAccount(ctx, accountID); err != nil {
		return fmt.Errorf("error deleting refresh tokens: %w", err)
	}
	return nil
}

// Refresh exchanges refreshToken for a new pair. The old token is deleted in
// the same transaction that stores the new one; when another exchange already
// deleted it, this one fails with common.ErrorUnauthorized.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	token, err := s.repomanager.RefreshTokens(s.repomanager.Conn()).Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}

	if token.Expires.Before(time.Now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	account, err := s.auth.ResolveByID(ctx, token.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil || !account.IsActive {
		return nil, common.ErrorUnauthorized
	}

	var tokenPair *TokenPair

	err = s.repomanager.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		deleted, err := s.repomanager.RefreshTokens(tx).Delete(ctx, refreshToken)
		if err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		if !deleted {
			return common.ErrorUnauthorized
		}

		tokenPair, err = s.generateTokenPair(ctx, tx, token.AccountID)
		if err != nil {
			return fmt.Errorf("error generating token pair: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return tokenPair, nil
}

// Resolve returns the active account an access token was issued for.
func (s *SessionService) Resolve(ctx context.Context, accessToken string) (*models.Account, error) {
	accountID, err := auth.GetAccountIDFromToken(accessToken, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	account, err := s.auth.ResolveByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil || !account.IsActive {
		return nil, common.ErrorUnauthorized
	}
	return account, nil
}

func (s *SessionService) generateTokenPair(ctx context.Context, db dbx.DBTX, accountID string) (*TokenPair, error) {
	accessToken, err := auth.GenerateToken(accountID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}

	refreshToken, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}

	if err := s.repomanager.RefreshTokens(db).Create(ctx, accountID, refreshToken, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
