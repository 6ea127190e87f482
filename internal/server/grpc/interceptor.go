package grpc

import (
	"context"

	"github.com/dmitrijs2005/slothauth/internal/common"
	"github.com/dmitrijs2005/slothauth/internal/server/models"
	"github.com/dmitrijs2005/slothauth/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RefreshTokenHeaderName is the response header carrying a refresh token
// issued by a link login.
const RefreshTokenHeaderName = "refresh_token"

type ctxKey string

const accountKey ctxKey = "account"

// protectedMethods require an authenticated account.
var protectedMethods = map[string]bool{
	FullMethod(MethodMe):                       true,
	FullMethod(MethodChangeEmail):              true,
	FullMethod(MethodChangePassword):           true,
	FullMethod(MethodChangeSettings):           true,
	FullMethod(MethodRequestPasswordlessLogin): true,
}

// AccountFromContext returns the account the request is authenticated as.
func AccountFromContext(ctx context.Context) (*models.Account, bool) {
	a, ok := ctx.Value(accountKey).(*models.Account)
	return a, ok && a != nil
}

func withAccount(ctx context.Context, a *models.Account) context.Context {
	return context.WithValue(ctx, accountKey, a)
}

func firstValue(md metadata.MD, key string) string {
	if key == "" {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// keyInterceptor logs requests in through a link key carried in metadata:
// the passwordless key (honored only while the account has no password) or
// the one-time key. Only active accounts are admitted;
// anything else leaves the request unauthenticated. A successful link login
// opens a session whose tokens are returned in the response headers.
func (s *GRPCServer) keyInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return handler(ctx, req)
	}

	var creds services.Credentials
	if key := firstValue(md, s.params.Passwordless); key != "" {
		creds = services.Credentials{PasswordlessKey: key}
	} else if key := firstValue(md, s.params.OneTime); key != "" {
		creds = services.Credentials{OneTimeAuthenticationKey: key}
	} else {
		return handler(ctx, req)
	}

	account, err := s.keys.Authenticate(ctx, creds)
	if err != nil {
		return nil, s.statusError(ctx, info.FullMethod, err)
	}
	if account == nil || !account.IsActive {
		return handler(ctx, req)
	}

	pair, err := s.sessions.Login(ctx, account)
	if err != nil {
		return nil, s.statusError(ctx, info.FullMethod, err)
	}
	header := metadata.Pairs(common.AccessTokenHeaderName, pair.AccessToken, RefreshTokenHeaderName, pair.RefreshToken)
	if err := grpc.SetHeader(ctx, header); err != nil {
		s.logger.Debug(ctx, "session headers not sent", "error", err)
	}

	s.logger.Info(ctx, "link login", "account_id", account.ID, "method", info.FullMethod)
	return handler(withAccount(ctx, account), req)
}

// accessTokenInterceptor resolves the bearer access token, when one is sent,
// and refuses protected methods to unauthenticated callers.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if _, ok := AccountFromContext(ctx); !ok {
		var accessToken string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			accessToken = firstValue(md, common.AccessTokenHeaderName)
		}

		if accessToken != "" {
			account, err := s.sessions.Resolve(ctx, accessToken)
			if err != nil {
				return nil, s.statusError(ctx, info.FullMethod, err)
			}
			ctx = withAccount(ctx, account)
		}
	}

	if _, ok := AccountFromContext(ctx); !ok && protectedMethods[info.FullMethod] {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	return handler(ctx, req)
}
