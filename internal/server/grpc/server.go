// Package grpc exposes the authentication core over gRPC.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/slothauth/internal/logging"
	"github.com/dmitrijs2005/slothauth/internal/server/models"
	"github.com/dmitrijs2005/slothauth/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// AccountAPI is the account lifecycle used by the handlers.
type AccountAPI interface {
	Signup(ctx context.Context, req services.SignupRequest) (*models.Account, error)
	Login(ctx context.Context, req services.LoginRequest) (*models.Account, error)
	ChangeEmail(ctx context.Context, account *models.Account, req services.ChangeEmailRequest) error
	ChangePassword(ctx context.Context, account *models.Account, req services.ChangePasswordRequest) error
	ResetPassword(ctx context.Context, resetKey string, req services.ChangePasswordRequest) (*models.Account, error)
	ChangeSettings(ctx context.Context, account *models.Account, upd services.SettingsUpdate) error
	RequestPasswordReset(ctx context.Context, email string) error
	RequestPasswordlessLogin(ctx context.Context, account *models.Account) error
}

// SessionAPI binds accounts to bearer tokens.
type SessionAPI interface {
	Login(ctx context.Context, account *models.Account) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, accountID string) error
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Resolve(ctx context.Context, accessToken string) (*models.Account, error)
}

// KeyAuthenticator resolves accounts from link keys.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, c services.Credentials) (*models.Account, error)
}

// KeyParams names the metadata keys carrying link credentials.
type KeyParams struct {
	Passwordless string
	OneTime      string
}

type GRPCServer struct {
	address  string
	accounts AccountAPI
	sessions SessionAPI
	keys     KeyAuthenticator
	params   KeyParams
	health   *health.Server
	logger   logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, as AccountAPI, ss SessionAPI, ka KeyAuthenticator, params KeyParams) *GRPCServer {
	return &GRPCServer{
		address:  a,
		logger:   logging.OrDiscard(l).With("module", "grpc_server"),
		accounts: as,
		sessions: ss,
		keys:     ka,
		params:   params,
		health:   health.NewServer(),
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.keyInterceptor, s.accessTokenInterceptor))
	srv.RegisterService(&AccountServiceDesc, s)
	healthpb.RegisterHealthServer(srv, s.health)
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}

// statusError converts a core error to a gRPC status, logging the ones that
// are not part of the client contract.
func (s *GRPCServer) statusError(ctx context.Context, method string, err error) error {
	if st := statusFor(err); st != nil {
		return st.Err()
	}
	s.logger.Error(ctx, "request failed", "method", method, "error", err)
	return status.Error(codes.Internal, "internal error")
}
