package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/slothauth/internal/server/models"
	"github.com/dmitrijs2005/slothauth/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func str(in *structpb.Struct, name string) string {
	return in.GetFields()[name].GetStringValue()
}

// optStr returns nil when the field is absent so that updates can tell a
// missing field from an empty one.
func optStr(in *structpb.Struct, name string) *string {
	v, ok := in.GetFields()[name]
	if !ok {
		return nil
	}
	s := v.GetStringValue()
	return &s
}

func accountFields(a *models.Account) map[string]any {
	return map[string]any{
		"id":              a.ID,
		"email":           a.Email,
		"first_name":      a.FirstName,
		"last_name":       a.LastName,
		"is_active":       a.IsActive,
		"is_staff":        a.IsStaff,
		"is_passwordless": a.IsPasswordless(),
		"date_joined":     a.DateJoined.UTC().Format(time.RFC3339),
	}
}

func (s *GRPCServer) reply(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, s.statusError(ctx, method, err)
	}
	return out, nil
}

func (s *GRPCServer) accountReply(ctx context.Context, method string, a *models.Account) (*structpb.Struct, error) {
	return s.reply(ctx, method, map[string]any{"account": accountFields(a)})
}

// sessionReply opens a session for a and returns the account with its tokens.
func (s *GRPCServer) sessionReply(ctx context.Context, method string, a *models.Account) (*structpb.Struct, error) {
	pair, err := s.sessions.Login(ctx, a)
	if err != nil {
		return nil, s.statusError(ctx, method, err)
	}
	return s.reply(ctx, method, map[string]any{
		"account":       accountFields(a),
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

func (s *GRPCServer) Signup(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, ok := AccountFromContext(ctx); ok {
		return nil, status.Error(codes.AlreadyExists, "ALREADY_AUTHENTICATED")
	}

	account, err := s.accounts.Signup(ctx, services.SignupRequest{
		Email:     str(in, "email"),
		Password:  str(in, "password"),
		FirstName: str(in, "first_name"),
		LastName:  str(in, "last_name"),
	})
	if err != nil {
		return nil, s.statusError(ctx, MethodSignup, err)
	}
	return s.sessionReply(ctx, MethodSignup, account)
}

func (s *GRPCServer) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	account, err := s.accounts.Login(ctx, services.LoginRequest{
		Email:           str(in, "email"),
		Username:        str(in, "username"),
		Password:        str(in, "password"),
		PasswordlessKey: str(in, "passwordless_key"),
	})
	if err != nil {
		return nil, s.statusError(ctx, MethodLogin, err)
	}
	return s.sessionReply(ctx, MethodLogin, account)
}

// Logout revokes the given refresh token, or with "all" set every session of
// the authenticated caller.
func (s *GRPCServer) Logout(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in.GetFields()["all"].GetBoolValue() {
		account, ok := AccountFromContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}
		if err := s.sessions.LogoutAll(ctx, account.ID); err != nil {
			return nil, s.statusError(ctx, MethodLogout, err)
		}
		return &structpb.Struct{}, nil
	}

	if err := s.sessions.Logout(ctx, str(in, "refresh_token")); err != nil {
		return nil, s.statusError(ctx, MethodLogout, err)
	}
	return &structpb.Struct{}, nil
}

func (s *GRPCServer) Refresh(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	pair, err := s.sessions.Refresh(ctx, str(in, "refresh_token"))
	if err != nil {
		return nil, s.statusError(ctx, MethodRefresh, err)
	}
	return s.reply(ctx, MethodRefresh, map[string]any{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

func (s *GRPCServer) Me(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	account, ok := AccountFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	return s.accountReply(ctx, MethodMe, account)
}

func (s *GRPCServer) ChangeEmail(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	account, ok := AccountFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	err := s.accounts.ChangeEmail(ctx, account, services.ChangeEmailRequest{
		Email:           str(in, "email"),
		ConfirmEmail:    str(in, "confirm_email"),
		CurrentPassword: str(in, "current_password"),
	})
	if err != nil {
		return nil, s.statusError(ctx, MethodChangeEmail, err)
	}
	return s.accountReply(ctx, MethodChangeEmail, account)
}

func changePasswordRequest(in *structpb.Struct) services.ChangePasswordRequest {
	return services.ChangePasswordRequest{
		Password:       str(in, "password"),
		PasswordRepeat: str(in, "password_repeat"),
		Proof: services.PasswordProof{
			CurrentPassword: str(in, "current_password"),
			ResetKey:        str(in, "password_reset_key"),
		},
	}
}

func (s *GRPCServer) ChangePassword(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	account, ok := AccountFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	if err := s.accounts.ChangePassword(ctx, account, changePasswordRequest(in)); err != nil {
		return nil, s.statusError(ctx, MethodChangePassword, err)
	}
	return s.accountReply(ctx, MethodChangePassword, account)
}

// ResetPassword sets a new password for the holder of a reset key and, when
// the account is active, opens a session for it.
func (s *GRPCServer) ResetPassword(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := changePasswordRequest(in)
	account, err := s.accounts.ResetPassword(ctx, req.Proof.ResetKey, req)
	if err != nil {
		return nil, s.statusError(ctx, MethodResetPassword, err)
	}
	if !account.IsActive {
		return s.accountReply(ctx, MethodResetPassword, account)
	}
	return s.sessionReply(ctx, MethodResetPassword, account)
}

func (s *GRPCServer) ChangeSettings(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	account, ok := AccountFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	err := s.accounts.ChangeSettings(ctx, account, services.SettingsUpdate{
		FirstName: optStr(in, "first_name"),
		LastName:  optStr(in, "last_name"),
	})
	if err != nil {
		return nil, s.statusError(ctx, MethodChangeSettings, err)
	}
	return s.accountReply(ctx, MethodChangeSettings, account)
}

func (s *GRPCServer) RequestPasswordReset(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.accounts.RequestPasswordReset(ctx, str(in, "email")); err != nil {
		return nil, s.statusError(ctx, MethodRequestPasswordReset, err)
	}
	return &structpb.Struct{}, nil
}

func (s *GRPCServer) RequestPasswordlessLogin(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	account, ok := AccountFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	if err := s.accounts.RequestPasswordlessLogin(ctx, account); err != nil {
		return nil, s.statusError(ctx, MethodRequestPasswordlessLogin, err)
	}
	return &structpb.Struct{}, nil
}
