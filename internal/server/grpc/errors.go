package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/slothauth/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errorStatuses maps core errors to the status returned to clients. Order
// matters: the first match wins.
var errorStatuses = []struct {
	err  error
	code codes.Code
	msg  string
}{
	{common.ErrorUnauthorized, codes.Unauthenticated, "NOT_AUTHENTICATED"},
	{common.ErrInvalidToken, codes.Unauthenticated, "INVALID_TOKEN"},
	{common.ErrTokenExpired, codes.Unauthenticated, "TOKEN_EXPIRED"},
	{common.ErrRefreshTokenExpired, codes.Unauthenticated, "REFRESH_TOKEN_EXPIRED"},
	{common.ErrEmailTaken, codes.AlreadyExists, "EMAIL_TAKEN"},
	{common.ErrEmailMissing, codes.InvalidArgument, "EMAIL_MISSING"},
	{common.ErrEmailMismatch, codes.InvalidArgument, "EMAIL_MISMATCH"},
	{common.ErrEmailInvalid, codes.InvalidArgument, "EMAIL_INVALID"},
	{common.ErrBadPassword, codes.InvalidArgument, "BAD_PASSWORD"},
	{common.ErrPasswordMismatch, codes.InvalidArgument, "PASSWORD_MISMATCH"},
	{common.ErrValidation, codes.InvalidArgument, "VALIDATION"},
	{common.ErrorNotFound, codes.NotFound, "NOT_FOUND"},
	{common.ErrPasswordRequired, codes.FailedPrecondition, "PASSWORD_REQUIRED"},
	{common.ErrLoginEmailSent, codes.FailedPrecondition, "LOGIN_EMAIL_SENT"},
	{common.ErrKeyGenerationExhausted, codes.ResourceExhausted, "KEY_GENERATION_EXHAUSTED"},
	{context.Canceled, codes.Canceled, "canceled"},
	{context.DeadlineExceeded, codes.DeadlineExceeded, "deadline exceeded"},
}

// statusFor returns the status describing err, or nil when err is not one of
// the known kinds.
func statusFor(err error) *status.Status {
	for _, e := range errorStatuses {
		if !errors.Is(err, e.err) {
			continue
		}
		msg := e.msg
		var fe *common.FieldError
		if errors.As(err, &fe) {
			msg += ": " + fe.Field
		}
		return status.New(e.code, msg)
	}
	return nil
}
