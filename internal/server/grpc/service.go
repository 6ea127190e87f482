package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified name of the account service.
const ServiceName = "slothauth.v1.AccountService"

// Method names of the account service.
const (
	MethodSignup                   = "Signup"
	MethodLogin                    = "Login"
	MethodLogout                   = "Logout"
	MethodRefresh                  = "Refresh"
	MethodMe                       = "Me"
	MethodChangeEmail              = "ChangeEmail"
	MethodChangePassword           = "ChangePassword"
	MethodResetPassword            = "ResetPassword"
	MethodChangeSettings           = "ChangeSettings"
	MethodRequestPasswordReset     = "RequestPasswordReset"
	MethodRequestPasswordlessLogin = "RequestPasswordlessLogin"
)

// FullMethod returns the gRPC path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// AccountServiceServer is the server API of the account service. Requests and
// responses are JSON-like structs keyed by snake_case field names.
type AccountServiceServer interface {
	Signup(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Refresh(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Me(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ChangeEmail(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ChangePassword(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResetPassword(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ChangeSettings(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequestPasswordReset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequestPasswordlessLogin(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(AccountServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(AccountServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// AccountServiceDesc describes the account service for grpc.Server.RegisterService.
// The contract is written down in proto/slothauth/v1/account.proto.
var AccountServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AccountServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodSignup, AccountServiceServer.Signup),
		unary(MethodLogin, AccountServiceServer.Login),
		unary(MethodLogout, AccountServiceServer.Logout),
		unary(MethodRefresh, AccountServiceServer.Refresh),
		unary(MethodMe, AccountServiceServer.Me),
		unary(MethodChangeEmail, AccountServiceServer.ChangeEmail),
		unary(MethodChangePassword, AccountServiceServer.ChangePassword),
		unary(MethodResetPassword, AccountServiceServer.ResetPassword),
		unary(MethodChangeSettings, AccountServiceServer.ChangeSettings),
		unary(MethodRequestPasswordReset, AccountServiceServer.RequestPasswordReset),
		unary(MethodRequestPasswordlessLogin, AccountServiceServer.RequestPasswordlessLogin),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "slothauth/v1/account.proto",
}

// Client calls the account service over a client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method with fields as the request body.
func (c *Client) Call(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
