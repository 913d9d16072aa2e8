package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor authenticates the bearer assertion in the
// "authorization" metadata of every unary call. It is the gRPC rendition of
// the gate's bearer path:
//
//   - missing metadata: Unauthenticated
//   - expired assertion: Unauthenticated "Token Expired"
//   - any other failure: PermissionDenied "Bad Token"
//
// On success the identity and raw assertion are attached to the handler's
// context.
func UnaryServerInterceptor(authn *Authenticator) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := authenticateGRPC(ctx, authn)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is [UnaryServerInterceptor] for streams.
func StreamServerInterceptor(authn *Authenticator) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := authenticateGRPC(ss.Context(), authn)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// UnaryClientInterceptor forwards the raw bearer assertion from the context
// to outgoing calls. Calls without one proceed unchanged.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		return invoker(forwardBearer(ctx), method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor is [UnaryClientInterceptor] for streams.
func StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		return streamer(forwardBearer(ctx), desc, cc, method, opts...)
	}
}

func authenticateGRPC(ctx context.Context, authn *Authenticator) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, status.Error(codes.Unauthenticated, "missing metadata")
	}
	values := md.Get(HeaderAuthorization)
	if len(values) == 0 {
		return ctx, status.Error(codes.Unauthenticated, "missing authorization metadata")
	}

	result := authn.Authenticate(ctx, values[0])
	switch result.Status {
	case StatusOK:
		ctx = ContextWithIdentity(ctx, result.Identity)
		return ContextWithRawToken(ctx, result.Identity.Token()), nil
	case StatusExpired:
		return ctx, status.Error(codes.Unauthenticated, "Token Expired")
	default:
		return ctx, status.Error(codes.PermissionDenied, "Bad Token")
	}
}

func forwardBearer(ctx context.Context) context.Context {
	token, ok := RawTokenFromContext(ctx)
	if !ok || token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, HeaderAuthorization, "Bearer "+token)
}

// wrappedServerStream overrides Context so stream handlers see the
// authenticated context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
