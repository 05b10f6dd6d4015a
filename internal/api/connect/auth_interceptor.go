// Package connect exposes remote playback control over Connect RPC.
package connect

import (
	"context"
	"crypto/subtle"

	"connectrpc.com/connect"
)

const (
	// RemoteTokenHeader is the header carrying the remote control token.
	RemoteTokenHeader = "X-Remote-Token"
)

// authInterceptor rejects requests without the configured token, for both
// unary and streaming procedures.
type authInterceptor struct {
	token string
}

// NewRemoteAuthInterceptor creates an interceptor that validates the remote
// control token from request headers.
func NewRemoteAuthInterceptor(token string) connect.Interceptor {
	return &authInterceptor{token: token}
}

func (a *authInterceptor) valid(got string) bool {
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(a.token)) == 1
}

func (a *authInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if !a.valid(req.Header().Get(RemoteTokenHeader)) {
			return nil, connect.NewError(connect.CodeUnauthenticated, nil)
		}
		return next(ctx, req)
	}
}

func (a *authInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (a *authInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if !a.valid(conn.RequestHeader().Get(RemoteTokenHeader)) {
			return connect.NewError(connect.CodeUnauthenticated, nil)
		}
		return next(ctx, conn)
	}
}

// tokenInterceptor attaches the remote control token to outgoing requests.
type tokenInterceptor struct {
	token string
}

func (t tokenInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient && t.token != "" {
			req.Header().Set(RemoteTokenHeader, t.token)
		}
		return next(ctx, req)
	}
}

func (t tokenInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		if t.token != "" {
			conn.RequestHeader().Set(RemoteTokenHeader, t.token)
		}
		return conn
	}
}

func (t tokenInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}
