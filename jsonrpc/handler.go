package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/go-logr/logr"
)

// Handler serves one RPC method.
//
// params is the request's "params" member exactly as received, or nil when
// it was absent or null. headers are the HTTP request headers. The returned
// value is encoded as the "result" member.
//
// The context carries a request-scoped logger, available through
// logr.FromContextOrDiscard.
type Handler interface {
	ServeRPC(ctx context.Context, params json.RawMessage, headers http.Header) (any, error)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(ctx context.Context, params json.RawMessage, headers http.Header) (any, error)

func (f HandlerFunc) ServeRPC(ctx context.Context, params json.RawMessage, headers http.Header) (any, error) {
	return f(ctx, params, headers)
}

// Typed adapts a function that takes decoded params. Params are decoded with
// encoding/json into P; a decode failure is reported with CodeInvalidParams.
//
// With a params schema attached, the schema has already accepted the params
// by the time fn runs, so decoding only fails when P and the schema disagree.
func Typed[P, R any](fn func(ctx context.Context, params P, headers http.Header) (R, error)) Handler {
	return HandlerFunc(func(ctx context.Context, raw json.RawMessage, headers http.Header) (any, error) {
		var p P
		if raw != nil {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, NewHandlerError(CodeInvalidParams, fmt.Sprintf("decode params: %v", err), nil)
			}
		}
		return fn(ctx, p, headers)
	})
}

// invoke runs the handler, converting a panic into a server error.
func invoke(ctx context.Context, m *Method, params json.RawMessage, headers http.Header) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logr.FromContextOrDiscard(ctx).Error(fmt.Errorf("panic: %v", r), "handler panicked",
				"method", m.name, "stack", string(debug.Stack()))
			result = nil
			err = NewError(CodeServerError, "internal error")
		}
	}()
	return m.handler.ServeRPC(ctx, params, headers)
}
