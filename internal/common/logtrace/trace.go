package logtrace

import (
	"context"
)

// requestIdContextKey is a private type for the request-id context key.
type requestIdContextKey struct{}

// WithRequestId returns a context carrying the given request ID.
func WithRequestId(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIdContextKey{}, id)
}

// RequestIdFromContext extracts the request ID from the context. Returns an
// empty string if the context is nil or carries no request ID.
func RequestIdFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	r, ok := ctx.Value(requestIdContextKey{}).(string)
	if !ok {
		return ""
	}
	return r
}
