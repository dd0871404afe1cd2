// Package reqctx carries the resolved per-request identity through the call
// chain. The session/authorization layer builds one Context per inbound
// operation; it is passed by value and never mutated.
package reqctx

import "context"

// Context identifies the caller of a single gateway operation.
type Context struct {
	// TenantID is the isolated customer the operation runs for.
	TenantID string
	// UserID is the acting end user, when known.
	UserID string
	// PlatformAdmin marks operators allowed to bypass tenant inference.
	PlatformAdmin bool
	// AccountID is the external ad-account the operation targets, when the
	// operation is account-scoped. Normalized by the tenant package before
	// any comparison.
	AccountID string
}

type ctxKey struct{}

// With stores a request context for transport layers that only see a
// context.Context.
func With(ctx context.Context, rc Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, rc)
}

// From returns the request context stored in ctx, if any.
func From(ctx context.Context) (Context, bool) {
	if ctx == nil {
		return Context{}, false
	}
	rc, ok := ctx.Value(ctxKey{}).(Context)
	return rc, ok
}
