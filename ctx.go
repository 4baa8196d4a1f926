package identity

import "context"

var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithClaimsContext sets the session claims in the given context
func WithClaimsContext(ctx context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// ClaimsFromContext extracts the session claims from the context
func ClaimsFromContext(ctx context.Context) (*SessionClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(*SessionClaims)
	if !ok || raw == nil {
		return nil, false
	}
	return raw, true
}
