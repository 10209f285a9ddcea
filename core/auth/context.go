package auth

import (
	"context"

	"incidentpulse/core/domain"
)

type principalContextKey struct{}

// WithPrincipal stores the verified principal on ctx, for handlers and
// the realtime dispatcher to read back via FromContext.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// FromContext retrieves the principal stored by withAuth middleware.
func FromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(domain.Principal)
	return p, ok
}
