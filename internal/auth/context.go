package auth

import (
	"context"

	"rentgate/internal/directory"
)

// Identity is the fully resolved caller: verified claims plus the live
// directory record they resolved to.
type Identity struct {
	Claims Claims
	User   directory.User
}

type identityContextKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}
