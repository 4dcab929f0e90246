package directory

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound covers deleted accounts whose tokens are still unexpired.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountInactive covers suspended and pending accounts.
	ErrAccountInactive = errors.New("account inactive")
)

// UserLookup is the contract the resolver needs from the user directory store.
type UserLookup interface {
	// FindUserByID returns ErrUserNotFound when no record exists.
	FindUserByID(ctx context.Context, id string) (User, error)
}

// UserCache is an optional read-through cache in front of the store. A nil
// cache disables caching. Cache failures are treated as misses.
type UserCache interface {
	GetUser(ctx context.Context, id string) (User, bool)
	PutUser(ctx context.Context, user User)
}

// Resolver looks up the live user record for a verified claim. The token's
// embedded role is never trusted for authorization; role and status can
// change after a token is issued.
type Resolver struct {
	Lookup UserLookup
	Cache  UserCache
}

func NewResolver(lookup UserLookup, cache UserCache) *Resolver {
	return &Resolver{Lookup: lookup, Cache: cache}
}

// Resolve fetches the user record for the given id and checks account status.
// Suspended and pending accounts terminate the request regardless of role.
func (r *Resolver) Resolve(ctx context.Context, userID string) (User, error) {
	if r == nil || r.Lookup == nil {
		return User{}, errors.New("directory lookup not configured")
	}
	if userID == "" {
		return User{}, ErrUserNotFound
	}

	user, ok := r.cachedUser(ctx, userID)
	if !ok {
		var err error
		user, err = r.Lookup.FindUserByID(ctx, userID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return User{}, ErrUserNotFound
			}
			return User{}, fmt.Errorf("directory lookup: %w", err)
		}
		if r.Cache != nil {
			r.Cache.PutUser(ctx, user)
		}
	}

	if user.Status != StatusActive {
		return user, fmt.Errorf("%w: status %s", ErrAccountInactive, user.Status)
	}
	return user, nil
}

func (r *Resolver) cachedUser(ctx context.Context, userID string) (User, bool) {
	if r.Cache == nil {
		return User{}, false
	}
	return r.Cache.GetUser(ctx, userID)
}
