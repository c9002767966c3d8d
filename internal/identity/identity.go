// Package identity tracks the authenticated principal for one session
// and delegates the actual authentication to an external provider.
package identity

import (
	"context"
	"errors"

	"tally/internal/core"
)

// Provider is the authentication boundary. Implementations wrap an
// external identity service (Google OAuth in production, an in-process
// fake in tests); the rest of the system depends only on this surface.
type Provider interface {
	// SignIn completes the provider's authentication flow and returns
	// the principal. A failed or cancelled flow returns an error and
	// leaves the session unauthenticated; it is never fatal.
	SignIn(ctx context.Context) (core.User, error)

	// SignOut invalidates the provider-side session, if any.
	SignOut(ctx context.Context) error

	// UpdateDisplayName persists a new display name with the provider.
	UpdateDisplayName(ctx context.Context, userID, name string) error
}

var (
	ErrNotSignedIn  = errors.New("no user signed in")
	ErrSignInFailed = errors.New("sign-in failed")
)
