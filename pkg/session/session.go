// Package session provides the per-user key/value session the gate keeps
// OAuth2 state in, together with two stores and the cookie middleware that
// binds a browser to its session.
//
// The gate only needs the [Session] interface. [MemoryStore] suits a
// single replica; [RedisStore] shares sessions across replicas. The
// [Middleware] resolves the session ID from a signed and encrypted cookie,
// opens the session, and attaches it to the request context where
// [FromContext] finds it.
package session

import "context"

// Keys the gate stores in a session.
const (
	// KeyAccessToken holds the current access token.
	KeyAccessToken = "jwtToken"

	// KeyRefreshToken holds the refresh token.
	KeyRefreshToken = "refreshToken"

	// KeyState holds the pending CSRF state of an authorization round trip.
	KeyState = "OAuth2State"

	// KeyRedirectURL holds the URL to return to after the callback.
	KeyRedirectURL = "requestedUrl"
)

// Session is a string key/value map scoped to one user. Implementations
// are used by one request at a time but may be shared by concurrent
// requests from the same browser; each call must be atomic on its own.
type Session interface {
	// Has reports whether key is present.
	Has(ctx context.Context, key string) (bool, error)

	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// Store opens sessions by ID. Opening an unknown ID yields an empty
// session that is created on first write.
type Store interface {
	Open(ctx context.Context, id string) (Session, error)
}
