package auth

import (
	"context"
	"net/http"
)

// contextKey is unexported so keys cannot collide with other packages.
type contextKey int

const (
	// identityKey stores the *Identity established by either path.
	identityKey contextKey = iota

	// rawTokenKey stores the raw bearer assertion. Only the bearer path
	// sets it.
	rawTokenKey
)

// ContextWithIdentity returns a context carrying identity.
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the identity attached by the gate. It never
// returns a non-nil identity with false.
//
// Example:
//
//	identity, ok := auth.IdentityFromContext(r.Context())
//	if !ok {
//	    http.Error(w, "unauthenticated", http.StatusUnauthorized)
//	    return
//	}
//	logger.InfoContext(ctx, "request", "identity", identity)
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*Identity)
	return identity, ok && identity != nil
}

// MustIdentityFromContext is like [IdentityFromContext] but panics when no
// identity is present. Use it only behind the gate.
func MustIdentityFromContext(ctx context.Context) *Identity {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		panic("auth: no identity in context; ensure the gate middleware is installed")
	}
	return identity
}

// ContextWithRawToken returns a context carrying the raw bearer assertion.
func ContextWithRawToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, rawTokenKey, token)
}

// RawTokenFromContext returns the raw bearer assertion. It is only present
// for requests authenticated with an Authorization header.
func RawTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(rawTokenKey).(string)
	return token, ok
}

// Attach returns a copy of r whose context carries identity. r itself is
// not modified.
func Attach(r *http.Request, identity *Identity) *http.Request {
	return r.WithContext(ContextWithIdentity(r.Context(), identity))
}

// AttachBearer is [Attach] for the bearer path; it also exposes the raw
// assertion through [RawTokenFromContext].
func AttachBearer(r *http.Request, identity *Identity) *http.Request {
	ctx := ContextWithIdentity(r.Context(), identity)
	ctx = ContextWithRawToken(ctx, identity.Token())
	return r.WithContext(ctx)
}
