// Package auth authenticates identity assertions and carries the resulting
// identity through request contexts.
//
// # Assertions
//
// An assertion is an opaque signed string (a JWT in practice) with an
// embedded expiry and a set of claims. Verification is delegated to a
// [Verifier]; [JWTVerifier] is the provided implementation. Callers see
// exactly two failure kinds through [Authenticator]:
//
//   - Expired: well formed, but past its validity window. Recoverable with
//     a refresh token.
//   - Malformed: anything else. The caller must restart authentication.
//
// # Identity Propagation
//
// A verified assertion becomes an [Identity], built fresh for every request
// and never shared between requests. [Attach] places it in a copy of the
// request so downstream handlers can read claims with [IdentityFromContext]
// without re-authenticating. In proxy mode [SetIdentityHeaders] forwards the
// same claims to the upstream application.
package auth

import (
	"log/slog"
	"time"
)

// Identity is an authenticated caller: the verified claims plus the raw
// assertion they came from. Identity is immutable and safe for concurrent
// use.
type Identity struct {
	subject string
	claims  map[string]any
	token   string
}

// NewIdentity builds an Identity from verified claims and the raw
// assertion. The claims map is copied.
func NewIdentity(claims map[string]any, rawToken string) *Identity {
	copied := make(map[string]any, len(claims))
	for k, v := range claims {
		copied[k] = v
	}
	sub, _ := copied["sub"].(string)
	return &Identity{
		subject: sub,
		claims:  copied,
		token:   rawToken,
	}
}

// Subject returns the "sub" claim, or "" if the assertion has none.
func (i *Identity) Subject() string { return i.subject }

// Email returns the "email" claim, or "".
func (i *Identity) Email() string {
	email, _ := i.claims["email"].(string)
	return email
}

// Claims returns a shallow copy of the claims. Callers may modify the
// result freely.
func (i *Identity) Claims() map[string]any {
	copied := make(map[string]any, len(i.claims))
	for k, v := range i.claims {
		copied[k] = v
	}
	return copied
}

// Claim returns a single claim value.
func (i *Identity) Claim(key string) (any, bool) {
	v, ok := i.claims[key]
	return v, ok
}

// Token returns the raw assertion string.
func (i *Identity) Token() string { return i.token }

// ExpiresAt returns the "exp" claim as a time. Claims decoded from JSON hold
// numbers as float64.
func (i *Identity) ExpiresAt() (time.Time, bool) {
	switch exp := i.claims["exp"].(type) {
	case float64:
		return time.Unix(int64(exp), 0), true
	case int64:
		return time.Unix(exp, 0), true
	case int:
		return time.Unix(int64(exp), 0), true
	default:
		return time.Time{}, false
	}
}

// LogValue implements [slog.LogValuer]. The raw assertion is never logged.
func (i *Identity) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("subject", i.subject),
		slog.String("email", i.Email()),
	)
}
