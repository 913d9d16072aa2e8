package auth

import (
	"context"
	"errors"
	"strings"
	"unicode"

	sserr "github.com/StricklySoft/oauthgate/pkg/errors"
)

// Status is the outcome tag of [Authenticator.Authenticate].
type Status int

const (
	// StatusOK means the assertion verified; Result.Identity is set.
	StatusOK Status = iota

	// StatusExpired means the assertion was well formed but has expired.
	StatusExpired

	// StatusMalformed means the assertion failed verification for any
	// other reason.
	StatusMalformed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusExpired:
		return "expired"
	case StatusMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of authenticating one assertion. Exactly one
// of Identity (StatusOK) or Err (otherwise) is set.
type Result struct {
	Status   Status
	Identity *Identity
	Err      error
}

// OK reports whether the assertion verified.
func (r Result) OK() bool { return r.Status == StatusOK }

// Expired reports whether the assertion had expired.
func (r Result) Expired() bool { return r.Status == StatusExpired }

// errEmptyToken is returned when nothing remains after stripping the
// bearer keyword.
var errEmptyToken = errors.New("auth: token must not be empty")

// Authenticator turns raw assertions into identities. It is stateless and
// safe for concurrent use.
type Authenticator struct {
	verifier Verifier
}

// NewAuthenticator returns an Authenticator that delegates verification to
// verifier.
func NewAuthenticator(verifier Verifier) *Authenticator {
	return &Authenticator{verifier: verifier}
}

// Authenticate verifies raw, which may carry a leading "Bearer " keyword,
// and returns a fresh identity or the failure kind.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) Result {
	token := StripBearer(raw)
	if token == "" {
		return Result{Status: StatusMalformed, Err: sserr.Malformed(errEmptyToken)}
	}

	claims, err := a.verifier.Verify(ctx, token)
	switch {
	case err == nil:
		return Result{Status: StatusOK, Identity: NewIdentity(claims, token)}
	case sserr.IsExpired(err):
		return Result{Status: StatusExpired, Err: err}
	case sserr.IsMalformed(err):
		return Result{Status: StatusMalformed, Err: err}
	default:
		return Result{Status: StatusMalformed, Err: sserr.Malformed(err)}
	}
}

// bearerKeyword is matched case-sensitively.
const bearerKeyword = "Bearer"

// StripBearer removes an optional "Bearer" keyword followed by whitespace,
// along with surrounding whitespace. A value without the keyword is
// returned trimmed.
func StripBearer(raw string) string {
	s := strings.TrimLeftFunc(raw, unicode.IsSpace)
	if rest, ok := strings.CutPrefix(s, bearerKeyword); ok && rest != "" {
		if r := rune(rest[0]); unicode.IsSpace(r) {
			s = rest
		}
	}
	return strings.TrimSpace(s)
}
