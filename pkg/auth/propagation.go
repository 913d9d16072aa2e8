package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Headers set on requests forwarded to the protected application. Values
// carrying structured data are base64url-encoded JSON.
const (
	// HeaderAuthorization carries the bearer assertion.
	HeaderAuthorization = "authorization"

	// HeaderIdentitySubject carries the "sub" claim.
	HeaderIdentitySubject = "x-identity-subject"

	// HeaderIdentityEmail carries the "email" claim when present.
	HeaderIdentityEmail = "x-identity-email"

	// HeaderIdentityClaims carries every claim. Encoded for transport, not
	// confidentiality.
	HeaderIdentityClaims = "x-identity-claims"

	identityHeaderPrefix = "x-identity-"
)

// MaxHeaderValueSize bounds a single serialized header value. 8 KB is the
// common per-header limit of HTTP/1.1 servers.
const MaxHeaderValueSize = 8192

// SerializeClaims encodes claims as base64url JSON. It returns "" for empty
// claims and an error when the encoding exceeds [MaxHeaderValueSize].
func SerializeClaims(claims map[string]any) (string, error) {
	if len(claims) == 0 {
		return "", nil
	}
	data, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("auth: failed to marshal claims: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(data)
	if len(encoded) > MaxHeaderValueSize {
		return "", fmt.Errorf("auth: serialized claims size %d exceeds maximum %d bytes", len(encoded), MaxHeaderValueSize)
	}
	return encoded, nil
}

// DeserializeClaims reverses [SerializeClaims]. An empty string yields an
// empty, non-nil map.
func DeserializeClaims(encoded string) (map[string]any, error) {
	claims := make(map[string]any)
	if encoded == "" {
		return claims, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode claims: %w", err)
	}
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, fmt.Errorf("auth: failed to unmarshal claims: %w", err)
	}
	if claims == nil {
		claims = make(map[string]any)
	}
	return claims, nil
}

// StripIdentityHeaders removes every x-identity-* header so a client can
// never spoof an identity to the upstream application.
func StripIdentityHeaders(h http.Header) {
	for name := range h {
		if strings.HasPrefix(strings.ToLower(name), identityHeaderPrefix) {
			h.Del(name)
		}
	}
}

// ForwardIdentityHeaders replaces any inbound identity headers on out with
// the ones describing identity. Claims that do not fit in a header are
// dropped with an error; subject and email are still set.
func ForwardIdentityHeaders(out *http.Request, identity *Identity) error {
	StripIdentityHeaders(out.Header)
	if identity == nil {
		return nil
	}

	out.Header.Set(HeaderIdentitySubject, identity.Subject())
	if email := identity.Email(); email != "" {
		out.Header.Set(HeaderIdentityEmail, email)
	}

	encoded, err := SerializeClaims(identity.Claims())
	if err != nil {
		return err
	}
	if encoded != "" {
		out.Header.Set(HeaderIdentityClaims, encoded)
	}
	return nil
}

// IdentityFromHeaders rebuilds an identity from forwarded headers. It is
// meant for applications running behind the gate and trusts the headers
// unconditionally. The returned identity carries no raw assertion.
func IdentityFromHeaders(h http.Header) (*Identity, bool, error) {
	subject := h.Get(HeaderIdentitySubject)
	if subject == "" {
		return nil, false, nil
	}
	claims, err := DeserializeClaims(h.Get(HeaderIdentityClaims))
	if err != nil {
		return nil, false, err
	}
	claims["sub"] = subject
	if email := h.Get(HeaderIdentityEmail); email != "" {
		if _, ok := claims["email"]; !ok {
			claims["email"] = email
		}
	}
	return NewIdentity(claims, ""), true, nil
}
