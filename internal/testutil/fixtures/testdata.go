// Package fixtures provides shared test constants so gate tests do not
// scatter magic strings.
package fixtures

// Identity values used in token tests.
const (
	// TestSubject is the subject claim of fixture tokens.
	TestSubject = "user-abc-123"

	// TestEmail is the email claim of fixture tokens.
	TestEmail = "ada@example.com"

	// TestIssuer is the issuer of fixture tokens.
	TestIssuer = "https://auth.example.test"

	// TestSigningKey is a 32-byte HMAC key for HS256 fixture tokens.
	TestSigningKey = "this-is-a-32-byte-test-signing-k"
)

// OAuth2 values used in flow tests.
const (
	// TestClientID is the OAuth2 client ID used in flow tests.
	TestClientID = "oauthgate-test"

	// TestClientSecret is the OAuth2 client secret used in flow tests.
	TestClientSecret = "oauthgate-test-secret"

	// TestAuthorizationURL is the URL returned by the fake exchanger.
	TestAuthorizationURL = "https://auth.example.test/oauth2/auth?client_id=oauthgate-test"
)

// Session values used in store and middleware tests.
const (
	// TestSessionID is a fixed session identifier.
	TestSessionID = "0b9f3d1e-6d6c-4f43-9a51-0f6f8c1e2a77"

	// TestCookieHashKey is a 32-byte securecookie hash key.
	TestCookieHashKey = "0123456789abcdef0123456789abcdef"

	// TestCookieBlockKey is a 16-byte AES key for securecookie.
	TestCookieBlockKey = "fedcba9876543210"
)
