// Package testutil provides shared test helpers for the gate packages.
//
// Helpers accept [testing.TB] and call t.Helper() so failures point at the
// caller. Functions named Require* halt the test; Assert* record and
// continue.
package testutil

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/oauthgate/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/oauthgate/pkg/errors"
)

// RequireErrorCode halts the test unless err is an *sserr.Error carrying
// code.
//
// Example:
//
//	err := loader.Load(nil)
//	testutil.RequireErrorCode(t, err, sserr.CodeInternalConfiguration)
func RequireErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	ssErr, ok := sserr.AsError(err)
	require.True(t, ok, "expected *sserr.Error, got %T: %v", err, err)
	require.Equal(t, code, ssErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		ssErr.Code, code, ssErr.Message)
}

// AssertErrorCode is the non-halting form of [RequireErrorCode], for
// table-driven tests.
func AssertErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	ssErr, ok := sserr.AsError(err)
	if !assert.True(t, ok, "expected *sserr.Error, got %T: %v", err, err) {
		return false
	}
	return assert.Equal(t, code, ssErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		ssErr.Code, code, ssErr.Message)
}

// SignHS256 signs claims with the fixture HMAC key. Standard "iss", "sub"
// and "iat" claims are filled in when absent.
func SignHS256(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["iss"]; !ok {
		claims["iss"] = fixtures.TestIssuer
	}
	if _, ok := claims["sub"]; !ok {
		claims["sub"] = fixtures.TestSubject
	}
	if _, ok := claims["iat"]; !ok {
		claims["iat"] = jwt.NewNumericDate(time.Now())
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(fixtures.TestSigningKey))
	require.NoError(t, err, "failed to sign HS256 token")
	return tok
}

// ValidToken returns a fixture-signed token that expires in an hour.
func ValidToken(t testing.TB) string {
	t.Helper()
	return SignHS256(t, jwt.MapClaims{
		"email": fixtures.TestEmail,
		"exp":   jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
}

// ExpiredToken returns a fixture-signed token that expired an hour ago.
func ExpiredToken(t testing.TB) string {
	t.Helper()
	return SignHS256(t, jwt.MapClaims{
		"exp": jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
}

// DecodeJSON decodes the recorder body into a generic map.
func DecodeJSON(t testing.TB, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), "response body is not JSON: %s", rr.Body.String())
	return body
}
