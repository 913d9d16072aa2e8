package auth

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/oauthgate/internal/testutil/fixtures"
)

func TestNewIdentity_CopiesClaims(t *testing.T) {
	t.Parallel()
	claims := testClaims()
	id := NewIdentity(claims, "raw")

	claims["sub"] = "mutated"
	assert.Equal(t, fixtures.TestSubject, id.Subject())

	out := id.Claims()
	out["email"] = "mutated@example.com"
	assert.Equal(t, fixtures.TestEmail, id.Email())
}

func TestIdentity_Accessors(t *testing.T) {
	t.Parallel()
	id := NewIdentity(testClaims(), "raw")

	assert.Equal(t, "raw", id.Token())
	v, ok := id.Claim("email")
	require.True(t, ok)
	assert.Equal(t, fixtures.TestEmail, v)
	_, ok = id.Claim("missing")
	assert.False(t, ok)

	exp, ok := id.ExpiresAt()
	require.True(t, ok)
	assert.Equal(t, time.Unix(1893456000, 0), exp)
}

func TestIdentity_MissingClaims(t *testing.T) {
	t.Parallel()
	id := NewIdentity(map[string]any{"sub": 42}, "")

	assert.Empty(t, id.Subject())
	assert.Empty(t, id.Email())
	_, ok := id.ExpiresAt()
	assert.False(t, ok)
}

func TestIdentity_LogValueOmitsToken(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logger.Info("authenticated", "identity", NewIdentity(testClaims(), "secret-raw-token"))

	assert.Contains(t, buf.String(), fixtures.TestSubject)
	assert.NotContains(t, buf.String(), "secret-raw-token")
}
