package oauth2client

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/oauthgate/internal/testutil"
	"github.com/StricklySoft/oauthgate/internal/testutil/fixtures"
	"github.com/StricklySoft/oauthgate/pkg/auth"
	sserr "github.com/StricklySoft/oauthgate/pkg/errors"
)

// tokenServer is a minimal token endpoint recording the form it was sent.
type tokenServer struct {
	mu       sync.Mutex
	forms    []url.Values
	status   int
	response string
}

func (s *tokenServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	s.mu.Lock()
	s.forms = append(s.forms, r.PostForm)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if s.status != 0 {
		w.WriteHeader(s.status)
	}
	_, _ = fmt.Fprint(w, s.response)
}

func (s *tokenServer) lastForm() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forms[len(s.forms)-1]
}

func newTestClient(t *testing.T, ts *tokenServer) *Client {
	t.Helper()
	srv := httptest.NewServer(ts)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		ServerURI:    srv.URL,
		ClientID:     fixtures.TestClientID,
		ClientSecret: auth.Secret(fixtures.TestClientSecret),
		Scopes:       []string{"openid", "email"},
	}, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestConfig_ValidateDefaults(t *testing.T) {
	t.Parallel()
	cfg := Config{ServerURI: "https://auth.example.test/", ClientID: fixtures.TestClientID}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://auth.example.test/oauth2/auth", cfg.AuthURL)
	assert.Equal(t, "https://auth.example.test/oauth2", cfg.TokenURL)
	assert.Equal(t, "https://auth.example.test/app", cfg.RedirectURL)
}

func TestConfig_ValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		code sserr.Code
	}{
		{"missing server", Config{ClientID: "c"}, sserr.CodeValidationRequired},
		{"missing client", Config{ServerURI: "https://a.test"}, sserr.CodeValidationRequired},
		{"relative server", Config{ServerURI: "auth.example.test", ClientID: "c"}, sserr.CodeValidationFormat},
		{"relative redirect", Config{ServerURI: "https://a.test", ClientID: "c", RedirectURL: "/cb"}, sserr.CodeValidationFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			testutil.AssertErrorCode(t, cfg.Validate(), tt.code)
		})
	}
}

func TestAuthorizationURL(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, &tokenServer{})

	req, err := c.AuthorizationURL(context.Background())
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(req.State)
	require.NoError(t, err)
	assert.Len(t, raw, stateBytes)

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	assert.Equal(t, DefaultAuthPath, u.Path)
	q := u.Query()
	assert.Equal(t, req.State, q.Get("state"))
	assert.Equal(t, fixtures.TestClientID, q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid email", q.Get("scope"))

	other, err := c.AuthorizationURL(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, req.State, other.State, "every request gets a fresh state")
}

func TestExchangeCode(t *testing.T) {
	t.Parallel()
	ts := &tokenServer{response: `{"access_token":"at-1","refresh_token":"rt-1","token_type":"bearer","expires_in":3600}`}
	c := newTestClient(t, ts)

	pair, err := c.ExchangeCode(context.Background(), "code-123")
	require.NoError(t, err)
	assert.Equal(t, TokenPair{AccessToken: "at-1", RefreshToken: "rt-1"}, pair)

	form := ts.lastForm()
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "code-123", form.Get("code"))
}

func TestExchangeCode_Failure(t *testing.T) {
	t.Parallel()
	ts := &tokenServer{status: http.StatusBadRequest, response: `{"error":"invalid_grant"}`}
	c := newTestClient(t, ts)

	_, err := c.ExchangeCode(context.Background(), "bad-code")
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableExchange)
	ssErr, _ := sserr.AsError(err)
	assert.Equal(t, "invalid_grant", ssErr.Details["error_code"])
	assert.Equal(t, http.StatusBadRequest, ssErr.Details["status"])
}

func TestExchangeRefreshToken_Rotates(t *testing.T) {
	t.Parallel()
	ts := &tokenServer{response: `{"access_token":"at-2","refresh_token":"rt-2","token_type":"bearer","expires_in":3600}`}
	c := newTestClient(t, ts)

	pair, err := c.ExchangeRefreshToken(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, TokenPair{AccessToken: "at-2", RefreshToken: "rt-2"}, pair)

	form := ts.lastForm()
	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, "rt-1", form.Get("refresh_token"))
}

func TestExchangeRefreshToken_KeepsTokenWhenNotRotated(t *testing.T) {
	t.Parallel()
	ts := &tokenServer{response: `{"access_token":"at-2","token_type":"bearer","expires_in":3600}`}
	c := newTestClient(t, ts)

	pair, err := c.ExchangeRefreshToken(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, "rt-1", pair.RefreshToken)
}

func TestExchangeRefreshToken_Failures(t *testing.T) {
	t.Parallel()
	ts := &tokenServer{status: http.StatusUnauthorized, response: `{"error":"invalid_grant"}`}
	c := newTestClient(t, ts)

	_, err := c.ExchangeRefreshToken(context.Background(), "revoked")
	testutil.AssertErrorCode(t, err, sserr.CodeUnavailableExchange)
	assert.True(t, sserr.IsExchangeFailure(err))

	_, err = c.ExchangeRefreshToken(context.Background(), "")
	testutil.AssertErrorCode(t, err, sserr.CodeUnavailableExchange)
}
