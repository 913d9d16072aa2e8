package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/oauthgate/internal/testutil"
	"github.com/StricklySoft/oauthgate/internal/testutil/fixtures"
	"github.com/StricklySoft/oauthgate/pkg/session"
)

// upstreamEcho reports the identity headers it received.
func upstreamEcho(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"path":    r.URL.Path,
			"subject": r.Header.Get("x-identity-subject"),
			"email":   r.Header.Get("x-identity-email"),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestHandler(t *testing.T, mutate func(env map[string]string)) http.Handler {
	t.Helper()
	env := baseEnv()
	env["OAUTHGATE_UPSTREAM"] = upstreamEcho(t).URL
	if mutate != nil {
		mutate(env)
	}
	cfg, err := loadConfig("", lookupFrom(env))
	require.NoError(t, err)

	h, err := newHandler(cfg, session.NewMemoryStore(time.Hour), prometheus.NewRegistry(), newLogger("error"))
	require.NoError(t, err)
	return h
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestServer_BearerProxiedWithIdentity(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, nil)

	r := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	r.Header.Set("Authorization", "Bearer "+testutil.ValidToken(t))
	r.Header.Set("x-identity-subject", "spoofed")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := testutil.DecodeJSON(t, rr)
	assert.Equal(t, "/widgets", body["path"])
	assert.Equal(t, fixtures.TestSubject, body["subject"])
	assert.Equal(t, fixtures.TestEmail, body["email"])
}

func TestServer_ExpiredBearer(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, nil)

	r := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	r.Header.Set("Authorization", "Bearer "+testutil.ExpiredToken(t))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"error":{"code":401,"message":"Token Expired"}}`, rr.Body.String())
}

func TestServer_BrowserRedirectedToAuthorizationServer(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	require.Equal(t, http.StatusFound, rr.Code)
	location := rr.Header().Get("Location")
	assert.True(t, strings.HasPrefix(location, "https://auth.example.test/oauth2/auth?"), location)
	assert.Contains(t, location, "client_id="+fixtures.TestClientID)
	assert.Contains(t, location, "state=")
	assert.NotEmpty(t, rr.Result().Cookies(), "session cookie is set")
}

func TestServer_Preflight(t *testing.T) {
	t.Parallel()

	t.Run("answered by the gate", func(t *testing.T) {
		t.Parallel()
		h := newTestHandler(t, nil)

		r := httptest.NewRequest(http.MethodOptions, "/widgets", nil)
		r.Header.Set("Origin", "https://app.example.test")
		r.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, r)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `[]`, rr.Body.String())
	})

	t.Run("passed to cors", func(t *testing.T) {
		t.Parallel()
		h := newTestHandler(t, func(env map[string]string) {
			env["OAUTHGATE_PASS_OPTIONS_THROUGH"] = "true"
			env["OAUTHGATE_CORS_ALLOWED_ORIGINS"] = "https://app.example.test"
		})

		r := httptest.NewRequest(http.MethodOptions, "/widgets", nil)
		r.Header.Set("Origin", "https://app.example.test")
		r.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, r)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "https://app.example.test", rr.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, nil)

	r := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	h.ServeHTTP(httptest.NewRecorder(), r)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `oauthgate_decisions_total{outcome="malformed",path="api"} 1`)
}
