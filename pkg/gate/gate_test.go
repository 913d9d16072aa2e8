package gate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/StricklySoft/oauthgate/internal/testutil"
	"github.com/StricklySoft/oauthgate/internal/testutil/fixtures"
	"github.com/StricklySoft/oauthgate/pkg/auth"
	sserr "github.com/StricklySoft/oauthgate/pkg/errors"
	"github.com/StricklySoft/oauthgate/pkg/oauth2client"
	"github.com/StricklySoft/oauthgate/pkg/session"
)

func newTestGate(ex Exchanger, opts ...Option) *Gate {
	return New(testAuthenticator(), ex, opts...)
}

// withSession attaches sess the way the session middleware would.
func withSession(r *http.Request, sess session.Session) *http.Request {
	return r.WithContext(session.ContextWithSession(r.Context(), sess))
}

// ---------------------------------------------------------------------------
// Preflight
// ---------------------------------------------------------------------------

func TestGate_PreflightAnswered(t *testing.T) {
	t.Parallel()
	g := newTestGate(newFakeExchanger())
	next := &recordingHandler{}

	r := httptest.NewRequest(http.MethodOptions, "/widgets", nil)
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	require.NoError(t, g.Serve(rr, r, next))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
	assert.Zero(t, next.calls)
}

func TestGate_PreflightPassedThrough(t *testing.T) {
	t.Parallel()
	g := newTestGate(newFakeExchanger(), WithPassOptionsThrough(true))
	next := &recordingHandler{}

	r := httptest.NewRequest(http.MethodOptions, "/widgets", nil)
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	require.NoError(t, g.Serve(rr, r, next))

	assert.Equal(t, 1, next.calls)
	assert.Nil(t, next.identity, "preflights are never authenticated")
}

// ---------------------------------------------------------------------------
// Bearer path
// ---------------------------------------------------------------------------

func TestGate_BearerValid(t *testing.T) {
	t.Parallel()
	g := newTestGate(newFakeExchanger())
	next := &recordingHandler{}

	r := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	r.Header.Set("Authorization", "Bearer "+tokenValid)
	rr := httptest.NewRecorder()
	require.NoError(t, g.Serve(rr, r, next))

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, next.calls)
	require.NotNil(t, next.identity)
	assert.Equal(t, fixtures.TestSubject, next.identity.Subject())
	assert.Equal(t, tokenValid, next.rawToken)
}

func TestGate_BearerRejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantBody string
	}{
		{
			name:     "expired",
			header:   "Bearer " + tokenExpired,
			wantCode: http.StatusUnauthorized,
			wantBody: `{"error":{"code":401,"message":"Token Expired"}}`,
		},
		{
			name:     "malformed",
			header:   "Bearer " + tokenGarbage,
			wantCode: http.StatusForbidden,
			wantBody: `{"error":{"code":403,"message":"Bad Token"}}`,
		},
		{
			name:     "keyword only",
			header:   "Bearer ",
			wantCode: http.StatusForbidden,
			wantBody: `{"error":{"code":403,"message":"Bad Token"}}`,
		},
		{
			name:     "empty header",
			header:   "",
			wantCode: http.StatusForbidden,
			wantBody: `{"error":{"code":403,"message":"Bad Token"}}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ex := newFakeExchanger()
			g := newTestGate(ex)
			next := &recordingHandler{}

			r := httptest.NewRequest(http.MethodGet, "/widgets", nil)
			r.Header.Set("Authorization", tc.header)
			rr := httptest.NewRecorder()
			require.NoError(t, g.Serve(rr, r, next))

			assert.Equal(t, tc.wantCode, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			assert.JSONEq(t, tc.wantBody, rr.Body.String())
			assert.Zero(t, next.calls)
			assert.Empty(t, rr.Header().Get("Location"), "bearer requests are never redirected")
			assert.Zero(t, ex.authCalls)
		})
	}
}

func TestGate_BearerIgnoresSession(t *testing.T) {
	t.Parallel()
	g := newTestGate(newFakeExchanger())
	next := &recordingHandler{}
	sess := newSession(t, map[string]string{session.KeyAccessToken: tokenValid})

	r := withSession(httptest.NewRequest(http.MethodGet, "/widgets", nil), sess)
	r.Header.Set("Authorization", "Bearer "+tokenExpired)
	rr := httptest.NewRecorder()
	require.NoError(t, g.Serve(rr, r, next))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Zero(t, next.calls)
}

// ---------------------------------------------------------------------------
// Session path
// ---------------------------------------------------------------------------

func TestGate_BrowserUsesSession(t *testing.T) {
	t.Parallel()
	g := newTestGate(newFakeExchanger())
	next := &recordingHandler{}
	sess := newSession(t, map[string]string{session.KeyAccessToken: tokenValid})

	rr := httptest.NewRecorder()
	require.NoError(t, g.Serve(rr, withSession(httptest.NewRequest(http.MethodGet, "/widgets", nil), sess), next))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, next.calls)
}

func TestGate_MissingSession(t *testing.T) {
	t.Parallel()
	g := newTestGate(newFakeExchanger())

	err := g.Serve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/widgets", nil), &recordingHandler{})
	testutil.RequireErrorCode(t, err, sserr.CodeInternalSessionMissing)
}

func TestGate_MiddlewareRendersErrors(t *testing.T) {
	t.Parallel()
	ex := newFakeExchanger()
	ex.err = errors.New("token endpoint down")
	g := newTestGate(ex)
	sess := newSession(t, map[string]string{
		session.KeyAccessToken:  tokenExpired,
		session.KeyRefreshToken: "refresh-1",
	})

	rr := httptest.NewRecorder()
	g.Middleware(&recordingHandler{}).ServeHTTP(rr, withSession(httptest.NewRequest(http.MethodGet, "/widgets", nil), sess))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestGate_CustomErrorHandler(t *testing.T) {
	t.Parallel()
	var got error
	g := newTestGate(newFakeExchanger(), WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	g.Middleware(&recordingHandler{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/widgets", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.True(t, sserr.IsMissingSession(got))
}

// TestGate_RoundTrip drives a browser through the full authorization
// round trip behind the session manager.
func TestGate_RoundTrip(t *testing.T) {
	t.Parallel()
	ex := newFakeExchanger()
	g := newTestGate(ex)
	manager, err := session.NewManager(session.NewMemoryStore(time.Hour), session.CookieConfig{
		HashKey:  auth.Secret(fixtures.TestCookieHashKey),
		BlockKey: auth.Secret(fixtures.TestCookieBlockKey),
		Path:     "/",
		MaxAge:   time.Hour,
	}, nil)
	require.NoError(t, err)

	next := &recordingHandler{}
	handler := manager.Middleware(g.Middleware(next))

	// First visit: redirected to the authorization server.
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://example.com/dashboard", nil))
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, testAuthURL, rr.Header().Get("Location"))
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)

	// Callback: tokens exchanged, back to the original page.
	callback := httptest.NewRequest(http.MethodGet, "http://example.com/app?code=abc123&state=fresh-state", nil)
	callback.AddCookie(cookies[0])
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, callback)
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "http://example.com/dashboard", rr.Header().Get("Location"))
	assert.Equal(t, []string{"abc123"}, ex.codes)

	// Return visit: served with the identity.
	page := httptest.NewRequest(http.MethodGet, "http://example.com/dashboard", nil)
	page.AddCookie(cookies[0])
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, page)
	assert.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, next.calls)
	assert.Equal(t, fixtures.TestEmail, next.identity.Email())
}

// ---------------------------------------------------------------------------
// Metrics and tracing
// ---------------------------------------------------------------------------

func TestGate_Metrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	ex := newFakeExchanger()
	g := newTestGate(ex, WithMetrics(m))
	next := &recordingHandler{}

	expired := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	expired.Header.Set("Authorization", "Bearer "+tokenExpired)
	require.NoError(t, g.Serve(httptest.NewRecorder(), expired, next))

	sess := newSession(t, map[string]string{
		session.KeyAccessToken:  tokenExpired,
		session.KeyRefreshToken: "refresh-1",
	})
	require.NoError(t, g.Serve(httptest.NewRecorder(), withSession(httptest.NewRequest(http.MethodGet, "/widgets", nil), sess), next))

	assert.Equal(t, 1.0, promtest.ToFloat64(m.Decisions.WithLabelValues("api", OutcomeExpired)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Decisions.WithLabelValues("browser", OutcomeRefreshed)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Exchanges.WithLabelValues(oauth2client.GrantRefreshToken, "ok")))
	assert.Equal(t, 2, promtest.CollectAndCount(m.Decisions))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	t.Parallel()
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementDecision(KindAPI, OutcomeAuthenticated)
		m.ObserveExchange(oauth2client.GrantAuthorizationCode, time.Millisecond, nil)
	})
}

// Not parallel: replaces the global tracer provider.
func TestGate_Spans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	ex := newFakeExchanger()
	ex.err = errors.New("invalid_grant")
	g := newTestGate(ex)
	sess := newSession(t, map[string]string{
		session.KeyAccessToken:  tokenExpired,
		session.KeyRefreshToken: "refresh-1",
	})
	err := g.Serve(httptest.NewRecorder(), withSession(httptest.NewRequest(http.MethodGet, "/widgets", nil), sess), &recordingHandler{})
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	names := []string{spans[0].Name, spans[1].Name}
	assert.ElementsMatch(t, []string{"gate.Serve", "gate.SessionFlow"}, names)
	for _, s := range spans {
		assert.Len(t, s.Events, 1, "error recorded on %s", s.Name)
	}
}
