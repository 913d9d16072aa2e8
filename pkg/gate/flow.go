package gate

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/oauthgate/pkg/auth"
	sserr "github.com/StricklySoft/oauthgate/pkg/errors"
	"github.com/StricklySoft/oauthgate/pkg/oauth2client"
	"github.com/StricklySoft/oauthgate/pkg/session"
)

// Exchanger is the OAuth2 client the session flow drives.
// [*oauth2client.Client] satisfies it.
//
// AuthorizationURL must return a fresh, unpredictable state on every
// call; the CSRF check is only as strong as that state.
type Exchanger interface {
	AuthorizationURL(ctx context.Context) (oauth2client.AuthorizationRequest, error)
	ExchangeCode(ctx context.Context, code string) (oauth2client.TokenPair, error)
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (oauth2client.TokenPair, error)
}

var _ Exchanger = (*oauth2client.Client)(nil)

// Query parameters of the authorization callback.
const (
	queryCode  = "code"
	queryState = "state"
)

// SessionFlow authenticates requests that carry no bearer assertion, using
// the tokens kept in the caller's session. Per request it either serves
// next with an identity attached, completes an authorization callback, or
// starts a new authorization round trip.
//
// SessionFlow holds no per-request state and is safe for concurrent use.
type SessionFlow struct {
	authn     *auth.Authenticator
	exchanger Exchanger
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
}

// NewSessionFlow returns a SessionFlow. logger and metrics may be nil.
func NewSessionFlow(authn *auth.Authenticator, exchanger Exchanger, logger *slog.Logger, metrics *Metrics) *SessionFlow {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionFlow{
		authn:     authn,
		exchanger: exchanger,
		logger:    logger,
		metrics:   metrics,
		tracer:    otel.Tracer(tracerName),
	}
}

// Run executes the flow for r against sess. The branches, in order:
//
//  1. A stored access token that verifies: serve next with the identity.
//  2. A stored access token that has expired, plus a refresh token:
//     refresh, store the new tokens, serve next.
//  3. A code and a state query parameter exactly matching the pending
//     state: clear the state, exchange the code, store the tokens, and
//     redirect to the pending redirect URL ("/" if none).
//  4. Anything else: store the canonical request URL as the pending
//     redirect, store a fresh state, and redirect to the authorization
//     server. API requests get a 401 body instead.
//
// A stored token that is malformed never triggers a refresh. A code with
// a missing or mismatched state is ignored and the pending state is left
// in place until branch 4 replaces it.
//
// Errors are returned unhandled and nothing is written: a nil sess
// yields [sserr.CodeInternalSessionMissing], a failed exchange
// [sserr.CodeUnavailableExchange], and a failing store
// [sserr.CodeInternalSession].
func (f *SessionFlow) Run(w http.ResponseWriter, r *http.Request, sess session.Session, next http.Handler) error {
	if sess == nil {
		return sserr.MissingSession()
	}

	ctx, span := f.tracer.Start(r.Context(), "gate.SessionFlow")
	defer span.End()
	r = r.WithContext(ctx)

	kind := Classify(r)
	outcome, err := f.run(w, r, sess, next)
	f.metrics.IncrementDecision(kind, outcome)
	span.SetAttributes(attribute.String("gate.outcome", outcome))
	finishSpan(span, err)
	return err
}

func (f *SessionFlow) run(w http.ResponseWriter, r *http.Request, sess session.Session, next http.Handler) (string, error) {
	ctx := r.Context()

	access, ok, err := sess.Get(ctx, session.KeyAccessToken)
	if err != nil {
		return OutcomeError, storeErr("get", session.KeyAccessToken, err)
	}
	if ok && access != "" {
		result := f.authn.Authenticate(ctx, access)
		switch result.Status {
		case auth.StatusOK:
			next.ServeHTTP(w, auth.Attach(r, result.Identity))
			return OutcomeAuthenticated, nil

		case auth.StatusExpired:
			refresh, ok, err := sess.Get(ctx, session.KeyRefreshToken)
			if err != nil {
				return OutcomeError, storeErr("get", session.KeyRefreshToken, err)
			}
			if ok && refresh != "" {
				return f.refresh(w, r, sess, next, refresh)
			}
			f.logger.DebugContext(ctx, "gate: stored token expired without a refresh token")

		default:
			f.logger.WarnContext(ctx, "gate: stored token is malformed, restarting authorization",
				"error", result.Err,
			)
		}
	}

	if code := r.URL.Query().Get(queryCode); code != "" {
		handled, err := f.callback(w, r, sess, code)
		if err != nil {
			return OutcomeError, err
		}
		if handled {
			return OutcomeCallback, nil
		}
	}

	if err := f.initiate(w, r, sess); err != nil {
		return OutcomeError, err
	}
	return OutcomeRedirect, nil
}

// refresh exchanges the refresh token and serves next with the identity of
// the new access token.
func (f *SessionFlow) refresh(w http.ResponseWriter, r *http.Request, sess session.Session, next http.Handler, refreshToken string) (string, error) {
	ctx := r.Context()

	start := time.Now()
	pair, err := f.exchanger.ExchangeRefreshToken(ctx, refreshToken)
	f.metrics.ObserveExchange(oauth2client.GrantRefreshToken, time.Since(start), err)
	if err != nil {
		return OutcomeError, exchangeErr(oauth2client.GrantRefreshToken, err)
	}

	if err := sess.Set(ctx, session.KeyAccessToken, pair.AccessToken); err != nil {
		return OutcomeError, storeErr("set", session.KeyAccessToken, err)
	}
	if pair.RefreshToken != "" && pair.RefreshToken != refreshToken {
		if err := sess.Set(ctx, session.KeyRefreshToken, pair.RefreshToken); err != nil {
			return OutcomeError, storeErr("set", session.KeyRefreshToken, err)
		}
	}

	result := f.authn.Authenticate(ctx, pair.AccessToken)
	if !result.OK() {
		return OutcomeError, result.Err
	}
	f.logger.DebugContext(ctx, "gate: access token refreshed", "identity", result.Identity)
	next.ServeHTTP(w, auth.Attach(r, result.Identity))
	return OutcomeRefreshed, nil
}

// callback completes an authorization round trip. It reports false when
// the state does not match, leaving the session untouched.
func (f *SessionFlow) callback(w http.ResponseWriter, r *http.Request, sess session.Session, code string) (bool, error) {
	ctx := r.Context()

	state := r.URL.Query().Get(queryState)
	if state == "" {
		f.logger.DebugContext(ctx, "gate: ignoring callback without state")
		return false, nil
	}
	pending, ok, err := sess.Get(ctx, session.KeyState)
	if err != nil {
		return false, storeErr("get", session.KeyState, err)
	}
	if !ok || pending == "" || subtle.ConstantTimeCompare([]byte(state), []byte(pending)) != 1 {
		f.logger.WarnContext(ctx, "gate: ignoring callback with mismatched state")
		return false, nil
	}

	// Single use: cleared before the exchange so a replay cannot match.
	if err := sess.Remove(ctx, session.KeyState); err != nil {
		return false, storeErr("remove", session.KeyState, err)
	}

	start := time.Now()
	pair, err := f.exchanger.ExchangeCode(ctx, code)
	f.metrics.ObserveExchange(oauth2client.GrantAuthorizationCode, time.Since(start), err)
	if err != nil {
		return false, exchangeErr(oauth2client.GrantAuthorizationCode, err)
	}

	if err := sess.Set(ctx, session.KeyAccessToken, pair.AccessToken); err != nil {
		return false, storeErr("set", session.KeyAccessToken, err)
	}
	if err := sess.Set(ctx, session.KeyRefreshToken, pair.RefreshToken); err != nil {
		return false, storeErr("set", session.KeyRefreshToken, err)
	}

	target, ok, err := sess.Get(ctx, session.KeyRedirectURL)
	if err != nil {
		return false, storeErr("get", session.KeyRedirectURL, err)
	}
	if err := sess.Remove(ctx, session.KeyRedirectURL); err != nil {
		return false, storeErr("remove", session.KeyRedirectURL, err)
	}
	if !ok || target == "" {
		target = "/"
	}

	http.Redirect(w, r, target, http.StatusFound)
	return true, nil
}

// initiate starts an authorization round trip.
func (f *SessionFlow) initiate(w http.ResponseWriter, r *http.Request, sess session.Session) error {
	ctx := r.Context()

	if err := sess.Set(ctx, session.KeyRedirectURL, CanonicalURL(r)); err != nil {
		return storeErr("set", session.KeyRedirectURL, err)
	}
	req, err := f.exchanger.AuthorizationURL(ctx)
	if err != nil {
		return err
	}
	if err := sess.Set(ctx, session.KeyState, req.State); err != nil {
		return storeErr("set", session.KeyState, err)
	}

	http.Redirect(w, r, req.URL, http.StatusFound)
	return nil
}

// CanonicalURL reconstructs the absolute URL of r. The scheme is https
// when the request arrived over TLS or carries Upgrade-Insecure-Requests.
func CanonicalURL(r *http.Request) string {
	scheme := "http"
	_, upgrade := r.Header[headerUpgradeInsecure]
	if r.TLS != nil || upgrade {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// storeErr keeps session store errors already classified by the store and
// wraps the rest.
func storeErr(op, key string, err error) error {
	if sserr.HasCode(err, sserr.CodeInternalSession) {
		return err
	}
	return sserr.SessionStore(op, key, err)
}

// exchangeErr makes sure exchange failures carry the exchange code.
func exchangeErr(grant string, err error) error {
	if sserr.IsExchangeFailure(err) {
		return err
	}
	return sserr.ExchangeFailed(grant, err)
}
