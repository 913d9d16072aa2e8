// Package gate is the authentication gate placed in front of an HTTP
// application.
//
// For each request the [Gate] decides which path applies:
//
//   - CORS preflight: answered with 200 "[]" or passed through untouched.
//   - Bearer (an Authorization header): the assertion is verified and the
//     request is served, or rejected with a JSON 401 (expired) or 403
//     (anything else). Never redirected.
//   - Session (everything else): the [SessionFlow] uses the tokens kept in
//     the caller's session, refreshes them, or runs the OAuth2
//     authorization-code round trip.
//
// Authenticated requests reach the next handler with the identity
// attached; read it with [auth.IdentityFromContext].
//
// Example:
//
//	g := gate.New(auth.NewAuthenticator(verifier), oauthClient,
//	    gate.WithLogger(logger),
//	    gate.WithMetrics(gate.NewMetrics(prometheus.DefaultRegisterer)),
//	)
//	handler := sessions.Middleware(g.Middleware(app))
package gate

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/oauthgate/pkg/auth"
	sserr "github.com/StricklySoft/oauthgate/pkg/errors"
	"github.com/StricklySoft/oauthgate/pkg/session"
)

const tracerName = "github.com/StricklySoft/oauthgate/pkg/gate"

// ErrorHandler renders errors the session path returns.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Gate is the authentication middleware. It is safe for concurrent use.
type Gate struct {
	authn       *auth.Authenticator
	flow        *SessionFlow
	passOptions bool
	logger      *slog.Logger
	metrics     *Metrics
	onError     ErrorHandler
	tracer      trace.Tracer
}

// Option configures a Gate.
type Option func(*Gate)

// WithPassOptionsThrough hands CORS preflights to the next handler instead
// of answering them.
func WithPassOptionsThrough(pass bool) Option {
	return func(g *Gate) { g.passOptions = pass }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// WithMetrics records decisions and exchanges.
func WithMetrics(m *Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithErrorHandler replaces the handler used by [Gate.Middleware] for
// session path errors.
func WithErrorHandler(h ErrorHandler) Option {
	return func(g *Gate) { g.onError = h }
}

// New returns a Gate verifying assertions with authn and running the
// OAuth2 round trip through exchanger.
func New(authn *auth.Authenticator, exchanger Exchanger, opts ...Option) *Gate {
	g := &Gate{
		authn:  authn,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.onError == nil {
		g.onError = g.defaultErrorHandler
	}
	g.flow = NewSessionFlow(authn, exchanger, g.logger, g.metrics)
	return g
}

// Middleware wraps next. Errors from the session path go to the
// configured [ErrorHandler]. The session must already be attached, as by
// [session.Manager.Middleware].
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := g.Serve(w, r, next); err != nil {
			g.onError(w, r, err)
		}
	})
}

// Serve runs the gate for one request. Bearer and preflight outcomes are
// always written to w. A non-nil error means nothing was written and the
// caller must render a response.
func (g *Gate) Serve(w http.ResponseWriter, r *http.Request, next http.Handler) error {
	ctx, span := g.tracer.Start(r.Context(), "gate.Serve")
	defer span.End()
	r = r.WithContext(ctx)

	if IsPreflight(r) {
		span.SetAttributes(attribute.String("gate.path", "preflight"))
		g.metrics.IncrementDecision(KindAPI, OutcomePreflight)
		if g.passOptions {
			next.ServeHTTP(w, r)
			return nil
		}
		writePreflight(w)
		return nil
	}

	kind := Classify(r)
	span.SetAttributes(attribute.String("gate.path", kind.String()))

	if kind == KindAPI && hasBearer(r) {
		g.serveBearer(w, r, next)
		return nil
	}

	err := g.flow.Run(w, r, session.FromContext(ctx), next)
	finishSpan(span, err)
	return err
}

func (g *Gate) serveBearer(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()
	result := g.authn.Authenticate(ctx, r.Header.Get(headerAuthorization))

	switch result.Status {
	case auth.StatusOK:
		g.metrics.IncrementDecision(KindAPI, OutcomeAuthenticated)
		next.ServeHTTP(w, auth.AttachBearer(r, result.Identity))
	case auth.StatusExpired:
		g.metrics.IncrementDecision(KindAPI, OutcomeExpired)
		g.logger.DebugContext(ctx, "gate: bearer token expired")
		writeError(w, http.StatusUnauthorized, MessageTokenExpired)
	default:
		g.metrics.IncrementDecision(KindAPI, OutcomeMalformed)
		g.logger.InfoContext(ctx, "gate: bearer token rejected", "error", result.Err)
		writeError(w, http.StatusForbidden, MessageBadToken)
	}
}

func (g *Gate) defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	status := sserr.HTTPStatus(err)
	g.logger.ErrorContext(r.Context(), "gate: request failed",
		"error", err,
		"code", sserr.GetCode(err),
		"status", status,
		"path", r.URL.Path,
	)
	http.Error(w, http.StatusText(status), status)
}

func finishSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
