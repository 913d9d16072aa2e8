// Package oauth2client performs the authorization-code and refresh-token
// exchanges the gate needs, on top of golang.org/x/oauth2.
package oauth2client

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	sserr "github.com/StricklySoft/oauthgate/pkg/errors"
)

const tracerName = "github.com/StricklySoft/oauthgate/pkg/oauth2client"

// Grant names used in errors, spans, and metrics.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

// stateBytes is the entropy of a CSRF state value.
const stateBytes = 32

// AuthorizationRequest is an authorization URL and the CSRF state embedded
// in it.
type AuthorizationRequest struct {
	URL   string
	State string
}

// TokenPair is the result of an exchange. RefreshToken may be empty when
// the server does not issue one.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Client talks to one authorization server. It is safe for concurrent use.
type Client struct {
	oauth  *oauth2.Config
	http   *http.Client
	tracer trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// New validates cfg and returns a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret.Value(),
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
		},
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AuthorizationURL returns the URL to send the browser to together with a
// fresh CSRF state.
func (c *Client) AuthorizationURL(_ context.Context) (AuthorizationRequest, error) {
	state, err := newState()
	if err != nil {
		return AuthorizationRequest{}, sserr.Wrap(err, sserr.CodeInternal, "oauth2: failed to generate state")
	}
	return AuthorizationRequest{
		URL:   c.oauth.AuthCodeURL(state),
		State: state,
	}, nil
}

// ExchangeCode trades an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code string) (TokenPair, error) {
	ctx, span := c.startSpan(ctx, "oauth2.ExchangeCode", GrantAuthorizationCode)
	defer span.End()

	tok, err := c.oauth.Exchange(c.withHTTP(ctx), code)
	if err != nil {
		return TokenPair{}, c.fail(span, GrantAuthorizationCode, err)
	}
	return pairFrom(tok), nil
}

// ExchangeRefreshToken trades a refresh token for a new access token. When
// the server does not rotate the refresh token, the one passed in is
// returned.
func (c *Client) ExchangeRefreshToken(ctx context.Context, refreshToken string) (TokenPair, error) {
	ctx, span := c.startSpan(ctx, "oauth2.Refresh", GrantRefreshToken)
	defer span.End()

	if refreshToken == "" {
		return TokenPair{}, c.fail(span, GrantRefreshToken, errors.New("refresh token is empty"))
	}
	src := c.oauth.TokenSource(c.withHTTP(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return TokenPair{}, c.fail(span, GrantRefreshToken, err)
	}
	pair := pairFrom(tok)
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	return pair, nil
}

func (c *Client) withHTTP(ctx context.Context) context.Context {
	if c.http == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

func (c *Client) startSpan(ctx context.Context, name, grant string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("oauth2.grant_type", grant),
		attribute.String("oauth2.token_url", c.oauth.Endpoint.TokenURL),
	)
	return ctx, span
}

func (c *Client) fail(span trace.Span, grant string, err error) error {
	wrapped := sserr.ExchangeFailed(grant, err)
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode != "" {
			wrapped = wrapped.WithDetail("error_code", re.ErrorCode)
		}
		if re.Response != nil {
			wrapped = wrapped.WithDetail("status", re.Response.StatusCode)
		}
	}
	span.RecordError(wrapped)
	span.SetStatus(codes.Error, wrapped.Error())
	return wrapped
}

func pairFrom(tok *oauth2.Token) TokenPair {
	return TokenPair{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
}

func newState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
