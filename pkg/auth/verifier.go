package auth

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/oauthgate/pkg/errors"
)

// ---------------------------------------------------------------------------
// Secret type
// ---------------------------------------------------------------------------

// Secret is a string that redacts itself in String(), GoString(), and
// MarshalText(). The real value is only reachable through [Secret.Value].
type Secret string

const secretRedacted = "[REDACTED]"

// String returns the redacted placeholder.
func (s Secret) String() string { return secretRedacted }

// GoString returns the redacted placeholder for %#v.
func (s Secret) GoString() string { return secretRedacted }

// Value returns the actual secret string.
func (s Secret) Value() string { return string(s) }

// MarshalText implements [encoding.TextMarshaler] with the placeholder so
// secrets never leak into JSON or YAML.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }

// ---------------------------------------------------------------------------
// Verifier
// ---------------------------------------------------------------------------

// Verifier checks an assertion's signature and validity window and returns
// its claims.
//
// Implementations must return an error carrying
// [sserr.CodeAuthenticationExpired] when the assertion is well formed but
// expired, and [sserr.CodeAuthenticationInvalid] for every other failure.
// [Authenticator] treats any other error as malformed.
type Verifier interface {
	Verify(ctx context.Context, token string) (map[string]any, error)
}

// VerifierFunc adapts a function to the [Verifier] interface.
type VerifierFunc func(ctx context.Context, token string) (map[string]any, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, token string) (map[string]any, error) {
	return f(ctx, token)
}

// HTTPClient is the client used for JWKS and OIDC discovery requests.
// [http.Client] satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ---------------------------------------------------------------------------
// VerifierConfig
// ---------------------------------------------------------------------------

// VerifierConfig configures [JWTVerifier]. Exactly one key source must be
// set: SigningKey (HS256), PublicKeyPEM (RS256/ES256), JWKSURL, or
// OIDCIssuerURL (JWKS discovered from the issuer).
type VerifierConfig struct {
	// SigningKey is the shared HMAC key for HS256 assertions. At least 32
	// bytes.
	SigningKey Secret `json:"-" yaml:"-" env:"AUTH_SIGNING_KEY"`

	// PublicKeyPEM is a PEM-encoded RSA or ECDSA public key.
	PublicKeyPEM string `json:"public_key_pem,omitempty" yaml:"public_key_pem" env:"AUTH_PUBLIC_KEY_PEM"`

	// JWKSURL is fetched for keys selected by the "kid" header.
	JWKSURL string `json:"jwks_url,omitempty" yaml:"jwks_url" env:"AUTH_JWKS_URL"`

	// OIDCIssuerURL is used to discover the JWKS URL from
	// .well-known/openid-configuration when JWKSURL is empty.
	OIDCIssuerURL string `json:"oidc_issuer_url,omitempty" yaml:"oidc_issuer_url" env:"AUTH_OIDC_ISSUER_URL"`

	// Issuer, when set, must equal the "iss" claim.
	Issuer string `json:"issuer,omitempty" yaml:"issuer" env:"AUTH_ISSUER"`

	// Audience, when set, must appear in the "aud" claim.
	Audience string `json:"audience,omitempty" yaml:"audience" env:"AUTH_AUDIENCE"`

	// ClockSkew is the tolerance applied to exp, nbf, and iat.
	ClockSkew time.Duration `json:"clock_skew" yaml:"clock_skew" env:"AUTH_CLOCK_SKEW" envDefault:"30s"`

	// JWKSCacheTTL bounds how long a fetched key set is reused.
	JWKSCacheTTL time.Duration `json:"jwks_cache_ttl" yaml:"jwks_cache_ttl" env:"AUTH_JWKS_CACHE_TTL" envDefault:"1h"`

	// HTTPClient fetches JWKS and discovery documents. Defaults to an
	// [http.Client] with a 10-second timeout.
	HTTPClient HTTPClient `json:"-" yaml:"-"`
}

// maxTokenSize rejects oversized assertions before parsing.
const maxTokenSize = 8192

// minSigningKeyLen is the minimum HS256 key length in bytes.
const minSigningKeyLen = 32

// DefaultVerifierConfig returns a VerifierConfig with default tolerances and
// no key source.
func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{
		ClockSkew:    30 * time.Second,
		JWKSCacheTTL: time.Hour,
	}
}

// keySources counts how many key sources are configured.
func (c *VerifierConfig) keySources() int {
	n := 0
	for _, set := range []bool{
		c.SigningKey.Value() != "",
		c.PublicKeyPEM != "",
		c.JWKSURL != "",
		c.OIDCIssuerURL != "",
	} {
		if set {
			n++
		}
	}
	return n
}

// Validate checks the configuration and returns a *[sserr.Error] with code
// [sserr.CodeValidation] when a field is invalid.
func (c *VerifierConfig) Validate() *sserr.Error {
	switch c.keySources() {
	case 0:
		return sserr.New(sserr.CodeValidation, "auth: one of signing key, public key PEM, JWKS URL, or OIDC issuer URL is required")
	case 1:
	default:
		return sserr.New(sserr.CodeValidation, "auth: only one key source may be configured")
	}
	if c.SigningKey.Value() != "" && len(c.SigningKey.Value()) < minSigningKeyLen {
		return sserr.Newf(sserr.CodeValidation, "auth: signing key must be at least %d bytes", minSigningKeyLen)
	}
	if c.ClockSkew < 0 {
		return sserr.New(sserr.CodeValidation, "auth: clock skew must be non-negative")
	}
	if c.JWKSCacheTTL < 0 {
		return sserr.New(sserr.CodeValidation, "auth: JWKS cache TTL must be non-negative")
	}
	return nil
}

// ---------------------------------------------------------------------------
// JWTVerifier
// ---------------------------------------------------------------------------

const tracerName = "github.com/StricklySoft/oauthgate/pkg/auth"

// JWTVerifier verifies JWT assertions with golang-jwt. Claims are never
// cached; every call parses and verifies the assertion.
//
// JWTVerifier is safe for concurrent use.
type JWTVerifier struct {
	config    VerifierConfig
	tracer    trace.Tracer
	methods   []string
	staticKey any
	jwksCache *jwksCache
	client    HTTPClient

	jwksMu  sync.Mutex
	jwksURL string
}

var _ Verifier = (*JWTVerifier)(nil)

// NewJWTVerifier validates cfg and builds a verifier for its key source.
func NewJWTVerifier(cfg VerifierConfig) (*JWTVerifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	v := &JWTVerifier{
		config:  cfg,
		tracer:  otel.Tracer(tracerName),
		client:  client,
		jwksURL: cfg.JWKSURL,
	}

	switch {
	case cfg.SigningKey.Value() != "":
		key := []byte(cfg.SigningKey.Value())
		v.methods = []string{"HS256"}
		v.staticKey = key

	case cfg.PublicKeyPEM != "":
		key, methods, err := parsePublicKeyPEM([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, sserr.Wrap(err, sserr.CodeValidation, "auth: invalid public key PEM")
		}
		v.methods = methods
		v.staticKey = key

	default:
		v.methods = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}
		v.jwksCache = newJWKSCache(cfg.JWKSCacheTTL, client)
	}

	return v, nil
}

// parsePublicKeyPEM accepts an RSA or ECDSA public key and returns the
// signing methods it can verify.
func parsePublicKeyPEM(pemBytes []byte) (crypto.PublicKey, []string, error) {
	if key, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes); err == nil {
		return key, []string{"RS256", "RS384", "RS512"}, nil
	}
	key, err := jwt.ParseECPublicKeyFromPEM(pemBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("auth: PEM is neither an RSA nor an ECDSA public key: %w", err)
	}
	return key, []string{"ES256", "ES384", "ES512"}, nil
}

// Verify parses token, checks its signature against the configured key
// source, and validates exp (required), nbf, iss, and aud.
//
// Signature verification happens before claim validation, so an expired
// assertion with a bad signature is reported as malformed.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (map[string]any, error) {
	ctx, span := startSpan(ctx, v.tracer, "auth.Verify")
	defer span.End()

	if token == "" {
		err := sserr.Malformed(errEmptyToken)
		finishSpan(span, err)
		return nil, err
	}
	if len(token) > maxTokenSize {
		err := sserr.Malformed(fmt.Errorf("auth: token exceeds %d bytes", maxTokenSize))
		finishSpan(span, err)
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithLeeway(v.config.ClockSkew),
		jwt.WithExpirationRequired(),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}

	parsed, err := jwt.ParseWithClaims(token, jwt.MapClaims{}, v.keyFunc(ctx), opts...)
	if err != nil {
		classified := classifyError(err)
		span.SetAttributes(attribute.String("auth.result", classified.Code.String()))
		finishSpan(span, classified)
		return nil, classified
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		err := sserr.Malformed(errors.New("auth: unexpected claims type"))
		finishSpan(span, err)
		return nil, err
	}

	claims := make(map[string]any, len(mc))
	for k, val := range mc {
		claims[k] = val
	}
	if sub, ok := claims["sub"].(string); ok {
		span.SetAttributes(attribute.String("auth.subject", sub))
	}
	return claims, nil
}

// keyFunc returns the key lookup for one verification. JWKS lookups select
// the key by the "kid" header, discovering the JWKS URL first when only an
// OIDC issuer is configured.
func (v *JWTVerifier) keyFunc(ctx context.Context) jwt.Keyfunc {
	if v.jwksCache == nil {
		return func(*jwt.Token) (any, error) { return v.staticKey, nil }
	}
	return func(t *jwt.Token) (any, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("auth: token header missing kid")
		}
		jwksURL, err := v.resolveJWKSURL(ctx)
		if err != nil {
			return nil, err
		}
		return v.jwksCache.getKey(ctx, jwksURL, kid)
	}
}

func (v *JWTVerifier) resolveJWKSURL(ctx context.Context) (string, error) {
	v.jwksMu.Lock()
	defer v.jwksMu.Unlock()

	if v.jwksURL != "" {
		return v.jwksURL, nil
	}
	discovery, err := fetchOIDCDiscovery(ctx, v.config.OIDCIssuerURL, v.client)
	if err != nil {
		return "", err
	}
	v.jwksURL = discovery.JWKSURI
	return v.jwksURL, nil
}

// classifyError maps golang-jwt errors onto the two failure kinds. Only
// [jwt.ErrTokenExpired] is recoverable.
func classifyError(err error) *sserr.Error {
	if ssErr, ok := sserr.AsError(err); ok && (sserr.IsExpired(ssErr) || sserr.IsMalformed(ssErr)) {
		return ssErr
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return sserr.Expired(err)
	}
	return sserr.Malformed(err)
}

// startSpan creates a new OpenTelemetry span with the given name.
func startSpan(ctx context.Context, tracer trace.Tracer, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// finishSpan records err on the span and marks it failed.
func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
