package auth

import (
	"log/slog"
	"net/http"
)

// PropagatingRoundTripper forwards the identity in each request's context
// to the upstream application as x-identity-* headers. Inbound identity
// headers are always stripped, with or without an identity.
//
// The gate's reverse proxy uses it as its transport:
//
//	proxy := &httputil.ReverseProxy{
//	    Rewrite:   func(pr *httputil.ProxyRequest) { pr.SetURL(upstream) },
//	    Transport: auth.NewPropagatingRoundTripper(nil, logger),
//	}
type PropagatingRoundTripper struct {
	wrapped http.RoundTripper
	logger  *slog.Logger
}

// NewPropagatingRoundTripper wraps transport, or [http.DefaultTransport]
// when nil. A nil logger uses [slog.Default].
func NewPropagatingRoundTripper(transport http.RoundTripper, logger *slog.Logger) *PropagatingRoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PropagatingRoundTripper{wrapped: transport, logger: logger}
}

// RoundTrip implements [http.RoundTripper]. The request is cloned before
// headers are changed.
func (t *PropagatingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	clone := r.Clone(r.Context())
	identity, _ := IdentityFromContext(r.Context())
	if err := ForwardIdentityHeaders(clone, identity); err != nil {
		// Subject and email are already set; only the claims header is lost.
		t.logger.WarnContext(r.Context(), "auth: identity claims not forwarded",
			"error", err,
			"identity", identity,
		)
	}
	return t.wrapped.RoundTrip(clone)
}
