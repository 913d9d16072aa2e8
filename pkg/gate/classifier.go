package gate

import (
	"net/http"
	"strings"
)

// Kind is the treatment a request receives.
type Kind int

const (
	// KindBrowser requests authenticate through the session and may be
	// redirected.
	KindBrowser Kind = iota

	// KindAPI requests expect machine-readable responses and are never
	// redirected.
	KindAPI
)

// String returns "api" or "browser".
func (k Kind) String() string {
	if k == KindAPI {
		return "api"
	}
	return "browser"
}

// Request headers the gate consults.
const (
	headerAuthorization   = "Authorization"
	headerAccept          = "Accept"
	headerPreflightMethod = "Access-Control-Request-Method"
	headerUpgradeInsecure = "Upgrade-Insecure-Requests"
)

// Classify returns KindAPI when r carries an Authorization header or its
// Accept header mentions JSON, and KindBrowser otherwise.
func Classify(r *http.Request) Kind {
	if _, ok := r.Header[headerAuthorization]; ok {
		return KindAPI
	}
	if strings.Contains(strings.ToLower(r.Header.Get(headerAccept)), "json") {
		return KindAPI
	}
	return KindBrowser
}

// hasBearer reports whether the API request carries its own assertion.
func hasBearer(r *http.Request) bool {
	_, ok := r.Header[headerAuthorization]
	return ok
}

// IsPreflight reports whether r is a CORS preflight: an OPTIONS request
// with Access-Control-Request-Method, or any request whose
// Access-Control-Request-Method is itself OPTIONS.
func IsPreflight(r *http.Request) bool {
	method := r.Header.Get(headerPreflightMethod)
	if method == "" {
		return false
	}
	return r.Method == http.MethodOptions || strings.EqualFold(method, http.MethodOptions)
}
