package errors

// Code is a machine-readable error code of the form CATEGORY_NNN. Codes are
// stable once assigned and are safe to expose to API callers.
type Code string

// Error code categories:
//
//	VAL_xxx     - configuration and input validation (400)
//	AUTH_xxx    - authentication failures (401, 403 for invalid tokens)
//	INT_xxx     - internal failures (500)
//	UNAVAIL_xxx - a dependency such as the authorization server failed (503)
const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeAuthentication indicates a general authentication failure, such as
	// an API request that carries neither a bearer token nor a session token.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates a well-formed assertion whose
	// validity window has passed.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid indicates an assertion that failed
	// verification for any reason other than expiry.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// CodeInternalSessionMissing indicates the browser flow ran without a
	// session attached to the request.
	CodeInternalSessionMissing Code = "INT_004"

	// CodeInternalSession indicates the session store failed to read or
	// write a value.
	CodeInternalSession Code = "INT_005"

	// CodeUnavailable indicates a general dependency failure.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a backing service (Redis, the
	// JWKS endpoint) could not be reached.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// CodeUnavailableExchange indicates the authorization server rejected or
	// failed an authorization-code or refresh-token exchange.
	CodeUnavailableExchange Code = "UNAVAIL_004"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
