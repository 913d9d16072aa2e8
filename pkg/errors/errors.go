// Package errors provides the structured error type shared by every package
// in the gate. Each error carries a machine-readable code whose category
// decides the HTTP status used when the error reaches a response writer.
//
// # Authentication Outcomes
//
// The gate distinguishes four failure kinds:
//
//   - Expired ([CodeAuthenticationExpired]): the assertion was well formed
//     but its validity window has passed. Recoverable with a refresh token.
//   - Malformed ([CodeAuthenticationInvalid]): bad signature, bad structure,
//     missing claims. Not recoverable; the caller must re-authenticate.
//   - MissingSession ([CodeInternalSessionMissing]): the host did not attach
//     a session before the browser flow ran.
//   - ExchangeFailure ([CodeUnavailableExchange]): the authorization server
//     rejected a code or refresh token.
//
// # Usage
//
//	err := errors.Wrap(err, errors.CodeUnavailableExchange, "oauth2: code exchange failed")
//
//	if errors.IsExpired(err) {
//	    // try the refresh token
//	}
//
//	if e, ok := errors.AsError(err); ok {
//	    logger.Error("gate failure", "code", e.Code, "message", e.Message)
//	}
package errors
