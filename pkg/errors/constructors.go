package errors

import "fmt"

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with the given code and a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a code and message. Returns nil if err is nil.
//
// Example:
//
//	tok, err := conf.Exchange(ctx, code)
//	if err != nil {
//	    return errors.Wrap(err, errors.CodeUnavailableExchange, "oauth2: code exchange failed")
//	}
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf wraps err with a code and a formatted message. Returns nil if err
// is nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Validation creates a configuration or input validation error.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// Expired wraps cause as an expired-token error.
func Expired(cause error) *Error {
	return &Error{Code: CodeAuthenticationExpired, Message: "token expired", Cause: cause}
}

// Malformed wraps cause as an invalid-token error.
func Malformed(cause error) *Error {
	return &Error{Code: CodeAuthenticationInvalid, Message: "token is invalid", Cause: cause}
}

// MissingSession reports that no session was attached to the request.
func MissingSession() *Error {
	return New(CodeInternalSessionMissing,
		"session not attached to request; install the session middleware before the gate")
}

// ExchangeFailed wraps cause as a failed token exchange for the given grant.
func ExchangeFailed(grant string, cause error) *Error {
	return Wrapf(cause, CodeUnavailableExchange, "oauth2: %s exchange failed", grant)
}

// SessionStore wraps cause as a session store failure for the given
// operation and key.
func SessionStore(op, key string, cause error) *Error {
	return Wrapf(cause, CodeInternalSession, "session: %s %q failed", op, key)
}
