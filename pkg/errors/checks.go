package errors

import "errors"

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the code of the first *Error in err's chain, or "".
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsExpired reports whether err is an expired-token error.
func IsExpired(err error) bool {
	return HasCode(err, CodeAuthenticationExpired)
}

// IsMalformed reports whether err is an invalid-token error.
func IsMalformed(err error) bool {
	return HasCode(err, CodeAuthenticationInvalid)
}

// IsMissingSession reports whether err reports a missing session.
func IsMissingSession(err error) bool {
	return HasCode(err, CodeInternalSessionMissing)
}

// IsExchangeFailure reports whether err is a failed token exchange.
func IsExchangeFailure(err error) bool {
	return HasCode(err, CodeUnavailableExchange)
}

// IsAuthentication reports whether err is in the AUTH category.
func IsAuthentication(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "AUTH"
}

// IsServerError reports whether err maps to a 5xx status.
func IsServerError(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "INT", "UNAVAIL":
		return true
	default:
		return false
	}
}

// HTTPStatus returns the HTTP status for err, defaulting to 500 for errors
// that are not *Error.
func HTTPStatus(err error) int {
	if e, ok := AsError(err); ok {
		return e.HTTPStatus()
	}
	return 500
}
