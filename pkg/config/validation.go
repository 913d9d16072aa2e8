package config

import (
	"reflect"

	sserr "github.com/StricklySoft/oauthgate/pkg/errors"
)

// Validator is implemented by configuration structs that need checks beyond
// `required` tags. Errors that are not already *sserr.Error are wrapped with
// [sserr.CodeValidation].
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	if err := walk(rv, "", "", checkRequired); err != nil {
		return err
	}
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}
	err := v.Validate()
	if err == nil {
		return nil
	}
	if _, ok := sserr.AsError(err); ok {
		return err
	}
	return sserr.Wrap(err, sserr.CodeValidation, "config: custom validation failed")
}

// checkRequired reports a zero-valued field tagged `required:"true"` by
// its dotted path (e.g., "OAuth.ClientID").
func checkRequired(lf leaf) error {
	if lf.field.Tag.Get("required") == "true" && lf.value.IsZero() {
		return sserr.Newf(sserr.CodeValidationRequired,
			"config: required field %q is empty", lf.path)
	}
	return nil
}
