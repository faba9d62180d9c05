package models

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct checks v's validate tags and reports violations as a
// configuration error naming every failing field.
func ValidateStruct(op string, v any) error {
	err := structValidator.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &Error{Kind: KindConfiguration, Op: op, Detail: "invalid definition", Err: err}
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fe.Namespace()+" failed "+fe.Tag())
	}

	return NewConfigurationError(op, "%s", strings.Join(msgs, "; "))
}
