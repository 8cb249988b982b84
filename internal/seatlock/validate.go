package seatlock

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxIDLength = 128

// reserved characters are key separators or scan glob metacharacters.
const reserved = `:*?[]\`

// IDTag is the validator tag for identifiers embedded in store keys.
const IDTag = "lockid"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := RegisterValidations(v); err != nil {
		panic(err)
	}
	return v
}

// RegisterValidations installs the lockid tag on v so request types in
// other packages can use it.
func RegisterValidations(v *validator.Validate) error {
	return v.RegisterValidation(IDTag, func(fl validator.FieldLevel) bool {
		return IsValidID(fl.Field().String())
	})
}

// IsValidID reports whether s can be used as a user, session, flight,
// seat or booking identifier.
func IsValidID(s string) bool {
	if s == "" || len(s) > maxIDLength {
		return false
	}
	for _, r := range s {
		if r <= ' ' || r == 0x7f || strings.ContainsRune(reserved, r) {
			return false
		}
	}
	return true
}

func validateAll(values ...any) error {
	for _, v := range values {
		if err := validate.Struct(v); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
	}
	return nil
}

func validateID(name, value string) error {
	if !IsValidID(value) {
		return fmt.Errorf("%w: %s %q", ErrInvalidArgument, name, value)
	}
	return nil
}
