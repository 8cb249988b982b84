package handler

import (
	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/flight-seat-lock/internal/seatlock"
)

// RequestValidator adapts go-playground/validator to echo.Validator with
// the lockid tag installed.
type RequestValidator struct {
	v *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New()
	if err := seatlock.RegisterValidations(v); err != nil {
		panic(err)
	}
	return &RequestValidator{v: v}
}

func (r *RequestValidator) Validate(i interface{}) error {
	return r.v.Struct(i)
}
