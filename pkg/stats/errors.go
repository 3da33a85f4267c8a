package stats

import (
	"errors"
	"fmt"
)

// Engine errors. Callers match them with errors.Is.
var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInsufficientData = errors.New("insufficient data")
	ErrDomain           = errors.New("argument outside function domain")
	ErrDivisionByZero   = errors.New("division by zero")
)

// ParamError describes a configuration value outside its declared domain.
type ParamError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *ParamError) Unwrap() error {
	return ErrInvalidParameter
}

func invalidParam(field string, value interface{}, reason string) error {
	return &ParamError{Field: field, Value: value, Reason: reason}
}
