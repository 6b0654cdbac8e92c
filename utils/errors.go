package utils

import (
	"github.com/pkg/errors"
)

// NewUnexpectedTypeError is used when there is a type mismatch.
func NewUnexpectedTypeError(expected interface{}, actual interface{}) error {
	return errors.Errorf("expected %T but got %T", expected, actual)
}

// NewOutOfRangeError is used when a numeric argument falls outside its allowed range.
func NewOutOfRangeError(name string, value, low, high float64) error {
	return errors.Errorf("%s %v out of range [%v, %v]", name, value, low, high)
}
