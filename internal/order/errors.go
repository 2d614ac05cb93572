package order

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to callers. Match with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
)

// Repository sentinels.
var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrItemNotActive  = errors.New("order item is not active")
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// Error carries a human readable message and the kind it belongs to.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.kind }

func validationf(format string, args ...any) error {
	return &Error{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) error {
	return &Error{kind: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

func forbidden(msg string) error {
	return &Error{kind: ErrForbidden, msg: msg}
}
