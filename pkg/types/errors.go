package types

import (
	"errors"
	"fmt"
)

// Error is the bridge error taxonomy. Codes are unique per error class; errors.Is
// matches on the code, so a wrapped error still compares equal to its sentinel.
type Error struct {
	Code      int32          `json:"code"`
	Message   string         `json:"message"`
	Retriable bool           `json:"retriable"`
	Details   map[string]any `json:"details,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrValidation = &Error{
		Code:    1,
		Message: "invalid transfer intent",
	}
	ErrNoViableRoute = &Error{
		Code:    2,
		Message: "no viable route: every gas option was rejected, check the destination peer configuration",
	}
	ErrRPCTransient = &Error{
		Code:      3,
		Message:   "rpc request failed",
		Retriable: true,
	}
	ErrTransactionReverted = &Error{
		Code:    4,
		Message: "transaction failed",
	}
	ErrConfirmationTimeout = &Error{
		Code:      5,
		Message:   "timed out waiting for confirmation",
		Retriable: true,
	}
)

// WrapErr adds context to one of the sentinel errors. A fresh value is returned so the
// sentinels are never mutated.
func WrapErr(rErr *Error, err error) *Error {
	newErr := &Error{
		Code:      rErr.Code,
		Message:   rErr.Message,
		Retriable: rErr.Retriable,
		cause:     err,
	}
	if err != nil {
		newErr.Details = map[string]any{
			"context": err.Error(),
		}
	}

	return newErr
}

// Validationf is shorthand for a formatted validation failure
func Validationf(format string, args ...any) *Error {
	return WrapErr(ErrValidation, fmt.Errorf(format, args...))
}
