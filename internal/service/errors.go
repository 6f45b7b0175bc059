package service

import (
	"errors"
	"fmt"
)

// Error is a domain error with a stable numeric code.
type Error struct {
	Code    int
	Name    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrAlreadyInitialized  = &Error{Code: 1, Name: "AlreadyInitialized", Message: "already initialized"}
	ErrNotInitialized      = &Error{Code: 2, Name: "NotInitialized", Message: "not initialized"}
	ErrUnauthorized        = &Error{Code: 3, Name: "Unauthorized", Message: "unauthorized"}
	ErrPackageNotFound     = &Error{Code: 4, Name: "PackageNotFound", Message: "package not found"}
	ErrInsufficientBalance = &Error{Code: 5, Name: "InsufficientBalance", Message: "insufficient balance"}
	ErrOrderNotFound       = &Error{Code: 6, Name: "OrderNotFound", Message: "order not found"}
	ErrAlreadyGranted      = &Error{Code: 7, Name: "AlreadyGranted", Message: "order already granted"}
)

// ErrSequenceExhausted is returned when an owner has used every order id.
var ErrSequenceExhausted = errors.New("order sequence exhausted")

// AsError returns the domain error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

func unauthorized(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}
