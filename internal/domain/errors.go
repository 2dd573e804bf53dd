package domain

import (
	"errors"
	"net/http"
)

// Error kinds map one-to-one onto HTTP statuses at the handler boundary.
type ErrorKind int

const (
	KindValidation ErrorKind = iota // malformed or missing input
	KindAuth                        // bad credentials, bad or expired code
	KindForbidden                   // authenticated but insufficient role
	KindNotFound                    // referenced resource absent
	KindDelivery                    // downstream provider failure
)

type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindDelivery:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func Auth(msg string) *Error {
	return &Error{Kind: KindAuth, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Delivery(msg string, err error) *Error {
	return &Error{Kind: KindDelivery, Message: msg, Err: err}
}

// AsError unwraps err to a *Error if one is in the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
