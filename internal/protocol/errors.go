package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidJSON    = errors.New("protocol: body is not a json object")
	ErrMissingField   = errors.New("protocol: required field missing")
	ErrWrongType      = errors.New("protocol: field has wrong type")
	ErrDecodedLength  = errors.New("protocol: decoded length mismatch")
	ErrBase64         = errors.New("protocol: invalid base64")
	ErrBufferOverflow = errors.New("protocol: decoded data exceeds buffer")
	ErrInvalidInteger = errors.New("protocol: invalid integer string")
	ErrTooManyServers = errors.New("protocol: too many server addresses")
	ErrInvalidAddress = errors.New("protocol: invalid server address")

	ErrNoBodyBoundary      = errors.New("protocol: no header/body boundary")
	ErrResponseTooLarge    = errors.New("protocol: response exceeds buffer capacity")
	ErrMalformedStatusLine = errors.New("protocol: malformed status line")
	ErrUnexpectedStatus    = errors.New("protocol: unexpected status code")
)

// ValidationError reports which field of a match response failed validation.
// It unwraps to one of the sentinel errors above.
type ValidationError struct {
	Field  string
	Reason error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v [%s]", e.Reason, e.Field)
	}
	return fmt.Sprintf("%v [%s]: %s", e.Reason, e.Field, e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

func invalid(field string, reason error, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is a trust-boundary validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsFramingError reports whether err came from locating the response body.
func IsFramingError(err error) bool {
	return errors.Is(err, ErrNoBodyBoundary) ||
		errors.Is(err, ErrResponseTooLarge) ||
		errors.Is(err, ErrMalformedStatusLine) ||
		errors.Is(err, ErrUnexpectedStatus)
}
