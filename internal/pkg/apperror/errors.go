package apperror

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindUpstream            Kind = "upstream"
	KindRateLimited         Kind = "rate_limited"
	KindPoolExhausted       Kind = "pool_exhausted"
	KindProvisioning        Kind = "provisioning"
	KindConcurrencyConflict Kind = "concurrency_conflict"
)

// Sentinels for errors.Is. Any *Error of the same Kind matches its sentinel.
var (
	ErrValidation          = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ErrUpstream            = &Error{Kind: KindUpstream, Message: "upstream call failed"}
	ErrRateLimited         = &Error{Kind: KindRateLimited, Message: "too many requests"}
	ErrPoolExhausted       = &Error{Kind: KindPoolExhausted, Message: "connection pool exhausted"}
	ErrProvisioning        = &Error{Kind: KindProvisioning, Message: "tenant provisioning failed"}
	ErrConcurrencyConflict = &Error{Kind: KindConcurrencyConflict, Message: "concurrent modification"}
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...interface{}) *Error {
	return newError(KindValidation, nil, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newError(KindNotFound, nil, format, args...)
}

// Upstream wraps a failed call to speech-to-text, embedding or language model services.
func Upstream(err error, format string, args ...interface{}) *Error {
	return newError(KindUpstream, err, format, args...)
}

func RateLimited(format string, args ...interface{}) *Error {
	return newError(KindRateLimited, nil, format, args...)
}

func PoolExhausted(err error, format string, args ...interface{}) *Error {
	return newError(KindPoolExhausted, err, format, args...)
}

func Provisioning(err error, format string, args ...interface{}) *Error {
	return newError(KindProvisioning, err, format, args...)
}

func ConcurrencyConflict(err error, format string, args ...interface{}) *Error {
	return newError(KindConcurrencyConflict, err, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsPermanent reports whether retrying the same input can never succeed.
func IsPermanent(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound:
		return true
	}
	return false
}
