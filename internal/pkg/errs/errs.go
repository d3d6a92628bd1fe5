// Package errs carries the error categories the worker API maps onto HTTP
// status codes.
package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Code identifies an error category.
type Code string

const (
	CodeInvalid      Code = "invalid_request"
	CodeUnauthorized Code = "unauthorized"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal"
)

// E is a categorized error. Field names the offending input when known.
type E struct {
	Code    Code
	Field   string
	Message string

	cause error
}

type Option func(*E)

func New(code Code, opts ...Option) *E {
	e := &E{Code: code}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func WithMessage(msg string) Option {
	trimmed := strings.TrimSpace(msg)
	return func(e *E) { e.Message = trimmed }
}

func WithField(field string) Option {
	trimmed := strings.TrimSpace(field)
	return func(e *E) { e.Field = trimmed }
}

func WithCause(err error) Option {
	return func(e *E) { e.cause = err }
}

// Invalid builds a CodeInvalid error with a formatted message.
func Invalid(format string, args ...any) *E {
	return New(CodeInvalid, WithMessage(fmt.Sprintf(format, args...)))
}

// InvalidField builds a CodeInvalid error naming the field at fault.
func InvalidField(field, format string, args ...any) *E {
	return New(CodeInvalid, WithField(field), WithMessage(fmt.Sprintf(format, args...)))
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = string(CodeInternal)
	}
	parts := []string{code}
	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}
	if e.Message != "" {
		parts = append(parts, strconv.Quote(e.Message))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}
	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Public is the message safe to return to API callers.
func (e *E) Public() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return string(e.Code)
	}
	if e.Field != "" && !strings.Contains(e.Message, e.Field) {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

// CodeOf returns the category of the first *E in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return CodeInternal
}

func IsInvalid(err error) bool {
	var e *E
	return errors.As(err, &e) && e.Code == CodeInvalid
}
