package domain

import (
	"context"
	"errors"
	"fmt"
)

// Code classifies a failure for callers and API responses.
type Code string

const (
	CodeInvalidAddress       Code = "invalid_address"
	CodeUpstreamUnavailable  Code = "upstream_unavailable"
	CodeNoData               Code = "no_data"
	CodeMissingRequiredInput Code = "missing_required_input"
	CodeSignatureFailure     Code = "signature_failure"
	CodeCanceled             Code = "canceled"
	CodeInternal             Code = "internal"
)

// Error carries a classification code, a caller-safe message and the underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrInvalidAddress       = &Error{Code: CodeInvalidAddress, Message: "invalid address"}
	ErrUpstreamUnavailable  = &Error{Code: CodeUpstreamUnavailable, Message: "upstream unavailable"}
	ErrNoData               = &Error{Code: CodeNoData, Message: "no data"}
	ErrMissingRequiredInput = &Error{Code: CodeMissingRequiredInput, Message: "missing required input"}
	ErrSignatureFailure     = &Error{Code: CodeSignatureFailure, Message: "signature failure"}
	ErrCanceled             = &Error{Code: CodeCanceled, Message: "request canceled"}
)

// NewError builds a classified error.
func NewError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// InvalidAddress reports a malformed or non-resolvable address.
func InvalidAddress(address string, cause error) *Error {
	return NewError(CodeInvalidAddress, fmt.Sprintf("address %q is not valid", address), cause)
}

// Upstream wraps a provider failure.
func Upstream(provider string, cause error) *Error {
	return NewError(CodeUpstreamUnavailable, provider+" unavailable", cause)
}

// CodeOf classifies err. Context cancellation and deadlines map to CodeCanceled.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCanceled
	}
	return CodeInternal
}

// PublicMessage returns the message safe to show to API callers.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if CodeOf(err) == CodeCanceled {
		return ErrCanceled.Message
	}
	return "internal error"
}
