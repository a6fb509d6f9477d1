package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess       Code = 0
	CodeInternal      Code = 1
	CodeUsage         Code = 2
	CodeConfig        Code = 3
	CodeAuth          Code = 10
	CodeRateLimited   Code = 11
	CodeUnavailable   Code = 12
	CodeUnsupported   Code = 13
	CodeStale         Code = 14
	CodeValidation    Code = 20
	CodeSigner        Code = 21
	CodeOracle        Code = 22
	CodeTimeout       Code = 23
	CodeChainMismatch Code = 24
)

// Error is a typed keeper error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the code of the outermost typed error, or CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	if cErr, ok := As(err); ok {
		return cErr.Code
	}
	return CodeInternal
}

// IsTransient reports whether err is worth retrying on a later attempt or cycle.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case CodeUnavailable, CodeRateLimited, CodeTimeout:
		return true
	default:
		return false
	}
}

func ExitCode(err error) int {
	return int(CodeOf(err))
}

// TypeName is the snake_case label used in rendered error envelopes and metrics.
func TypeName(code Code) string {
	switch code {
	case CodeSuccess:
		return "ok"
	case CodeUsage:
		return "usage_error"
	case CodeConfig:
		return "config_error"
	case CodeAuth:
		return "auth_error"
	case CodeRateLimited:
		return "rate_limited"
	case CodeUnavailable:
		return "unavailable"
	case CodeUnsupported:
		return "unsupported"
	case CodeStale:
		return "stale_data"
	case CodeValidation:
		return "validation_error"
	case CodeSigner:
		return "signer_error"
	case CodeOracle:
		return "oracle_error"
	case CodeTimeout:
		return "timeout"
	case CodeChainMismatch:
		return "chain_mismatch"
	default:
		return "internal_error"
	}
}
