package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NotFound builds a NOT_FOUND error for the named entity.
func NotFound(entity, id string) *AppError {
	return New(ErrNotFound, fmt.Sprintf("%s %s not found", entity, id), nil)
}

var (
	ErrConfigLoad   = "CONFIG_LOAD_ERROR"
	ErrNotFound     = "NOT_FOUND"
	ErrValidation   = "VALIDATION_ERROR"
	ErrStorage      = "STORAGE_ERROR"
	ErrUpstream     = "UPSTREAM_ERROR"
	ErrRPCConnect   = "RPC_CONNECT_ERROR"
	ErrInvalidChain = "INVALID_CHAIN_ERROR"
)

// notFounder is implemented by sentinel errors of lower layers that mean
// "no such record".
type notFounder interface {
	NotFound() bool
}

// validator is implemented by field-level validation errors of other
// packages.
type validator interface {
	Validation() bool
}

// Code returns the AppError code found in err's chain, or "".
func Code(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsNotFound reports whether err means the requested entity does not exist.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if Code(err) == ErrNotFound {
		return true
	}
	var nf notFounder
	return stderrors.As(err, &nf) && nf.NotFound()
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}
	if Code(err) == ErrValidation {
		return true
	}
	var v validator
	return stderrors.As(err, &v) && v.Validation()
}
