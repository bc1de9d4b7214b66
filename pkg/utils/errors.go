package utils

import (
	"fmt"
)

// ResponseCode business response code
type ResponseCode int

// Response code const
const (
	CodeSuccess      ResponseCode = 0
	CodeInvalidParam ResponseCode = 1001
	CodeUnauthorized ResponseCode = 1002
	CodeForbidden    ResponseCode = 1003
	CodeRateLimit    ResponseCode = 1004

	CodeMessageNotFound  ResponseCode = 2001
	CodeMessageNotFailed ResponseCode = 2002
	CodeListingNotFound  ResponseCode = 2003
	CodeOrderNotFound    ResponseCode = 2004

	CodeInternalError ResponseCode = 5000
	CodeDatabaseError ResponseCode = 5001
	CodeRedisError    ResponseCode = 5002
	CodeServiceError  ResponseCode = 5003
)

// AppError application error structure
type AppError struct {
	Code    ResponseCode `json:"code"`
	Message string       `json:"message"`
	Err     error        `json:"-"`
}

// Error implement error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code: %d, message: %s, error: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
}

// Unwrap implement errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError create new application error
func NewError(code ResponseCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithErr create application error with original error
func NewErrorWithErr(code ResponseCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WrapError wrap error
func WrapError(err error, code ResponseCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Predefined errors
var (
	// Parameter errors
	ErrInvalidParam = NewError(CodeInvalidParam, "invalid parameter")
	ErrUnauthorized = NewError(CodeUnauthorized, "unauthorized")

	// Message related errors
	ErrMessageNotFound  = NewError(CodeMessageNotFound, "message not found")
	ErrMessageNotFailed = NewError(CodeMessageNotFailed, "message is not in failed status")

	// Entity related errors
	ErrListingNotFound = NewError(CodeListingNotFound, "listing not found")
	ErrOrderNotFound   = NewError(CodeOrderNotFound, "order not found")

	// System errors
	ErrInternalError = NewError(CodeInternalError, "internal server error")
	ErrDatabaseError = NewError(CodeDatabaseError, "database error")
	ErrRedisError    = NewError(CodeRedisError, "redis error")
	ErrRateLimit     = NewError(CodeRateLimit, "rate limit exceeded")
)
