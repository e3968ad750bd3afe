package autherr

import (
	"errors"
	"fmt"
)

// Error is a typed failure. Message is safe to show to callers; Err keeps the
// underlying cause for logs only.
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

// Is matches any *Error with the same code, so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Internal hides the cause behind a generic message.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", Err: err}
}

// External marks a collaborator failure (delivery gateway, OAuth provider).
func External(err error) *Error {
	return &Error{Code: CodeExternalServiceError, Message: "external service unavailable", Err: err}
}

var (
	ErrValidation           = New(CodeValidation, "invalid input")
	ErrDuplicateEmail       = New(CodeDuplicateEmail, "email already registered")
	ErrInvalidCredentials   = New(CodeInvalidCredentials, "invalid credentials")
	ErrAccountLocked        = New(CodeAccountLocked, "account temporarily locked")
	ErrAccountInactive      = New(CodeAccountInactive, "account is inactive")
	ErrInvalidToken         = New(CodeInvalidToken, "invalid token")
	ErrExpiredToken         = New(CodeExpiredToken, "token expired")
	ErrWrongTokenType       = New(CodeWrongTokenType, "wrong token type")
	ErrRateLimited          = New(CodeRateLimited, "too many requests")
	ErrCodeExpired          = New(CodeCodeExpired, "verification code expired")
	ErrCodeMismatch         = New(CodeCodeMismatch, "verification code mismatch")
	ErrNoCodeRequested      = New(CodeNoCodeRequested, "no verification code requested")
	ErrUnverifiedEmail      = New(CodeUnverifiedEmail, "provider email is not verified")
	ErrExternalServiceError = New(CodeExternalServiceError, "external service unavailable")
	ErrNotFound             = New(CodeNotFound, "not found")
	ErrUserNotFound         = New(CodeUserNotFound, "user not found")
	ErrInternal             = New(CodeInternal, "internal error")
)

// GetCode extracts the code from any error, CodeInternal when it is not typed.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func IsCode(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

// PublicMessage is the caller-facing message for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ErrInternal.Message
}
