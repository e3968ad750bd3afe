// Package autherr defines the typed failure kinds returned by the identity core.
package autherr

import "net/http"

// Code is a stable, machine-readable failure kind.
type Code string

const (
	CodeInternal             Code = "INTERNAL"
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeDuplicateEmail       Code = "DUPLICATE_EMAIL"
	CodeInvalidCredentials   Code = "INVALID_CREDENTIALS"
	CodeAccountLocked        Code = "ACCOUNT_LOCKED"
	CodeAccountInactive      Code = "ACCOUNT_INACTIVE"
	CodeInvalidToken         Code = "INVALID_TOKEN"
	CodeExpiredToken         Code = "EXPIRED_TOKEN"
	CodeWrongTokenType       Code = "WRONG_TOKEN_TYPE"
	CodeRateLimited          Code = "RATE_LIMITED"
	CodeCodeExpired          Code = "CODE_EXPIRED"
	CodeCodeMismatch         Code = "CODE_MISMATCH"
	CodeNoCodeRequested      Code = "NO_CODE_REQUESTED"
	CodeUnverifiedEmail      Code = "UNVERIFIED_EMAIL"
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeNotFound             Code = "NOT_FOUND"
	CodeUserNotFound         Code = "USER_NOT_FOUND"
)

// HTTPStatus maps a code to the status used by the HTTP boundary.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeDuplicateEmail:
		return http.StatusConflict
	case CodeInvalidCredentials, CodeInvalidToken, CodeExpiredToken, CodeWrongTokenType:
		return http.StatusUnauthorized
	case CodeAccountLocked:
		return http.StatusLocked
	case CodeAccountInactive, CodeUnverifiedEmail:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeCodeExpired, CodeCodeMismatch, CodeNoCodeRequested:
		return http.StatusBadRequest
	case CodeNotFound, CodeUserNotFound:
		return http.StatusNotFound
	case CodeExternalServiceError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
