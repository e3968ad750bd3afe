package domain

import "fmt"

type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

func ParseTokenKind(v string) (TokenKind, error) {
	switch TokenKind(v) {
	case TokenKindAccess, TokenKindRefresh:
		return TokenKind(v), nil
	default:
		return "", fmt.Errorf("unknown token kind %q", v)
	}
}

// CodePurpose selects which code fields of a Credential a verification code lives in.
type CodePurpose string

const (
	CodePurposePhone         CodePurpose = "phone_verification"
	CodePurposePasswordReset CodePurpose = "password_reset"
)

func (p CodePurpose) Valid() bool {
	return p == CodePurposePhone || p == CodePurposePasswordReset
}

type IdentityStatus string

const (
	IdentityStatusPending  IdentityStatus = "pending"
	IdentityStatusVerified IdentityStatus = "verified"
	IdentityStatusInactive IdentityStatus = "inactive"
)
