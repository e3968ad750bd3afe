package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the signed claim set: sub, email, type, exp, iat and jti.
type Claims struct {
	Email string           `json:"email"`
	Type  domain.TokenKind `json:"type"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	method jwt.SigningMethod
	secret []byte
	now    func() time.Time
}

// NewJWTManager accepts HS256, HS384 or HS512. A nil now uses time.Now.
func NewJWTManager(secret, algorithm string, now func() time.Time) (*JWTManager, error) {
	var method jwt.SigningMethod
	switch strings.ToUpper(algorithm) {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported jwt algorithm %q", algorithm)
	}
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if now == nil {
		now = time.Now
	}
	return &JWTManager{method: method, secret: []byte(secret), now: now}, nil
}

func (m *JWTManager) Now() time.Time { return m.now() }

func (m *JWTManager) Sign(subject, email string, kind domain.TokenKind, ttl time.Duration) (string, error) {
	jti, err := NewRandomString(16)
	if err != nil {
		return "", err
	}
	issued := m.now()
	claims := Claims{
		Email: email,
		Type:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(m.method, claims).SignedString(m.secret)
}

// Parse checks signature, algorithm and expiry, and that the type claim is a known
// kind. Matching the type against the expected kind is left to the caller.
func (m *JWTManager) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	if _, err := domain.ParseTokenKind(string(claims.Type)); err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
