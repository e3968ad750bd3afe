package service

import (
	"context"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/domain"
)

// AuthServiceInterface is what the HTTP boundary and authctl depend on.
type AuthServiceInterface interface {
	Register(ctx context.Context, in RegisterInput) (*domain.Identity, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResult, error)
	Logout(ctx context.Context, refreshToken string) (bool, error)
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
	SendPhoneVerification(ctx context.Context, phone string) error
	VerifyPhoneCode(ctx context.Context, phone, code string) error
	LoginWithOAuth(ctx context.Context, assertion Assertion) (*AuthResult, error)
	LoginWithOAuthToken(ctx context.Context, rawToken string) (*AuthResult, error)
	LoginWithOAuthCode(ctx context.Context, code string) (*AuthResult, error)
	OAuthLoginURL(state string) (string, error)
	Me(ctx context.Context, accessToken string) (*domain.Identity, error)
}

// AccountAdmin holds the operator actions used by authctl.
type AccountAdmin interface {
	Describe(ctx context.Context, emailOrID string) (*AccountView, error)
	Deactivate(ctx context.Context, userID string) error
	Unlock(ctx context.Context, userID string) error
}

// NotificationGateway delivers codes out of band. Failures must be returned
// so the caller can roll back the code request.
type NotificationGateway interface {
	SendSMS(ctx context.Context, phone, code string) error
	SendEmail(ctx context.Context, to, subject, body string) error
}

// OAuthProvider turns a provider-issued token into a trusted Assertion.
type OAuthProvider interface {
	Name() string
	VerifyAssertion(ctx context.Context, rawToken string) (*Assertion, error)
}

// OAuthCodeExchanger is implemented by providers that support the
// authorization code flow.
type OAuthCodeExchanger interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*Assertion, error)
}

type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone,omitempty"`
}

type AuthResult struct {
	Identity         *domain.Identity `json:"user"`
	AccessToken      string           `json:"access_token"`
	RefreshToken     string           `json:"refresh_token"`
	TokenType        string           `json:"token_type"`
	ExpiresAt        time.Time        `json:"expires_at"`
	RefreshExpiresAt time.Time        `json:"refresh_expires_at"`
	IsNewUser        bool             `json:"is_new_user"`
}

// AccountView is the operator-facing summary of one account across both stores.
type AccountView struct {
	Identity            *domain.Identity `json:"identity"`
	HasPassword         bool             `json:"has_password"`
	OAuthLinked         bool             `json:"oauth_linked"`
	FailedLoginAttempts int              `json:"failed_login_attempts"`
	LockedUntil         *time.Time       `json:"locked_until,omitempty"`
	HasActiveSession    bool             `json:"has_active_session"`
}
