package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/autherr"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/config"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/domain"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/observability"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/repository"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/security"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PasswordResetRequestedMessage is the only answer a reset request ever gets.
const PasswordResetRequestedMessage = "If an account exists for that email, a password reset link has been sent."

var ErrOAuthDisabled = autherr.New(autherr.CodeNotFound, "oauth login is not enabled")

type AuthService struct {
	cfg          *config.Config
	identityRepo repository.IdentityRepository
	credRepo     repository.CredentialRepository
	tokenSvc     *TokenService
	lockout      *LockoutPolicy
	phoneCodes   *VerificationCodeManager
	resetCodes   *VerificationCodeManager
	linker       *OAuthLinker
	provider     OAuthProvider
	notifier     NotificationGateway
	now          func() time.Time
	logger       *slog.Logger
}

// NewAuthService wires the use-cases. provider may be nil when no OAuth
// provider is configured.
func NewAuthService(
	cfg *config.Config,
	identityRepo repository.IdentityRepository,
	credRepo repository.CredentialRepository,
	tokenSvc *TokenService,
	lockout *LockoutPolicy,
	phoneCodes *VerificationCodeManager,
	resetCodes *VerificationCodeManager,
	linker *OAuthLinker,
	provider OAuthProvider,
	notifier NotificationGateway,
	now func() time.Time,
	logger *slog.Logger,
) *AuthService {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		cfg:          cfg,
		identityRepo: identityRepo,
		credRepo:     credRepo,
		tokenSvc:     tokenSvc,
		lockout:      lockout,
		phoneCodes:   phoneCodes,
		resetCodes:   resetCodes,
		linker:       linker,
		provider:     provider,
		notifier:     notifier,
		now:          now,
		logger:       logger,
	}
}

// begin opens the span for one use-case; end closes it and records the outcome.
func (s *AuthService) begin(ctx context.Context, flow string) (context.Context, func(*error)) {
	ctx, span := observability.Tracer().Start(ctx, "auth."+flow)
	return ctx, func(errp *error) {
		err := *errp
		out := outcome(err)
		span.SetAttributes(attribute.String("auth.outcome", out))
		if err != nil {
			if autherr.GetCode(err) == autherr.CodeInternal {
				span.RecordError(err)
				s.logger.ErrorContext(ctx, "auth flow failed", "flow", flow, "error", err)
			}
			span.SetStatus(codes.Error, out)
		}
		span.End()
		observability.RecordAuthFlowEvent(ctx, flow, out)
	}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (identity *domain.Identity, err error) {
	ctx, end := s.begin(ctx, "register")
	defer end(&err)

	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	var phone *string
	if strings.TrimSpace(in.Phone) != "" {
		p, err := normalizePhone(in.Phone)
		if err != nil {
			return nil, err
		}
		phone = &p
	}

	if _, err := s.identityRepo.FindByEmail(ctx, email); err == nil {
		return nil, autherr.ErrDuplicateEmail
	} else if !isNotFound(err) {
		return nil, storeError(err)
	}
	if phone != nil {
		if _, err := s.identityRepo.FindByPhone(ctx, *phone); err == nil {
			return nil, autherr.Validation("phone number already registered")
		} else if !isNotFound(err) {
			return nil, storeError(err)
		}
	}

	salt, err := security.NewSalt()
	if err != nil {
		return nil, autherr.Internal(err)
	}
	hash, err := security.HashPassword(in.Password, salt)
	if err != nil {
		return nil, autherr.Internal(err)
	}

	identity = &domain.Identity{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: displayNameOrDefault(in.DisplayName, email),
		Phone:       phone,
		IsActive:    true,
	}
	if err := s.identityRepo.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, autherr.ErrDuplicateEmail
		}
		return nil, storeError(err)
	}
	if err := s.credRepo.Create(ctx, &domain.Credential{UserID: identity.ID, PasswordHash: hash, Salt: salt}); err != nil {
		compensateIdentity(ctx, s.identityRepo, identity.ID, "register", s.logger)
		return nil, storeError(err)
	}
	s.logger.InfoContext(ctx, "identity registered", "user_id", identity.ID)
	return identity, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (result *AuthResult, err error) {
	ctx, end := s.begin(ctx, "login")
	defer end(&err)

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, autherr.ErrInvalidCredentials
	}
	identity, err := s.identityRepo.FindByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil, autherr.ErrInvalidCredentials
		}
		return nil, storeError(err)
	}
	cred, err := s.credRepo.FindByUserID(ctx, identity.ID)
	if err != nil {
		if isNotFound(err) {
			return nil, autherr.ErrInvalidCredentials
		}
		return nil, storeError(err)
	}

	now := s.now()
	locked, err := s.lockout.Check(ctx, cred, now)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, autherr.ErrAccountLocked
	}
	if !cred.HasPassword() {
		return nil, autherr.ErrInvalidCredentials
	}
	ok, err := security.VerifyPassword(cred.PasswordHash, password, cred.Salt)
	if err != nil {
		return nil, autherr.Internal(err)
	}
	if !ok {
		nowLocked, err := s.lockout.RecordFailure(ctx, cred, now)
		if err != nil {
			return nil, err
		}
		if nowLocked {
			return nil, autherr.ErrAccountLocked
		}
		return nil, autherr.ErrInvalidCredentials
	}
	if !identity.IsActive {
		return nil, autherr.ErrAccountInactive
	}
	if err := s.lockout.RecordSuccess(ctx, cred); err != nil {
		return nil, err
	}
	return s.startSession(ctx, identity, false)
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (result *AuthResult, err error) {
	ctx, end := s.begin(ctx, "refresh")
	defer end(&err)

	claims, err := s.tokenSvc.Verify(refreshToken, domain.TokenKindRefresh)
	if err != nil {
		return nil, err
	}
	identity, err := s.identityRepo.FindByID(ctx, claims.Subject)
	if err != nil {
		if isNotFound(err) {
			return nil, autherr.ErrUserNotFound
		}
		return nil, storeError(err)
	}
	if !identity.IsActive {
		return nil, autherr.ErrAccountInactive
	}
	pair, err := s.tokenSvc.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return newAuthResult(identity, pair, false), nil
}

// Logout reports whether a live session was ended. Unknown or already
// rotated tokens answer false without an error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) (revoked bool, err error) {
	ctx, end := s.begin(ctx, "logout")
	defer end(&err)
	return s.tokenSvc.Revoke(ctx, refreshToken)
}

// RequestPasswordReset answers PasswordResetRequestedMessage whether or not
// the account exists. Lookup, rate and delivery failures are only logged.
//
// With AuthPasswordResetResponseTime set, every call answers after that floor
// so timing does not tell a registered email from an unknown one. Delivery
// still running at the floor completes detached, bounded by
// AuthDeliveryTimeout.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	var err error
	ctx, end := s.begin(ctx, "password_reset_request")
	defer end(&err)

	email = normalizeEmail(email)
	floor := s.cfg.AuthPasswordResetResponseTime
	if floor <= 0 {
		err = s.requestPasswordReset(ctx, email)
		s.logResetRequest(ctx, err)
		return PasswordResetRequestedMessage, nil
	}

	work := context.WithoutCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- s.requestPasswordReset(work, email) }()

	timer := time.NewTimer(floor)
	defer timer.Stop()
	select {
	case err = <-done:
		s.logResetRequest(ctx, err)
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	case <-timer.C:
		go func() { s.logResetRequest(work, <-done) }()
	}
	return PasswordResetRequestedMessage, nil
}

func (s *AuthService) logResetRequest(ctx context.Context, err error) {
	if err != nil && autherr.GetCode(err) != autherr.CodeNotFound {
		s.logger.WarnContext(ctx, "password reset request not delivered", "error", err)
	}
}

func (s *AuthService) requestPasswordReset(ctx context.Context, email string) error {
	if validateEmail(email) != nil {
		return autherr.ErrNotFound
	}
	identity, err := s.identityRepo.FindByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return autherr.ErrNotFound
		}
		return storeError(err)
	}
	if !identity.IsActive {
		return autherr.ErrNotFound
	}
	cred, err := s.credRepo.FindByUserID(ctx, identity.ID)
	if err != nil {
		return storeError(err)
	}
	return s.resetCodes.Request(ctx, cred, func(ctx context.Context, token string, expiresAt time.Time) error {
		body, err := s.passwordResetBody(token, expiresAt)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(ctx, s.cfg.AuthDeliveryTimeout)
		defer cancel()
		return s.notifier.SendEmail(ctx, identity.Email, "Reset your password", body)
	})
}

func (s *AuthService) passwordResetBody(token string, expiresAt time.Time) (string, error) {
	base := strings.TrimSpace(s.cfg.AuthPasswordResetBaseURL)
	if base == "" {
		return fmt.Sprintf("Use this token to reset your password: %s\nIt expires at %s.", token, expiresAt.UTC().Format(time.RFC1123)), nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid AUTH_PASSWORD_RESET_BASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return fmt.Sprintf("Reset your password here: %s\nThe link expires at %s.", u.String(), expiresAt.UTC().Format(time.RFC1123)), nil
}

func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) (err error) {
	ctx, end := s.begin(ctx, "password_reset_confirm")
	defer end(&err)

	token = strings.TrimSpace(token)
	if token == "" {
		return autherr.Validation("reset token is required")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	cred, err := s.credRepo.FindByResetDigest(ctx, security.DigestCode(token))
	if err != nil {
		if isNotFound(err) {
			return autherr.ErrCodeMismatch
		}
		return storeError(err)
	}
	digest, err := s.resetCodes.Match(ctx, cred, token)
	if err != nil {
		return err
	}
	salt, err := security.NewSalt()
	if err != nil {
		return autherr.Internal(err)
	}
	hash, err := security.HashPassword(newPassword, salt)
	if err != nil {
		return autherr.Internal(err)
	}
	// The code is spent by the same UPDATE that installs the password, so a
	// failed write leaves the token usable.
	resetErr := s.credRepo.ResetPassword(ctx, cred.UserID, digest, hash, salt, s.now())
	if err := s.resetCodes.Spent(ctx, cred, resetErr); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "password reset completed", "user_id", cred.UserID)
	return nil
}

func (s *AuthService) SendPhoneVerification(ctx context.Context, phone string) (err error) {
	ctx, end := s.begin(ctx, "phone_verification_send")
	defer end(&err)

	phone, err = normalizePhone(phone)
	if err != nil {
		return err
	}
	identity, cred, err := s.accountByPhone(ctx, phone)
	if err != nil {
		return err
	}
	if identity.PhoneVerified {
		return autherr.Validation("phone number already verified")
	}
	return s.phoneCodes.Request(ctx, cred, func(ctx context.Context, code string, _ time.Time) error {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.AuthDeliveryTimeout)
		defer cancel()
		return s.notifier.SendSMS(ctx, phone, code)
	})
}

func (s *AuthService) VerifyPhoneCode(ctx context.Context, phone, code string) (err error) {
	ctx, end := s.begin(ctx, "phone_verification_confirm")
	defer end(&err)

	phone, err = normalizePhone(phone)
	if err != nil {
		return err
	}
	identity, cred, err := s.accountByPhone(ctx, phone)
	if err != nil {
		return err
	}
	if err := s.phoneCodes.Verify(ctx, cred, strings.TrimSpace(code)); err != nil {
		return err
	}
	if err := s.identityRepo.MarkPhoneVerified(ctx, identity.ID); err != nil {
		return storeError(err)
	}
	return nil
}

func (s *AuthService) accountByPhone(ctx context.Context, phone string) (*domain.Identity, *domain.Credential, error) {
	identity, err := s.identityRepo.FindByPhone(ctx, phone)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, autherr.ErrNotFound
		}
		return nil, nil, storeError(err)
	}
	cred, err := s.credRepo.FindByUserID(ctx, identity.ID)
	if err != nil {
		return nil, nil, storeError(err)
	}
	return identity, cred, nil
}

func (s *AuthService) LoginWithOAuth(ctx context.Context, assertion Assertion) (result *AuthResult, err error) {
	ctx, end := s.begin(ctx, "oauth_login")
	defer end(&err)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("auth.provider", assertion.Provider))

	link, err := s.linker.Resolve(ctx, assertion)
	if err != nil {
		return nil, err
	}
	if !link.Identity.IsActive {
		return nil, autherr.ErrAccountInactive
	}
	return s.startSession(ctx, link.Identity, link.IsNewUser)
}

func (s *AuthService) LoginWithOAuthToken(ctx context.Context, rawToken string) (*AuthResult, error) {
	if s.provider == nil {
		return nil, ErrOAuthDisabled
	}
	assertion, err := s.provider.VerifyAssertion(ctx, rawToken)
	if err != nil {
		observability.RecordAuthFlowEvent(ctx, "oauth_login", outcome(err))
		return nil, err
	}
	return s.LoginWithOAuth(ctx, *assertion)
}

func (s *AuthService) LoginWithOAuthCode(ctx context.Context, code string) (*AuthResult, error) {
	exchanger, ok := s.provider.(OAuthCodeExchanger)
	if !ok {
		return nil, ErrOAuthDisabled
	}
	if strings.TrimSpace(code) == "" {
		return nil, autherr.Validation("authorization code is required")
	}
	assertion, err := exchanger.ExchangeCode(ctx, code)
	if err != nil {
		observability.RecordAuthFlowEvent(ctx, "oauth_login", outcome(err))
		return nil, err
	}
	return s.LoginWithOAuth(ctx, *assertion)
}

func (s *AuthService) OAuthLoginURL(state string) (string, error) {
	exchanger, ok := s.provider.(OAuthCodeExchanger)
	if !ok {
		return "", ErrOAuthDisabled
	}
	return exchanger.AuthCodeURL(state), nil
}

func (s *AuthService) Me(ctx context.Context, accessToken string) (*domain.Identity, error) {
	claims, err := s.tokenSvc.Verify(accessToken, domain.TokenKindAccess)
	if err != nil {
		return nil, err
	}
	identity, err := s.identityRepo.FindByID(ctx, claims.Subject)
	if err != nil {
		if isNotFound(err) {
			return nil, autherr.ErrUserNotFound
		}
		return nil, storeError(err)
	}
	if !identity.IsActive {
		return nil, autherr.ErrAccountInactive
	}
	return identity, nil
}

// Describe looks an account up by email or id for operators.
func (s *AuthService) Describe(ctx context.Context, emailOrID string) (*AccountView, error) {
	identity, err := s.findAccount(ctx, emailOrID)
	if err != nil {
		return nil, err
	}
	cred, err := s.credRepo.FindByUserID(ctx, identity.ID)
	if err != nil {
		return nil, storeError(err)
	}
	view := &AccountView{
		Identity:            identity,
		HasPassword:         cred.HasPassword(),
		OAuthLinked:         cred.OAuthExternalID != nil,
		FailedLoginAttempts: cred.FailedLoginAttempts,
		HasActiveSession:    cred.RefreshTokenHash != nil,
	}
	if s.lockout.IsLocked(cred, s.now()) {
		view.LockedUntil = cred.LockedUntil
	}
	return view, nil
}

// Deactivate disables the identity and ends its session.
func (s *AuthService) Deactivate(ctx context.Context, userID string) (err error) {
	ctx, end := s.begin(ctx, "deactivate")
	defer end(&err)

	if err := s.identityRepo.SetActive(ctx, userID, false); err != nil {
		if isNotFound(err) {
			return autherr.ErrUserNotFound
		}
		return storeError(err)
	}
	if err := s.tokenSvc.RevokeAll(ctx, userID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "identity deactivated", "user_id", userID)
	return nil
}

func (s *AuthService) Unlock(ctx context.Context, userID string) (err error) {
	ctx, end := s.begin(ctx, "unlock")
	defer end(&err)
	return s.lockout.Unlock(ctx, userID)
}

func (s *AuthService) findAccount(ctx context.Context, emailOrID string) (*domain.Identity, error) {
	key := strings.TrimSpace(emailOrID)
	var (
		identity *domain.Identity
		err      error
	)
	if strings.Contains(key, "@") {
		identity, err = s.identityRepo.FindByEmail(ctx, normalizeEmail(key))
	} else {
		identity, err = s.identityRepo.FindByID(ctx, key)
	}
	if err != nil {
		if isNotFound(err) {
			return nil, autherr.ErrUserNotFound
		}
		return nil, storeError(err)
	}
	return identity, nil
}

func (s *AuthService) startSession(ctx context.Context, identity *domain.Identity, isNew bool) (*AuthResult, error) {
	now := s.now()
	if err := s.identityRepo.TouchLastLogin(ctx, identity.ID, now); err != nil {
		return nil, storeError(err)
	}
	identity.LastLoginAt = &now
	pair, err := s.tokenSvc.IssuePair(ctx, identity)
	if err != nil {
		return nil, err
	}
	return newAuthResult(identity, pair, isNew), nil
}

func newAuthResult(identity *domain.Identity, pair *TokenPair, isNew bool) *AuthResult {
	return &AuthResult{
		Identity:         identity,
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		ExpiresAt:        pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		IsNewUser:        isNew,
	}
}
