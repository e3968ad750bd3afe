package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/config"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/domain"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/repository"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/security"

	"go.uber.org/mock/gomock"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testPassword = "Sup3rSecret"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newServiceDBForTest(t *testing.T, store string, model any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), store)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(model); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Env:                          "test",
		JWTSecret:                    "test-secret-with-at-least-32-characters",
		JWTAlgorithm:                 "HS256",
		JWTAccessTTL:                 30 * time.Minute,
		JWTRefreshTTL:                168 * time.Hour,
		RefreshTokenPepper:           "test-pepper-with-at-least-16",
		AuthLockoutMaxAttempts:       5,
		AuthLockoutDuration:          30 * time.Minute,
		AuthPhoneCodeTTL:             10 * time.Minute,
		AuthPhoneCodeMaxRequests:     3,
		AuthPasswordResetTokenTTL:    60 * time.Minute,
		AuthPasswordResetMaxRequests: 3,
		AuthPasswordResetBaseURL:     "https://circles.example.com/reset",
		AuthDeliveryTimeout:          2 * time.Second,
		OAuthTokenEncryptionKey:      "oauth-token-key-with-at-least-32-chars",
	}
}

type authServiceFixture struct {
	cfg        *config.Config
	clock      *testClock
	identities repository.IdentityRepository
	creds      repository.CredentialRepository
	cipher     *security.TokenCipher
	notifier   *MockNotificationGateway
	provider   *MockOAuthProvider
	tokens     *TokenService
	linker     *OAuthLinker
	auth       *AuthService
}

type fixtureOption func(*fixtureSetup)

type fixtureSetup struct {
	wrapCreds func(repository.CredentialRepository) repository.CredentialRepository
}

func withCredentialRepo(wrap func(repository.CredentialRepository) repository.CredentialRepository) fixtureOption {
	return func(s *fixtureSetup) { s.wrapCreds = wrap }
}

func newAuthServiceFixture(t *testing.T, opts ...fixtureOption) *authServiceFixture {
	t.Helper()
	var setup fixtureSetup
	for _, opt := range opts {
		opt(&setup)
	}

	cfg := newTestConfig()
	clock := newTestClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	identities := repository.NewIdentityRepository(newServiceDBForTest(t, "identity", &domain.Identity{}))
	creds := repository.NewCredentialRepository(newServiceDBForTest(t, "credential", &domain.Credential{}))
	if setup.wrapCreds != nil {
		creds = setup.wrapCreds(creds)
	}

	jwtMgr, err := security.NewJWTManager(cfg.JWTSecret, cfg.JWTAlgorithm, clock.Now)
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	cipher, err := security.NewTokenCipher(cfg.OAuthTokenEncryptionKey)
	if err != nil {
		t.Fatalf("token cipher: %v", err)
	}

	ctrl := gomock.NewController(t)
	notifier := NewMockNotificationGateway(ctrl)
	provider := NewMockOAuthProvider(ctrl)

	tokens := NewTokenService(jwtMgr, creds, cfg.RefreshTokenPepper, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	lockout := NewLockoutPolicy(creds, cfg.AuthLockoutMaxAttempts, cfg.AuthLockoutDuration, logger)
	phoneCodes := NewVerificationCodeManager(creds, PhoneCodePolicy(cfg.AuthPhoneCodeTTL, cfg.AuthPhoneCodeMaxRequests), clock.Now, logger)
	resetCodes := NewVerificationCodeManager(creds, PasswordResetPolicy(cfg.AuthPasswordResetTokenTTL, cfg.AuthPasswordResetMaxRequests), clock.Now, logger)
	linker := NewOAuthLinker(identities, creds, cipher, logger)

	auth := NewAuthService(cfg, identities, creds, tokens, lockout, phoneCodes, resetCodes, linker, provider, notifier, clock.Now, logger)
	return &authServiceFixture{
		cfg:        cfg,
		clock:      clock,
		identities: identities,
		creds:      creds,
		cipher:     cipher,
		notifier:   notifier,
		provider:   provider,
		tokens:     tokens,
		linker:     linker,
		auth:       auth,
	}
}

func (fx *authServiceFixture) register(t *testing.T, email, phone string) *domain.Identity {
	t.Helper()
	identity, err := fx.auth.Register(context.Background(), RegisterInput{Email: email, Password: testPassword, DisplayName: "Test User", Phone: phone})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return identity
}

func (fx *authServiceFixture) credential(t *testing.T, userID string) *domain.Credential {
	t.Helper()
	cred, err := fx.creds.FindByUserID(context.Background(), userID)
	if err != nil {
		t.Fatalf("find credential: %v", err)
	}
	return cred
}

// captureSMS makes every SendSMS succeed and stores the last code sent.
func (fx *authServiceFixture) captureSMS() *string {
	var last string
	fx.notifier.EXPECT().SendSMS(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().
		DoAndReturn(func(_ context.Context, _, code string) error {
			last = code
			return nil
		})
	return &last
}

// captureResetToken makes every SendEmail succeed and stores the token from the last link.
func (fx *authServiceFixture) captureResetToken() *string {
	var last string
	fx.notifier.EXPECT().SendEmail(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().
		DoAndReturn(func(_ context.Context, _, _, body string) error {
			last = resetTokenFromBody(body)
			return nil
		})
	return &last
}

func resetTokenFromBody(body string) string {
	i := strings.Index(body, "token=")
	if i < 0 {
		return ""
	}
	rest := body[i+len("token="):]
	if j := strings.IndexAny(rest, "&\n "); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

// failingCredentialRepo fails selected writes and delegates everything else.
type failingCredentialRepo struct {
	repository.CredentialRepository
	createErr error
	resetErr  error
}

func (r *failingCredentialRepo) ResetPassword(ctx context.Context, userID, resetDigest, hash, salt string, changedAt time.Time) error {
	if r.resetErr != nil {
		return r.resetErr
	}
	return r.CredentialRepository.ResetPassword(ctx, userID, resetDigest, hash, salt, changedAt)
}

func (r *failingCredentialRepo) Create(ctx context.Context, c *domain.Credential) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.CredentialRepository.Create(ctx, c)
}
