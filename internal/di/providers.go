package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/app"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/config"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/database"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/health"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/http/handler"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/http/router"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/observability"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/repository"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/security"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/service"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(
	provideObservabilityRuntime,
	provideAppLogger,
)

var RuntimeInfraSet = wire.NewSet(
	provideRuntimeStores,
	provideRedisClient,
	provideReadinessCheckRunner,
)

var RepositorySet = wire.NewSet(
	provideIdentityRepository,
	provideCredentialRepository,
)

var SecuritySet = wire.NewSet(
	provideClock,
	provideJWTManager,
	provideTokenCipher,
)

var ServiceSet = wire.NewSet(
	provideTokenService,
	provideLockoutPolicy,
	provideVerificationCodes,
	service.NewOAuthLinker,
	provideOAuthProvider,
	service.NewNotificationGateway,
	provideAuthService,
)

var HTTPSet = wire.NewSet(
	wire.Bind(new(service.AuthServiceInterface), new(*service.AuthService)),
	provideAbuseGuard,
	handler.NewAuthHandler,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(provideApp)

var AdminSet = wire.NewSet(
	observability.NewBootstrapLogger,
	provideAdminStores,
	wire.Bind(new(service.AccountAdmin), new(*service.AuthService)),
)

// MigrationRunner applies and reports the schema of both stores for authctl.
type MigrationRunner struct {
	stores *database.Stores
}

func NewMigrationRunner(stores *database.Stores) (*MigrationRunner, func()) {
	return &MigrationRunner{stores: stores}, func() { _ = stores.Close() }
}

func (m *MigrationRunner) Up() error { return database.Migrate(m.stores) }

func (m *MigrationRunner) Status() []database.TableStatus { return database.Status(m.stores) }

// Clock is the time source shared by every component of one process.
type Clock func() time.Time

// verificationCodes keeps the two code managers apart for the injector.
type verificationCodes struct {
	phone *service.VerificationCodeManager
	reset *service.VerificationCodeManager
}

func provideObservabilityRuntime(cfg *config.Config) (*observability.Runtime, error) {
	bootstrapLogger := observability.NewBootstrapLogger(cfg)
	return observability.InitRuntime(context.Background(), cfg, bootstrapLogger)
}

func provideAppLogger(cfg *config.Config, runtime *observability.Runtime) *slog.Logger {
	return observability.InitLogger(cfg, runtime.LoggerProvider)
}

func provideOpenStores(cfg *config.Config) (*database.Stores, error) {
	return database.OpenStores(cfg)
}

// provideAdminStores opens both stores for a one-shot operator command.
func provideAdminStores(cfg *config.Config) (*database.Stores, func(), error) {
	stores, err := database.OpenStores(cfg)
	if err != nil {
		return nil, nil, err
	}
	return stores, func() { _ = stores.Close() }, nil
}

func provideRuntimeStores(cfg *config.Config) (*database.Stores, error) {
	stores, err := database.OpenStores(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(stores); err != nil {
		_ = stores.Close()
		return nil, err
	}
	return stores, nil
}

func provideRedisClient(cfg *config.Config, logger *slog.Logger) redis.UniversalClient {
	if !cfg.RedisEnabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	observability.InstrumentRedisClient(client, "abuse_guard", logger)
	return client
}

func provideReadinessCheckRunner(cfg *config.Config, stores *database.Stores, redisClient redis.UniversalClient) *health.CheckRunner {
	return health.NewCheckRunner(cfg.ReadinessCheckTimeout, 0,
		health.NewDBChecker("identity_db", stores.Identity),
		health.NewDBChecker("credential_db", stores.Credential),
		health.NewSchemaChecker(stores),
		health.NewRedisChecker(redisClient),
	)
}

func provideIdentityRepository(stores *database.Stores) repository.IdentityRepository {
	return repository.NewIdentityRepository(stores.Identity)
}

func provideCredentialRepository(stores *database.Stores) repository.CredentialRepository {
	return repository.NewCredentialRepository(stores.Credential)
}

func provideClock() Clock { return time.Now }

func provideJWTManager(cfg *config.Config, clock Clock) (*security.JWTManager, error) {
	return security.NewJWTManager(cfg.JWTSecret, cfg.JWTAlgorithm, clock)
}

// provideTokenCipher returns nil when no key is configured; provider tokens
// are then not persisted.
func provideTokenCipher(cfg *config.Config) (*security.TokenCipher, error) {
	if cfg.OAuthTokenEncryptionKey == "" {
		return nil, nil
	}
	return security.NewTokenCipher(cfg.OAuthTokenEncryptionKey)
}

func provideTokenService(cfg *config.Config, jwtMgr *security.JWTManager, credRepo repository.CredentialRepository) *service.TokenService {
	return service.NewTokenService(jwtMgr, credRepo, cfg.RefreshTokenPepper, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
}

func provideLockoutPolicy(cfg *config.Config, credRepo repository.CredentialRepository, logger *slog.Logger) *service.LockoutPolicy {
	return service.NewLockoutPolicy(credRepo, cfg.AuthLockoutMaxAttempts, cfg.AuthLockoutDuration, logger)
}

func provideVerificationCodes(cfg *config.Config, credRepo repository.CredentialRepository, clock Clock, logger *slog.Logger) verificationCodes {
	return verificationCodes{
		phone: service.NewVerificationCodeManager(credRepo, service.PhoneCodePolicy(cfg.AuthPhoneCodeTTL, cfg.AuthPhoneCodeMaxRequests), clock, logger),
		reset: service.NewVerificationCodeManager(credRepo, service.PasswordResetPolicy(cfg.AuthPasswordResetTokenTTL, cfg.AuthPasswordResetMaxRequests), clock, logger),
	}
}

func provideOAuthProvider(cfg *config.Config) (service.OAuthProvider, error) {
	if !cfg.AuthGoogleEnabled {
		return nil, nil
	}
	return service.NewGoogleOAuthProvider(context.Background(), cfg)
}

func provideAuthService(
	cfg *config.Config,
	identityRepo repository.IdentityRepository,
	credRepo repository.CredentialRepository,
	tokenSvc *service.TokenService,
	lockout *service.LockoutPolicy,
	codes verificationCodes,
	linker *service.OAuthLinker,
	provider service.OAuthProvider,
	notifier service.NotificationGateway,
	clock Clock,
	logger *slog.Logger,
) *service.AuthService {
	return service.NewAuthService(cfg, identityRepo, credRepo, tokenSvc, lockout, codes.phone, codes.reset, linker, provider, notifier, clock, logger)
}

func provideAbuseGuard(cfg *config.Config, redisClient redis.UniversalClient, clock Clock) service.AbuseGuard {
	if !cfg.AuthAbuseProtectionEnabled {
		return service.NoopAbuseGuard{}
	}
	policy := service.AbusePolicy{
		FreeAttempts: cfg.AuthAbuseFreeAttempts,
		BaseDelay:    cfg.AuthAbuseBaseDelay,
		Multiplier:   cfg.AuthAbuseMultiplier,
		MaxDelay:     cfg.AuthAbuseMaxDelay,
		ResetWindow:  cfg.AuthAbuseResetWindow,
	}
	if redisClient != nil {
		return service.NewRedisAbuseGuard(redisClient, cfg.RedisPrefix, policy, clock)
	}
	return service.NewMemoryAbuseGuard(policy, clock)
}

func provideRouterDependencies(authHandler *handler.AuthHandler, readiness *health.CheckRunner, logger *slog.Logger, cfg *config.Config) router.Dependencies {
	return router.Dependencies{
		AuthHandler:    authHandler,
		Readiness:      readiness,
		Logger:         logger,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		BodyLimitBytes: cfg.HTTPBodyLimitBytes,
		EnableOTelHTTP: cfg.OTELMetricsEnabled || cfg.OTELTracingEnabled,
	}
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func provideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	stores *database.Stores,
	redisClient redis.UniversalClient,
) *app.App {
	return app.New(cfg, logger, server, runtime, stores, redisClient)
}
