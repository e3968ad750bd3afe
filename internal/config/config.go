package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	HTTPBodyLimitBytes int64    `env:"HTTP_BODY_LIMIT_BYTES" envDefault:"65536"`

	IdentityDatabaseURL   string `env:"IDENTITY_DATABASE_URL"`
	CredentialDatabaseURL string `env:"CREDENTIAL_DATABASE_URL"`

	JWTSecret          string        `env:"JWT_SECRET"`
	JWTAlgorithm       string        `env:"JWT_ALGORITHM" envDefault:"HS256"`
	JWTAccessTTL       time.Duration `env:"JWT_ACCESS_TTL" envDefault:"30m"`
	JWTRefreshTTL      time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`
	RefreshTokenPepper string        `env:"REFRESH_TOKEN_PEPPER"`

	AuthLockoutMaxAttempts int           `env:"AUTH_LOCKOUT_MAX_ATTEMPTS" envDefault:"5"`
	AuthLockoutDuration    time.Duration `env:"AUTH_LOCKOUT_DURATION" envDefault:"30m"`

	AuthPhoneCodeTTL             time.Duration `env:"AUTH_PHONE_CODE_TTL" envDefault:"10m"`
	AuthPhoneCodeMaxRequests     int           `env:"AUTH_PHONE_CODE_MAX_REQUESTS" envDefault:"3"`
	AuthPasswordResetTokenTTL    time.Duration `env:"AUTH_PASSWORD_RESET_TOKEN_TTL" envDefault:"60m"`
	AuthPasswordResetMaxRequests int           `env:"AUTH_PASSWORD_RESET_MAX_REQUESTS" envDefault:"3"`
	AuthPasswordResetBaseURL     string        `env:"AUTH_PASSWORD_RESET_BASE_URL"`
	AuthDeliveryTimeout          time.Duration `env:"AUTH_DELIVERY_TIMEOUT" envDefault:"10s"`
	// AuthPasswordResetResponseTime is the minimum time a reset request takes
	// to answer, registered email or not. Zero answers once the work is done.
	AuthPasswordResetResponseTime time.Duration `env:"AUTH_PASSWORD_RESET_RESPONSE_TIME" envDefault:"1s"`

	AuthGoogleEnabled        bool          `env:"AUTH_GOOGLE_ENABLED" envDefault:"false"`
	GoogleClientID           string        `env:"GOOGLE_OAUTH_CLIENT_ID"`
	GoogleClientSecret       string        `env:"GOOGLE_OAUTH_CLIENT_SECRET"`
	GoogleRedirectURL        string        `env:"GOOGLE_OAUTH_REDIRECT_URL" envDefault:"http://localhost:8080/api/v1/auth/oauth/google/callback"`
	OAuthTokenEncryptionKey  string        `env:"OAUTH_TOKEN_ENCRYPTION_KEY"`
	OAuthProviderCallTimeout time.Duration `env:"OAUTH_PROVIDER_CALL_TIMEOUT" envDefault:"10s"`

	NotificationDriver string `env:"NOTIFICATION_DRIVER" envDefault:"log"`
	SMTPHost           string `env:"SMTP_HOST"`
	SMTPPort           int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername       string `env:"SMTP_USERNAME"`
	SMTPPassword       string `env:"SMTP_PASSWORD"`
	SMTPFrom           string `env:"SMTP_FROM"`

	SMSDriver     string `env:"SMS_DRIVER" envDefault:"log"`
	SMSWebhookURL string `env:"SMS_WEBHOOK_URL"`
	SMSSenderID   string `env:"SMS_SENDER_ID" envDefault:"Circles"`

	AuthAbuseProtectionEnabled bool          `env:"AUTH_ABUSE_PROTECTION_ENABLED" envDefault:"true"`
	AuthAbuseFreeAttempts      int           `env:"AUTH_ABUSE_FREE_ATTEMPTS" envDefault:"10"`
	AuthAbuseBaseDelay         time.Duration `env:"AUTH_ABUSE_BASE_DELAY" envDefault:"2s"`
	AuthAbuseMultiplier        float64       `env:"AUTH_ABUSE_MULTIPLIER" envDefault:"2"`
	AuthAbuseMaxDelay          time.Duration `env:"AUTH_ABUSE_MAX_DELAY" envDefault:"5m"`
	AuthAbuseResetWindow       time.Duration `env:"AUTH_ABUSE_RESET_WINDOW" envDefault:"30m"`

	RedisEnabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"circle_auth"`

	ReadinessCheckTimeout        time.Duration `env:"READINESS_CHECK_TIMEOUT" envDefault:"1s"`
	ShutdownTimeout              time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"20s"`
	ShutdownHTTPDrainTimeout     time.Duration `env:"SHUTDOWN_HTTP_DRAIN_TIMEOUT" envDefault:"10s"`
	ShutdownObservabilityTimeout time.Duration `env:"SHUTDOWN_OBSERVABILITY_TIMEOUT" envDefault:"8s"`

	OTELServiceName           string        `env:"OTEL_SERVICE_NAME" envDefault:"circle-identity-core"`
	OTELEnvironment           string        `env:"OTEL_ENVIRONMENT"`
	OTELExporterOTLPEndpoint  string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTELExporterOTLPInsecure  bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELMetricsExportInterval time.Duration `env:"OTEL_METRICS_EXPORT_INTERVAL" envDefault:"10s"`
	OTELTraceSamplingRatio    float64       `env:"OTEL_TRACE_SAMPLING_RATIO" envDefault:"1.0"`
	OTELMetricsEnabled        bool          `env:"OTEL_METRICS_ENABLED" envDefault:"false"`
	OTELTracingEnabled        bool          `env:"OTEL_TRACING_ENABLED" envDefault:"false"`
	OTELLogsEnabled           bool          `env:"OTEL_LOGS_ENABLED" envDefault:"false"`
	OTELLogLevel              string        `env:"OTEL_LOG_LEVEL" envDefault:"info"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.OTELEnvironment == "" {
		cfg.OTELEnvironment = cfg.Env
	}
	cfg.JWTAlgorithm = strings.ToUpper(strings.TrimSpace(cfg.JWTAlgorithm))
	cfg.NotificationDriver = strings.ToLower(strings.TrimSpace(cfg.NotificationDriver))
	cfg.SMSDriver = strings.ToLower(strings.TrimSpace(cfg.SMSDriver))
	cfg.OTELLogLevel = strings.ToLower(cfg.OTELLogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.IdentityDatabaseURL == "" {
		errs = append(errs, "IDENTITY_DATABASE_URL is required")
	}
	if c.CredentialDatabaseURL == "" {
		errs = append(errs, "CREDENTIAL_DATABASE_URL is required")
	}
	if c.IdentityDatabaseURL != "" && c.IdentityDatabaseURL == c.CredentialDatabaseURL && !isLocalLikeEnv(c.Env) {
		errs = append(errs, "CREDENTIAL_DATABASE_URL must differ from IDENTITY_DATABASE_URL outside local environments")
	}
	if len(c.JWTSecret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 chars")
	}
	if !isValidJWTAlgorithm(c.JWTAlgorithm) {
		errs = append(errs, "JWT_ALGORITHM must be one of HS256, HS384, HS512")
	}
	if len(c.RefreshTokenPepper) < 16 {
		errs = append(errs, "REFRESH_TOKEN_PEPPER must be at least 16 chars")
	}
	if c.JWTAccessTTL <= 0 || c.JWTAccessTTL > 24*time.Hour {
		errs = append(errs, "JWT_ACCESS_TTL must be between 1s and 24h")
	}
	if c.JWTRefreshTTL <= 0 || c.JWTRefreshTTL > (30*24*time.Hour) {
		errs = append(errs, "JWT_REFRESH_TTL must be between 1s and 30d")
	}
	if c.HTTPBodyLimitBytes <= 0 {
		errs = append(errs, "HTTP_BODY_LIMIT_BYTES must be > 0")
	}
	if c.AuthLockoutMaxAttempts <= 0 {
		errs = append(errs, "AUTH_LOCKOUT_MAX_ATTEMPTS must be > 0")
	}
	if c.AuthLockoutDuration <= 0 {
		errs = append(errs, "AUTH_LOCKOUT_DURATION must be > 0")
	}
	if c.AuthPhoneCodeTTL <= 0 || c.AuthPasswordResetTokenTTL <= 0 {
		errs = append(errs, "verification code TTLs must be > 0")
	}
	if c.AuthPhoneCodeMaxRequests <= 0 || c.AuthPasswordResetMaxRequests <= 0 {
		errs = append(errs, "verification code max requests must be > 0")
	}
	if c.AuthDeliveryTimeout <= 0 {
		errs = append(errs, "AUTH_DELIVERY_TIMEOUT must be > 0")
	}
	if c.AuthPasswordResetResponseTime < 0 {
		errs = append(errs, "AUTH_PASSWORD_RESET_RESPONSE_TIME must be >= 0")
	}
	if c.AuthGoogleEnabled && c.GoogleClientID == "" {
		errs = append(errs, "GOOGLE_OAUTH_CLIENT_ID is required when AUTH_GOOGLE_ENABLED=true")
	}
	if c.AuthGoogleEnabled && len(c.OAuthTokenEncryptionKey) < 32 {
		errs = append(errs, "OAUTH_TOKEN_ENCRYPTION_KEY must be at least 32 chars when AUTH_GOOGLE_ENABLED=true")
	}
	switch c.NotificationDriver {
	case "log":
		if !isLocalLikeEnv(c.Env) {
			errs = append(errs, "NOTIFICATION_DRIVER=log is only allowed in local environments")
		}
	case "smtp":
		if c.SMTPHost == "" || c.SMTPFrom == "" || c.SMTPPort <= 0 {
			errs = append(errs, "SMTP_HOST, SMTP_PORT and SMTP_FROM are required when NOTIFICATION_DRIVER=smtp")
		}
	default:
		errs = append(errs, "NOTIFICATION_DRIVER must be one of log, smtp")
	}
	switch c.SMSDriver {
	case "log":
		if !isLocalLikeEnv(c.Env) {
			errs = append(errs, "SMS_DRIVER=log is only allowed in local environments")
		}
	case "webhook":
		if c.SMSWebhookURL == "" {
			errs = append(errs, "SMS_WEBHOOK_URL is required when SMS_DRIVER=webhook")
		}
	default:
		errs = append(errs, "SMS_DRIVER must be one of log, webhook")
	}
	if c.AuthAbuseProtectionEnabled {
		if c.AuthAbuseFreeAttempts < 0 {
			errs = append(errs, "AUTH_ABUSE_FREE_ATTEMPTS must be >= 0")
		}
		if c.AuthAbuseBaseDelay <= 0 || c.AuthAbuseMaxDelay < c.AuthAbuseBaseDelay {
			errs = append(errs, "AUTH_ABUSE_BASE_DELAY must be > 0 and <= AUTH_ABUSE_MAX_DELAY")
		}
		if c.AuthAbuseMultiplier < 1 {
			errs = append(errs, "AUTH_ABUSE_MULTIPLIER must be >= 1")
		}
	}
	if c.RedisEnabled && c.RedisAddr == "" {
		errs = append(errs, "REDIS_ADDR is required when REDIS_ENABLED=true")
	}
	if (c.OTELMetricsEnabled || c.OTELTracingEnabled || c.OTELLogsEnabled) && c.OTELExporterOTLPEndpoint == "" {
		errs = append(errs, "OTEL_EXPORTER_OTLP_ENDPOINT is required when OTel is enabled")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		errs = append(errs, "OTEL_TRACE_SAMPLING_RATIO must be between 0 and 1")
	}
	if c.OTELMetricsExportInterval <= 0 {
		errs = append(errs, "OTEL_METRICS_EXPORT_INTERVAL must be > 0")
	}
	if !isValidLogLevel(c.OTELLogLevel) {
		errs = append(errs, "OTEL_LOG_LEVEL must be one of debug, info, warn, error")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func isLocalLikeEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "dev", "local", "test":
		return true
	default:
		return false
	}
}

func isValidJWTAlgorithm(v string) bool {
	switch v {
	case "HS256", "HS384", "HS512":
		return true
	default:
		return false
	}
}

func isValidLogLevel(v string) bool {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}
