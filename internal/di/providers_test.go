package di

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/config"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/database"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/http/handler"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/http/router"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newSQLiteStores(t *testing.T) *database.Stores {
	t.Helper()
	open := func(store string) *gorm.DB {
		dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), store)
		db, err := database.OpenDialector(sqlite.Open(dsn))
		if err != nil {
			t.Fatalf("open %s: %v", store, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			t.Fatalf("sql db: %v", err)
		}
		sqlDB.SetMaxOpenConns(1)
		return db
	}
	stores := &database.Stores{Identity: open("identity"), Credential: open("credential")}
	t.Cleanup(func() { _ = stores.Close() })
	return stores
}

func TestProvideHTTPServer(t *testing.T) {
	srv := provideHTTPServer(&config.Config{HTTPPort: "9999"}, nil)
	if srv.Addr != ":9999" {
		t.Fatalf("unexpected addr: %s", srv.Addr)
	}
	if srv.ReadHeaderTimeout != 5*time.Second {
		t.Fatalf("unexpected read header timeout: %v", srv.ReadHeaderTimeout)
	}
}

func TestProvideRouterDependencies(t *testing.T) {
	cfg := &config.Config{CORSAllowedOrigins: []string{"http://localhost:3000"}, HTTPBodyLimitBytes: 2048, OTELTracingEnabled: true}
	dep := provideRouterDependencies(nil, nil, nil, cfg)
	if !dep.EnableOTelHTTP {
		t.Fatal("expected otel http enabled")
	}
	if dep.BodyLimitBytes != 2048 || len(dep.CORSOrigins) != 1 {
		t.Fatalf("unexpected dependencies: %+v", dep)
	}
}

func TestProvideAbuseGuardSelection(t *testing.T) {
	cfg := &config.Config{
		AuthAbuseFreeAttempts: 1,
		AuthAbuseBaseDelay:    time.Second,
		AuthAbuseMultiplier:   2,
		AuthAbuseMaxDelay:     time.Minute,
		AuthAbuseResetWindow:  time.Hour,
		RedisPrefix:           "test",
	}
	clock := Clock(time.Now)

	if _, ok := provideAbuseGuard(cfg, nil, clock).(service.NoopAbuseGuard); !ok {
		t.Fatal("expected noop guard when protection is disabled")
	}

	cfg.AuthAbuseProtectionEnabled = true
	if _, ok := provideAbuseGuard(cfg, nil, clock).(*service.MemoryAbuseGuard); !ok {
		t.Fatal("expected memory guard without redis")
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	guard, ok := provideAbuseGuard(cfg, client, clock).(*service.RedisAbuseGuard)
	if !ok {
		t.Fatal("expected redis guard when a client is configured")
	}
	if _, err := guard.RegisterFailure(context.Background(), service.AbuseScopeLogin, "ann@example.com", "203.0.113.1"); err != nil {
		t.Fatalf("register failure: %v", err)
	}
	if len(mr.Keys()) == 0 {
		t.Fatal("expected abuse counters in redis")
	}
}

func TestOptionalProvidersReturnUntypedNil(t *testing.T) {
	cfg := &config.Config{}
	provider, err := provideOAuthProvider(cfg)
	if err != nil || provider != nil {
		t.Fatalf("expected nil provider interface, got %#v %v", provider, err)
	}
	cipher, err := provideTokenCipher(cfg)
	if err != nil || cipher != nil {
		t.Fatalf("expected nil cipher, got %v %v", cipher, err)
	}
	if provideRedisClient(cfg, nil) != nil {
		t.Fatal("expected no redis client when disabled")
	}
}

func TestProvideVerificationCodesKeepsPoliciesApart(t *testing.T) {
	cfg := &config.Config{
		AuthPhoneCodeTTL:             10 * time.Minute,
		AuthPhoneCodeMaxRequests:     3,
		AuthPasswordResetTokenTTL:    time.Hour,
		AuthPasswordResetMaxRequests: 3,
	}
	codes := provideVerificationCodes(cfg, nil, Clock(time.Now), nil)
	if codes.phone == nil || codes.reset == nil || codes.phone == codes.reset {
		t.Fatalf("expected two distinct managers, got %+v", codes)
	}
}

func TestMigrationRunnerAndReadiness(t *testing.T) {
	stores := newSQLiteStores(t)
	runner := &MigrationRunner{stores: stores}

	for _, st := range runner.Status() {
		if st.Present {
			t.Fatalf("expected %s to be missing before migration", st.Table)
		}
	}
	if err := runner.Up(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, st := range runner.Status() {
		if !st.Present {
			t.Fatalf("expected %s after migration", st.Table)
		}
	}

	readiness := provideReadinessCheckRunner(&config.Config{ReadinessCheckTimeout: time.Second}, stores, nil)
	ready, results := readiness.Ready(context.Background())
	if !ready || len(results) != 3 {
		t.Fatalf("expected three healthy checks, got %v %+v", ready, results)
	}
}

func TestRouterServesLiveness(t *testing.T) {
	dep := provideRouterDependencies(handler.NewAuthHandler(nil, nil, nil), nil, nil, &config.Config{})
	h := router.NewRouter(dep)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
