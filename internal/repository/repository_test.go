package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/domain"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newRepositoryDBForTest(t *testing.T, models ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), len(models))
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
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newCredentialForTest(t *testing.T, repo CredentialRepository) *domain.Credential {
	t.Helper()
	c := &domain.Credential{UserID: uuid.NewString(), PasswordHash: "hash", Salt: "salt"}
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("create credential: %v", err)
	}
	return c
}

func strPtr(s string) *string { return &s }
