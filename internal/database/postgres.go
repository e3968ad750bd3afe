package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/config"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/observability"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Stores holds the two independently committed databases. Nothing spans both.
type Stores struct {
	Identity   *gorm.DB
	Credential *gorm.DB
}

func Open(dsn string) (*gorm.DB, error) {
	return OpenDialector(postgres.Open(dsn))
}

// OpenDialector applies the shared gorm settings. TranslateError is required by
// the repositories to detect unique violations.
func OpenDialector(d gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(d, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
}

func OpenStores(cfg *config.Config) (*Stores, error) {
	start := time.Now()
	defer func() {
		observability.RecordDatabaseStartupDuration(context.Background(), "connect", time.Since(start))
	}()

	identity, err := Open(cfg.IdentityDatabaseURL)
	if err != nil {
		observability.RecordDatabaseStartupEvent(context.Background(), "connect", "error")
		return nil, fmt.Errorf("open identity database: %w", err)
	}
	credential, err := Open(cfg.CredentialDatabaseURL)
	if err != nil {
		_ = closeDB(identity)
		observability.RecordDatabaseStartupEvent(context.Background(), "connect", "error")
		return nil, fmt.Errorf("open credential database: %w", err)
	}
	observability.RecordDatabaseStartupEvent(context.Background(), "connect", "success")
	return &Stores{Identity: identity, Credential: credential}, nil
}

func (s *Stores) Close() error {
	if s == nil {
		return nil
	}
	return errors.Join(closeDB(s.Identity), closeDB(s.Credential))
}

func closeDB(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
