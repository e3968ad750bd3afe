package database

import (
	"context"
	"fmt"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/domain"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/observability"

	"gorm.io/gorm"
)

func MigrateIdentity(db *gorm.DB) error {
	return migrate(db, "identity", &domain.Identity{})
}

func MigrateCredential(db *gorm.DB) error {
	return migrate(db, "credential", &domain.Credential{})
}

// Migrate runs both schemas. The stores are migrated one after the other; a
// failure in the second leaves the first migrated, which is safe to rerun.
func Migrate(stores *Stores) error {
	if err := MigrateIdentity(stores.Identity); err != nil {
		return err
	}
	return MigrateCredential(stores.Credential)
}

func migrate(db *gorm.DB, store string, model any) error {
	ctx := context.Background()
	start := time.Now()
	defer func() {
		observability.RecordDatabaseStartupDuration(ctx, "migrate", time.Since(start))
	}()
	if err := db.AutoMigrate(model); err != nil {
		observability.RecordDatabaseStartupEvent(ctx, "migrate", "error")
		return fmt.Errorf("migrate %s store: %w", store, err)
	}
	observability.RecordDatabaseStartupEvent(ctx, "migrate", "success")
	return nil
}

// TableStatus reports whether a store's table exists.
type TableStatus struct {
	Store   string `json:"store"`
	Table   string `json:"table"`
	Present bool   `json:"present"`
}

func Status(stores *Stores) []TableStatus {
	return []TableStatus{
		{Store: "identity", Table: domain.Identity{}.TableName(), Present: stores.Identity.Migrator().HasTable(&domain.Identity{})},
		{Store: "credential", Table: domain.Credential{}.TableName(), Present: stores.Credential.Migrator().HasTable(&domain.Credential{})},
	}
}
