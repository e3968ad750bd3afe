package database

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
)

func TestMigrateAndStatusPerStore(t *testing.T) {
	open := func(name string) *Stores {
		t.Helper()
		dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), name)
		db, err := OpenDialector(sqlite.Open(dsn))
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		return &Stores{Identity: db}
	}
	stores := open("identity")
	stores.Credential = open("credential").Identity
	defer func() { _ = stores.Close() }()

	for _, st := range Status(stores) {
		if st.Present {
			t.Fatalf("expected %s table to be absent before migrate", st.Table)
		}
	}
	if err := Migrate(stores); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, st := range Status(stores) {
		if !st.Present {
			t.Fatalf("expected %s table after migrate", st.Table)
		}
	}
	if stores.Identity.Migrator().HasTable("credentials") {
		t.Fatal("credential table must not be created in the identity store")
	}
}
