//go:build integration

package integration

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/database"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const defaultPostgresTestImage = "docker.io/library/postgres:16-alpine"

// newPostgresStores starts one Postgres container holding two databases, one
// per store, and returns migrated Stores over them.
func newPostgresStores(t *testing.T) *database.Stores {
	t.Helper()

	ctx := context.Background()
	image := os.Getenv("POSTGRES_TEST_IMAGE")
	if strings.TrimSpace(image) == "" {
		image = defaultPostgresTestImage
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: image,
			Env: map[string]string{
				"POSTGRES_USER":     "circles",
				"POSTGRES_PASSWORD": "circles",
				"POSTGRES_DB":       "identity",
			},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres test container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("resolve postgres host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("resolve postgres port: %v", err)
	}
	dsn := func(db string) string {
		return fmt.Sprintf("postgres://circles:circles@%s/%s?sslmode=disable", net.JoinHostPort(host, port.Port()), db)
	}

	identity, err := database.Open(dsn("identity"))
	if err != nil {
		t.Fatalf("open identity database: %v", err)
	}
	if err := identity.Exec("CREATE DATABASE credential").Error; err != nil {
		t.Fatalf("create credential database: %v", err)
	}
	credential, err := database.Open(dsn("credential"))
	if err != nil {
		t.Fatalf("open credential database: %v", err)
	}

	stores := &database.Stores{Identity: identity, Credential: credential}
	t.Cleanup(func() { _ = stores.Close() })
	if err := database.Migrate(stores); err != nil {
		t.Fatalf("migrate stores: %v", err)
	}
	return stores
}
