package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	internal_storage "github.com/ignatij/goclassify/internal/storage"
	"github.com/joho/godotenv"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresTestsEnabled reports whether the container-backed PostgreSQL tests should run.
func PostgresTestsEnabled() bool {
	return os.Getenv("GOCLASSIFY_PG_TESTS") == "1"
}

// TestDB holds a migrated test database and the container running it, if any.
type TestDB struct {
	DSN       string
	container testcontainers.Container
}

// SetupSQLite migrates a fresh SQLite database in a temporary directory.
func SetupSQLite(t *testing.T) *TestDB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "goclassify.db")
	if err := internal_storage.Migrate(dsn); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return &TestDB{DSN: dsn}
}

// SetupPostgres starts a PostgreSQL container and migrates it. The test is
// skipped unless GOCLASSIFY_PG_TESTS=1.
func SetupPostgres(t *testing.T) *TestDB {
	t.Helper()
	if !PostgresTestsEnabled() {
		t.Skip("set GOCLASSIFY_PG_TESTS=1 to run PostgreSQL tests")
	}
	ctx := context.Background()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		t.Logf("No .env file found or failed to load: %v. Proceeding with environment variables.", err)
	}
	dbUsername := envOr("DB_USERNAME", "goclassify")
	dbPassword := envOr("DB_PASSWORD", "goclassify")
	dbName := envOr("DB_NAME", "goclassify_test")

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     dbUsername,
			"POSTGRES_PASSWORD": dbPassword,
			"POSTGRES_DB":       dbName,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	td := &TestDB{container: pgContainer}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		td.Teardown(t)
		t.Fatal(err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		td.Teardown(t)
		t.Fatal(err)
	}
	td.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		dbUsername, dbPassword, host, port.Port(), dbName)

	if err := internal_storage.Migrate(td.DSN); err != nil {
		td.Teardown(t)
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return td
}

// Teardown terminates the container, if one was started.
func (td *TestDB) Teardown(t *testing.T) {
	if td.container == nil {
		return
	}
	if err := td.container.Terminate(context.Background()); err != nil {
		t.Fatalf("Failed to terminate container: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
