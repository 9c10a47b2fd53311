package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aussiebroadwan/agencydesk/internal/auth/store"
	"github.com/aussiebroadwan/agencydesk/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/agencydesk/internal/auth/store/storetest"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres runs a throwaway postgres container and returns its DSN.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres driver tests need Docker")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "agencydesk",
			"POSTGRES_PASSWORD": "agencydesk",
			"POSTGRES_DB":       "auth",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://agencydesk:agencydesk@%s:%s/auth?sslmode=disable", host, port.Port())
}

func TestStore(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	// One container; each subtest gets a clean schema.
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := postgres.NewStore(ctx, dsn)
		require.NoError(t, err)
		require.NoError(t, s.ApplyMigrations())
		require.NoError(t, postgres.Truncate(ctx, s))
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestNewStore_EmptyDSN(t *testing.T) {
	_, err := postgres.NewStore(context.Background(), "")
	require.Error(t, err)
}
