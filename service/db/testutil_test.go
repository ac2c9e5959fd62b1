package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/brojonat/solapi/service/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestStore starts a Postgres container, applies the schema and returns a
// Store bound to it. The container is terminated when the test finishes.
// TEST_DATABASE_URL points the tests at an existing database instead.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}
	if os.Getenv("SKIP_DB_TESTS") != "" {
		t.Skip("Skipping database test (SKIP_DB_TESTS is set)")
	}

	ctx := context.Background()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		container, err := postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("solapi_test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		require.NoError(t, err, "failed to start postgres container")
		t.Cleanup(func() {
			if err := container.Terminate(context.Background()); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err, "failed to get connection string")
	}

	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)

	store := NewStore(pool, metrics.NewMetrics(prometheus.NewRegistry()))
	t.Cleanup(store.Close)

	require.NoError(t, store.EnsureSchema(ctx))
	_, err = pool.Exec(ctx, "TRUNCATE TABLE transfers")
	require.NoError(t, err)

	return store
}

func ptr[T any](v T) *T {
	return &v
}
