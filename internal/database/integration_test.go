package database_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/localnerve/reestrsi/data"
	"github.com/localnerve/reestrsi/internal/config"
	"github.com/localnerve/reestrsi/internal/database"
	"github.com/localnerve/reestrsi/internal/files"
	"github.com/localnerve/reestrsi/internal/models"
	"github.com/localnerve/reestrsi/internal/repository"
	"github.com/localnerve/reestrsi/internal/services"
	"github.com/localnerve/reestrsi/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func image(env, fallback string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	return fallback
}

// requireDocker skips integration tests in short mode or without a reachable docker daemon
func requireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		t.Skipf("Docker client unavailable: %v", err)
	}
	defer cli.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		t.Skipf("Docker daemon unreachable: %v", err)
	}
}

// TestWithMariaDB runs the registry against a real MariaDB container
func TestWithMariaDB(t *testing.T) {
	requireDocker(t)
	ctx := context.Background()

	port, err := nat.NewPort("tcp", "3306")
	require.NoError(t, err)

	mariadbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image("DB_IMAGE", "mariadb:11"),
			ExposedPorts: []string{string(port)},
			Env: map[string]string{
				"MARIADB_ROOT_PASSWORD": "rootpass",
				"MARIADB_DATABASE":      "reestrsi",
				"MARIADB_USER":          "testuser",
				"MARIADB_PASSWORD":      "testpass",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("ready for connections"),
				wait.ForListeningPort(port),
			).WithDeadline(90 * time.Second),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, mariadbContainer)
	require.NoError(t, err, "Failed to start MariaDB container")

	host, err := mariadbContainer.Host(ctx)
	require.NoError(t, err)
	mapped, err := mariadbContainer.MappedPort(ctx, port)
	require.NoError(t, err)

	cfg := testutil.Config(t)
	cfg.DBType = "mariadb"
	cfg.DBHost = host
	cfg.DBPort = mapped.Port()
	cfg.DBDatabase = "reestrsi"
	cfg.DBUser = "testuser"
	cfg.DBPassword = "testpass"
	cfg.DBConnectionLimit = 5

	runRegistry(t, cfg)
}

// TestWithPostgreSQL runs the registry against a real PostgreSQL container
func TestWithPostgreSQL(t *testing.T) {
	requireDocker(t)
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		image("POSTGRES_IMAGE", "postgres:16-alpine"),
		postgres.WithDatabase("reestrsi"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, postgresContainer)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	host, err := postgresContainer.Host(ctx)
	require.NoError(t, err)
	mapped, err := postgresContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := testutil.Config(t)
	cfg.DBType = "postgres"
	cfg.DBHost = host
	cfg.DBPort = mapped.Port()
	cfg.DBDatabase = "reestrsi"
	cfg.DBUser = "testuser"
	cfg.DBPassword = "testpass"
	cfg.DBConnectionLimit = 5

	runRegistry(t, cfg)
}

func runRegistry(t *testing.T, cfg *config.Config) {
	db, err := database.Connect(cfg, zap.NewNop())
	require.NoError(t, err)
	defer database.Close(db)
	require.NoError(t, database.AutoMigrate(db))

	repo := repository.New(db, testutil.Registry(t), zap.NewNop())
	ctx := context.Background()

	t.Run("ServiceLifecycle", func(t *testing.T) {
		fx := testutil.SeedFixtures(t, db)
		store := files.NewStore(cfg.UploadFolder, cfg.AllowedExtensions, nil)
		lc := services.NewLifecycle(repo, store, zap.NewNop())

		due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		inst := fx.CreateInstrument(t, db, "INT-1", due)

		rec := &models.ServiceRecord{DateInService: models.Date(2025, 2, 20), StatusServiceID: &fx.StatusService.ID}
		require.NoError(t, lc.SendToService(ctx, inst.ID, rec))
		assert.ErrorIs(t, lc.SendToService(ctx, inst.ID, &models.ServiceRecord{DateInService: models.Date(2025, 2, 21)}), services.ErrOnService)

		next := models.Date(2026, 3, 1)
		rec.DateNextService = &next
		require.NoError(t, lc.FinalizeService(ctx, rec))

		var si models.Instrument
		require.NoError(t, db.First(&si, inst.ID).Error)
		assert.False(t, si.IsService)
		assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Time(si.DateNextService).UTC())

		history, err := lc.History(ctx, inst.ID)
		require.NoError(t, err)
		assert.Len(t, history, 1)

		_, err = lc.DeleteInstrument(ctx, inst.ID)
		require.NoError(t, err)
		var left int64
		require.NoError(t, db.Model(&models.ServiceRecord{}).Where("si_id = ?", inst.ID).Count(&left).Error)
		assert.Zero(t, left)
	})

	t.Run("Seed", func(t *testing.T) {
		// tables filled by the fixtures are left alone
		inserted, err := database.Seed(ctx, repo, data.Seed)
		require.NoError(t, err)
		assert.Positive(t, inserted[models.DescriptionMethodName])
		_, ok := inserted[models.ServiceIntervalName]
		assert.False(t, ok)

		again, err := database.Seed(ctx, repo, data.Seed)
		require.NoError(t, err)
		assert.Empty(t, again)
	})
}
