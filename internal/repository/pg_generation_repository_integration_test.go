package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"ai-tools-server/internal/models"
	"ai-tools-server/internal/repository"
	"ai-tools-server/pkg/migration"
)

type PgRepositorySuite struct {
	suite.Suite
	ctx         context.Context
	pgContainer *postgres.PostgresContainer
	pgPool      *pgxpool.Pool
	repo        repository.GenerationRepository
	logger      *zap.Logger
}

func (s *PgRepositorySuite) SetupSuite() {
	s.ctx = context.Background()
	var err error

	s.logger, err = zap.NewDevelopment()
	require.NoError(s.T(), err, "Failed to create logger for tests")

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start postgres container")

	pgConnStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err, "Failed to get postgres connection string")

	s.pgPool, err = pgxpool.New(s.ctx, pgConnStr)
	require.NoError(s.T(), err, "Failed to connect to test postgres")

	migrator := migration.NewMigrator(migration.Config{
		MigrationsPath: repository.MigrationsPath,
		MigrationsFS:   repository.MigrationsFS,
	}, s.pgPool)
	require.NoError(s.T(), migrator.Up(s.ctx), "Failed to run migrations")

	s.repo = repository.NewPgGenerationRepository(s.pgPool, s.logger)
}

func (s *PgRepositorySuite) TearDownSuite() {
	if s.pgPool != nil {
		s.pgPool.Close()
	}
	if s.pgContainer != nil {
		if err := s.pgContainer.Terminate(s.ctx); err != nil {
			s.logger.Error("Failed to terminate postgres container", zap.Error(err))
		}
	}
}

func (s *PgRepositorySuite) SetupTest() {
	_, err := s.pgPool.Exec(s.ctx, "TRUNCATE TABLE generations")
	require.NoError(s.T(), err, "Failed to truncate generations table")
}

func (s *PgRepositorySuite) newGeneration(ownerID string, kind models.GenerationKind, createdAt time.Time) *models.Generation {
	return &models.Generation{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Kind:      kind,
		Prompt:    "prompt",
		Content:   "content",
		CreatedAt: createdAt,
	}
}

func (s *PgRepositorySuite) TestSaveAndListNewestFirst() {
	t := s.T()
	base := time.Now().UTC().Truncate(time.Microsecond)

	oldest := s.newGeneration("guest_a", models.KindChat, base.Add(-2*time.Hour))
	middle := s.newGeneration("guest_a", models.KindImage, base.Add(-time.Hour))
	newest := s.newGeneration("guest_a", models.KindObject, base)

	for _, g := range []*models.Generation{oldest, newest, middle} {
		require.NoError(t, s.repo.Save(s.ctx, g))
	}

	listed, err := s.repo.ListByOwner(s.ctx, "guest_a")
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, newest.ID, listed[0].ID)
	assert.Equal(t, middle.ID, listed[1].ID)
	assert.Equal(t, oldest.ID, listed[2].ID)
}

func (s *PgRepositorySuite) TestSavePersistsAttributes() {
	t := s.T()

	generation := s.newGeneration("guest_a", models.KindVision, time.Now().UTC())
	generation.Attributes = &models.GenerationAttributes{ImageURL: "https://example.com/cat.jpg"}
	require.NoError(t, s.repo.Save(s.ctx, generation))

	listed, err := s.repo.ListByOwner(s.ctx, "guest_a")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.NotNil(t, listed[0].Attributes)
	assert.Equal(t, "https://example.com/cat.jpg", listed[0].Attributes.ImageURL)
}

func (s *PgRepositorySuite) TestListIsOwnerScoped() {
	t := s.T()

	require.NoError(t, s.repo.Save(s.ctx, s.newGeneration("guest_a", models.KindChat, time.Now().UTC())))
	require.NoError(t, s.repo.Save(s.ctx, s.newGeneration("guest_b", models.KindChat, time.Now().UTC())))

	listed, err := s.repo.ListByOwner(s.ctx, "guest_a")
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	listed, err = s.repo.ListByOwner(s.ctx, "guest_missing")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func (s *PgRepositorySuite) TestDeleteOnlyRemovesOwnRecord() {
	t := s.T()

	mine := s.newGeneration("guest_a", models.KindChat, time.Now().UTC())
	require.NoError(t, s.repo.Save(s.ctx, mine))

	// Another owner cannot delete it.
	require.NoError(t, s.repo.Delete(s.ctx, "guest_b", mine.ID))
	listed, err := s.repo.ListByOwner(s.ctx, "guest_a")
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	require.NoError(t, s.repo.Delete(s.ctx, "guest_a", mine.ID))
	listed, err = s.repo.ListByOwner(s.ctx, "guest_a")
	require.NoError(t, err)
	assert.Empty(t, listed)

	// Deleting again is a no-op.
	require.NoError(t, s.repo.Delete(s.ctx, "guest_a", mine.ID))
}

func TestPgRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		t.Fatalf("Docker client init error: %v. Ensure Docker is running and accessible.", err)
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		t.Fatalf("Docker daemon is not running or accessible: %v", err)
	}
	cli.Close()

	suite.Run(t, new(PgRepositorySuite))
}
