package repository

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"ai-tools-server/internal/models"
)

const (
	saveGenerationQuery = `
		INSERT INTO generations (id, owner_id, kind, prompt, content, attributes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	listGenerationsByOwnerQuery = `
		SELECT id, owner_id, kind, prompt, content, attributes, created_at
		FROM generations
		WHERE owner_id = $1
		ORDER BY created_at DESC, id
	`
	deleteGenerationQuery = `
		DELETE FROM generations
		WHERE id = $1 AND owner_id = $2
	`
)

// PgGenerationRepository is the PostgreSQL-backed generation store.
type PgGenerationRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPgGenerationRepository creates a new PgGenerationRepository.
func NewPgGenerationRepository(pool *pgxpool.Pool, logger *zap.Logger) *PgGenerationRepository {
	return &PgGenerationRepository{
		pool:   pool,
		logger: logger.Named("PgGenerationRepo"),
	}
}

// Save inserts the generation record.
func (r *PgGenerationRepository) Save(ctx context.Context, generation *models.Generation) error {
	_, err := r.pool.Exec(ctx, saveGenerationQuery,
		generation.ID,
		generation.OwnerID,
		generation.Kind,
		generation.Prompt,
		generation.Content,
		generation.Attributes,
		generation.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save generation",
			zap.String("generation_id", generation.ID),
			zap.Error(err),
		)
		return fmt.Errorf("error saving generation: %w", err)
	}
	r.logger.Debug("Generation saved", zap.String("generation_id", generation.ID))
	return nil
}

// ListByOwner returns the owner's records ordered by created_at descending.
// The secondary sort on id keeps tie order stable across calls.
func (r *PgGenerationRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Generation, error) {
	generations := make([]models.Generation, 0)
	if err := pgxscan.Select(ctx, r.pool, &generations, listGenerationsByOwnerQuery, ownerID); err != nil {
		r.logger.Error("Failed to list generations", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, fmt.Errorf("error listing generations: %w", err)
	}
	return generations, nil
}

// Delete removes the record when it exists and belongs to ownerID; a
// missing or foreign id affects zero rows and is not an error.
func (r *PgGenerationRepository) Delete(ctx context.Context, ownerID, id string) error {
	tag, err := r.pool.Exec(ctx, deleteGenerationQuery, id, ownerID)
	if err != nil {
		r.logger.Error("Failed to delete generation", zap.String("generation_id", id), zap.Error(err))
		return fmt.Errorf("error deleting generation: %w", err)
	}
	r.logger.Debug("Generation delete executed",
		zap.String("generation_id", id),
		zap.Int64("rows_affected", tag.RowsAffected()),
	)
	return nil
}
