package repository

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"ai-tools-server/internal/models"
)

// MemoryGenerationRepository keeps generation records in a process-wide
// slice behind a mutex. Storage is non-durable: it does not survive a
// process restart. Expected record counts are small (single-user scale), so
// listing is a linear scan plus sort rather than an index.
type MemoryGenerationRepository struct {
	mu          sync.Mutex
	generations []models.Generation
	logger      *zap.Logger
}

// NewMemoryGenerationRepository creates an empty in-memory repository.
func NewMemoryGenerationRepository(logger *zap.Logger) *MemoryGenerationRepository {
	return &MemoryGenerationRepository{
		logger: logger.Named("MemoryGenerationRepo"),
	}
}

// Save appends the record to the backing slice.
func (r *MemoryGenerationRepository) Save(_ context.Context, generation *models.Generation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generations = append(r.generations, *generation)
	r.logger.Debug("Generation saved",
		zap.String("generation_id", generation.ID),
		zap.String("owner_id", generation.OwnerID),
		zap.String("kind", string(generation.Kind)),
	)
	return nil
}

// ListByOwner filters by owner and sorts by CreatedAt descending. Ties keep
// insertion order, which is stable across calls. The returned slice is a
// copy, never a live view of the store.
func (r *MemoryGenerationRepository) ListByOwner(_ context.Context, ownerID string) ([]models.Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]models.Generation, 0)
	for _, gen := range r.generations {
		if gen.OwnerID == ownerID {
			result = append(result, gen)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Delete removes the record with the given id when it belongs to ownerID.
// A missing or foreign id leaves the store unchanged.
func (r *MemoryGenerationRepository) Delete(_ context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, gen := range r.generations {
		if gen.ID == id && gen.OwnerID == ownerID {
			r.generations = append(r.generations[:i], r.generations[i+1:]...)
			r.logger.Debug("Generation deleted", zap.String("generation_id", id))
			return nil
		}
	}
	r.logger.Debug("Delete of unknown generation ignored", zap.String("generation_id", id))
	return nil
}
