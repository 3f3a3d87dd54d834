package repository

import (
	"context"

	"ai-tools-server/internal/models"
)

// GenerationRepository stores generation records. Create, list and delete
// all go through the same repository instance; implementations must
// serialize writes against their backing store.
type GenerationRepository interface {
	// Save appends a new generation record. Records are immutable once
	// saved; Save is never used to update.
	Save(ctx context.Context, generation *models.Generation) error

	// ListByOwner returns a snapshot of the records whose OwnerID matches
	// ownerID, ordered by CreatedAt descending. Later mutations to the
	// store do not affect an already-returned slice.
	ListByOwner(ctx context.Context, ownerID string) ([]models.Generation, error)

	// Delete removes the record with the given id if it exists and belongs
	// to ownerID. Deleting a missing or foreign id is a no-op, not an
	// error.
	Delete(ctx context.Context, ownerID, id string) error
}
