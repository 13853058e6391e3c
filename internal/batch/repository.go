package batch

import (
	"context"
	"errors"
)

// ErrBatchNotFound is returned when a batch cannot be found by ID.
var ErrBatchNotFound = errors.New("batch not found")

// Repository defines the interface for batch persistence.
type Repository interface {
	// Save persists a batch. If the batch already exists, it is updated.
	Save(ctx context.Context, b *Batch) error

	// FindByID retrieves a batch by its unique identifier.
	// Returns ErrBatchNotFound if the batch does not exist.
	FindByID(ctx context.Context, id string) (*Batch, error)

	// List returns all batches, oldest first.
	List(ctx context.Context) ([]*Batch, error)

	// Delete removes a batch from storage.
	// Returns ErrBatchNotFound if the batch does not exist.
	Delete(ctx context.Context, id string) error
}
