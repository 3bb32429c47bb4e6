package operation

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an operation cannot be found by ID.
var ErrNotFound = errors.New("operation not found")

// Store defines the interface for operation persistence.
// It acts as a port in the hexagonal architecture pattern.
type Store interface {
	// Save persists an operation to the storage.
	Save(ctx context.Context, op *Operation) error

	// FindByID retrieves an operation by its unique identifier.
	// Returns ErrNotFound if the operation does not exist.
	FindByID(ctx context.Context, id string) (*Operation, error)

	// Update applies mutate to the stored operation atomically with respect
	// to concurrent readers and other updaters, then returns the resulting
	// record. Returns ErrNotFound if the operation does not exist.
	Update(ctx context.Context, id string, mutate func(*Operation) error) (*Operation, error)

	// List returns all operations.
	List(ctx context.Context) ([]*Operation, error)

	// Delete removes an operation from storage.
	// Returns ErrNotFound if the operation does not exist.
	Delete(ctx context.Context, id string) error

	// CleanupExpired removes terminal operations whose completion is older
	// than the given duration. Returns the number of removed operations.
	CleanupExpired(ctx context.Context, olderThan time.Duration) (int, error)
}
