package outbox

import (
	"context"

	domain "civicreport/internal/domain/outbox"
)

// Store defines the interface for outbox entry persistence.
type Store interface {
	// GetByID retrieves an outbox entry by its ID.
	// POST: Returns the entry or an error wrapping domain.ErrNotFound
	GetByID(ctx context.Context, id string) (domain.Entry, error)

	// Save persists an outbox entry (insert or update).
	// PRE: entity has been validated
	Save(ctx context.Context, e domain.Entry) error

	// ListPending returns entries that still need delivery (pending or retrying).
	// PRE: limit > 0
	// POST: Returns up to limit entries, oldest first
	ListPending(ctx context.Context, limit int) ([]domain.Entry, error)

	// ListFailed returns entries that exhausted their attempts.
	// PRE: limit > 0
	// POST: Returns up to limit entries, most recently attempted first
	ListFailed(ctx context.Context, limit int) ([]domain.Entry, error)

	// Delete removes an entry. Unknown ids are not an error.
	Delete(ctx context.Context, id string) error
}
