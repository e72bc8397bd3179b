package complaint

import (
	"context"
	"time"

	domain "civicreport/internal/domain/complaint"
	domainOutbox "civicreport/internal/domain/outbox"
)

// Store persists Complaint state.
type Store interface {
	Create(ctx context.Context, value domain.Complaint) (domain.Complaint, error)
	GetByID(ctx context.Context, id int64) (domain.Complaint, error)
	ListByAccount(ctx context.Context, accountID int64) ([]domain.Complaint, error)
	ListAll(ctx context.Context) ([]domain.Complaint, error)
	Update(ctx context.Context, value domain.Complaint) error
	// SetStatus changes only the status column. When notification is non-nil it is
	// enqueued in the same transaction.
	SetStatus(ctx context.Context, id int64, status string, now time.Time, notification *domainOutbox.Entry) error
	Delete(ctx context.Context, id int64) error
	CountByStatus(ctx context.Context) (map[string]int, error)
}
