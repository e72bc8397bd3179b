package projections

import (
	"context"

	domainAccount "civicreport/internal/domain/account"
	domainComplaint "civicreport/internal/domain/complaint"
	domainOutbox "civicreport/internal/domain/outbox"
)

// ComplaintLister interface for complaint queries.
type ComplaintLister interface {
	ListByAccount(ctx context.Context, accountID int64) ([]domainComplaint.Complaint, error)
	ListAll(ctx context.Context) ([]domainComplaint.Complaint, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// AccountLookup interface for resolving complaint owners.
type AccountLookup interface {
	GetByID(ctx context.Context, id int64) (domainAccount.Account, error)
}

// OutboxLister interface for outbox queries.
type OutboxLister interface {
	ListPending(ctx context.Context, limit int) ([]domainOutbox.Entry, error)
	ListFailed(ctx context.Context, limit int) ([]domainOutbox.Entry, error)
}
