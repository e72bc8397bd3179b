package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"civicreport/internal/domain/account"
	"civicreport/internal/domain/complaint"
	"civicreport/internal/domain/notification"
	"civicreport/internal/domain/outbox"
)

// ComplaintStoreForStatus defines the store interface needed by UpdateStatus.
type ComplaintStoreForStatus interface {
	GetByID(ctx context.Context, id int64) (complaint.Complaint, error)
	SetStatus(ctx context.Context, id int64, status string, now time.Time, notification *outbox.Entry) error
}

// AccountLookup resolves a complaint owner.
type AccountLookup interface {
	GetByID(ctx context.Context, id int64) (account.Account, error)
}

// Waker is signalled after new outbox work is committed.
type Waker interface {
	Wake()
}

// UpdateStatusInput carries the review form.
type UpdateStatusInput struct {
	ComplaintID int64
	Status      string
	Actor       account.Authorizer
}

// UpdateStatusDeps holds dependencies for UpdateStatus.
type UpdateStatusDeps struct {
	ComplaintStore ComplaintStoreForStatus
	AccountStore   AccountLookup
	Outbox         Waker
	Now            func() time.Time
	NewID          func() string
}

// UpdateStatusResult reports what was committed.
type UpdateStatusResult struct {
	ComplaintID    int64
	Status         string
	NotificationID string // empty when the owner could not be resolved
}

// ErrForbidden is returned when the actor lacks the required capability.
var ErrForbidden = errors.New("not permitted")

// ExecuteUpdateStatus sets a complaint's status and enqueues the owner notification.
// PRE: Actor holds CapReviewComplaints
// POST: Status and notification committed together; the worker is woken
// INVARIANT: Mail delivery never happens on this path
func ExecuteUpdateStatus(ctx context.Context, input UpdateStatusInput, deps UpdateStatusDeps) (UpdateStatusResult, error) {
	if input.Actor == nil || !input.Actor.Can(account.CapReviewComplaints) {
		return UpdateStatusResult{}, ErrForbidden
	}
	status, err := complaint.NormalizeStatus(input.Status)
	if err != nil {
		return UpdateStatusResult{}, err
	}

	c, err := deps.ComplaintStore.GetByID(ctx, input.ComplaintID)
	if err != nil {
		return UpdateStatusResult{}, err
	}

	now := nowFrom(deps.Now)
	entry, err := statusNotification(ctx, deps, c, status, now)
	if err != nil {
		return UpdateStatusResult{}, err
	}

	if err := deps.ComplaintStore.SetStatus(ctx, c.ID, status, now, entry); err != nil {
		return UpdateStatusResult{}, err
	}

	result := UpdateStatusResult{ComplaintID: c.ID, Status: status}
	if entry != nil {
		result.NotificationID = entry.ID
		if deps.Outbox != nil {
			deps.Outbox.Wake()
		}
	}
	slog.Info("complaint_event", "event", "status_changed", "complaint_id", c.ID, "from", c.Status, "to", status, "notification_id", result.NotificationID)
	return result, nil
}

// statusNotification builds the outbox entry for the owner, or nil when the owner is gone.
func statusNotification(ctx context.Context, deps UpdateStatusDeps, c complaint.Complaint, status string, now time.Time) (*outbox.Entry, error) {
	owner, err := deps.AccountStore.GetByID(ctx, c.AccountID)
	if errors.Is(err, account.ErrNotFound) {
		slog.Warn("complaint_event", "event", "owner_missing", "complaint_id", c.ID, "account_id", c.AccountID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load complaint owner: %w", err)
	}

	msg, err := notification.NewStatusChanged(c.ID, owner.Email, c.Location, status)
	if err != nil {
		return nil, err
	}
	payload, err := msg.Encode()
	if err != nil {
		return nil, err
	}
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	entry := outbox.NewEntry(newID(), outbox.ActionTypeStatusNotification, payload, now)
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	return &entry, nil
}
