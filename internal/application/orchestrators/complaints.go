package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"civicreport/internal/domain/account"
	"civicreport/internal/domain/complaint"
)

// ImageStore persists uploaded complaint images.
type ImageStore interface {
	Save(ctx context.Context, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// ErrNotOwner is returned when an account edits a complaint it does not own.
var ErrNotOwner = errors.New("complaint is not owned by this account")

// ComplaintGetter loads a single complaint.
type ComplaintGetter interface {
	GetByID(ctx context.Context, id int64) (complaint.Complaint, error)
}

// --- Submit ---

// ComplaintStoreForSubmit defines the store interface needed by SubmitComplaint.
type ComplaintStoreForSubmit interface {
	Create(ctx context.Context, c complaint.Complaint) (complaint.Complaint, error)
}

// SubmitComplaintInput carries the submission form. Image is nil when no file was attached.
type SubmitComplaintInput struct {
	AccountID   int64
	Location    string
	Description string
	Image       io.Reader
}

// SubmitComplaintDeps holds dependencies for SubmitComplaint.
type SubmitComplaintDeps struct {
	ComplaintStore ComplaintStoreForSubmit
	Images         ImageStore
	Now            func() time.Time
}

// ExecuteSubmitComplaint validates and stores a new Pending complaint.
// PRE: input.AccountID is an authenticated account
// POST: Complaint persisted with status Pending; on failure no image is left behind
func ExecuteSubmitComplaint(ctx context.Context, input SubmitComplaintInput, deps SubmitComplaintDeps) (complaint.Complaint, error) {
	c := complaint.New(input.AccountID, input.Location, input.Description, "", nowFrom(deps.Now))
	if err := c.Validate(); err != nil {
		return complaint.Complaint{}, err
	}

	if input.Image != nil {
		key, err := deps.Images.Save(ctx, input.Image)
		if err != nil {
			return complaint.Complaint{}, err
		}
		c.ImagePath = key
	}

	created, err := deps.ComplaintStore.Create(ctx, c)
	if err != nil {
		discardImage(ctx, deps.Images, c.ImagePath)
		return complaint.Complaint{}, err
	}
	slog.Info("complaint_event", "event", "submitted", "complaint_id", created.ID, "account_id", created.AccountID, "has_image", created.HasImage())
	return created, nil
}

// --- Edit ---

// ComplaintStoreForEdit defines the store interface needed by EditComplaint.
type ComplaintStoreForEdit interface {
	ComplaintGetter
	Update(ctx context.Context, c complaint.Complaint) error
}

// EditComplaintInput carries the edit form. A nil Image keeps the current one.
type EditComplaintInput struct {
	ComplaintID int64
	AccountID   int64
	Location    string
	Description string
	Image       io.Reader
}

// EditComplaintDeps holds dependencies for EditComplaint.
type EditComplaintDeps struct {
	ComplaintStore ComplaintStoreForEdit
	Images         ImageStore
	Now            func() time.Time
}

// ExecuteEditComplaint updates location, description and optionally the image.
// PRE: input.AccountID is an authenticated account
// POST: Owner's complaint updated; a replaced image is removed from storage
// INVARIANT: Status is never changed here
func ExecuteEditComplaint(ctx context.Context, input EditComplaintInput, deps EditComplaintDeps) (complaint.Complaint, error) {
	c, err := LoadOwnedComplaint(ctx, deps.ComplaintStore, input.ComplaintID, input.AccountID)
	if err != nil {
		return complaint.Complaint{}, err
	}

	now := nowFrom(deps.Now)
	candidate := c
	candidate.ApplyEdit(input.Location, input.Description, "", now)
	if err := candidate.Validate(); err != nil {
		return complaint.Complaint{}, err
	}

	newKey := ""
	if input.Image != nil {
		if newKey, err = deps.Images.Save(ctx, input.Image); err != nil {
			return complaint.Complaint{}, err
		}
	}

	replaced := c.ApplyEdit(input.Location, input.Description, newKey, now)
	if err := deps.ComplaintStore.Update(ctx, c); err != nil {
		discardImage(ctx, deps.Images, newKey)
		return complaint.Complaint{}, err
	}
	discardImage(ctx, deps.Images, replaced)

	slog.Info("complaint_event", "event", "edited", "complaint_id", c.ID, "account_id", input.AccountID, "image_replaced", replaced != "")
	return c, nil
}

// LoadOwnedComplaint fetches a complaint and checks that accountID owns it.
// POST: Returns complaint.ErrNotFound or ErrNotOwner on failure
func LoadOwnedComplaint(ctx context.Context, store ComplaintGetter, id, accountID int64) (complaint.Complaint, error) {
	c, err := store.GetByID(ctx, id)
	if err != nil {
		return complaint.Complaint{}, err
	}
	if !c.IsOwnedBy(accountID) {
		slog.Warn("complaint_event", "event", "not_owner", "complaint_id", id, "account_id", accountID)
		return complaint.Complaint{}, ErrNotOwner
	}
	return c, nil
}

// --- Delete ---

// ComplaintStoreForDelete defines the store interface needed by DeleteComplaint.
type ComplaintStoreForDelete interface {
	ComplaintGetter
	Delete(ctx context.Context, id int64) error
}

// DeleteComplaintInput identifies the complaint and who is asking.
type DeleteComplaintInput struct {
	ComplaintID int64
	AccountID   int64
	Actor       account.Authorizer
}

// DeleteComplaintDeps holds dependencies for DeleteComplaint.
type DeleteComplaintDeps struct {
	ComplaintStore ComplaintStoreForDelete
	Images         ImageStore
}

// ExecuteDeleteComplaint removes a complaint and its stored image.
// PRE: input.AccountID is an authenticated account
// POST: Row and image removed; complaints the actor may not delete look missing
func ExecuteDeleteComplaint(ctx context.Context, input DeleteComplaintInput, deps DeleteComplaintDeps) error {
	c, err := deps.ComplaintStore.GetByID(ctx, input.ComplaintID)
	if err != nil {
		return err
	}
	if !c.IsOwnedBy(input.AccountID) && (input.Actor == nil || !input.Actor.Can(account.CapReviewComplaints)) {
		slog.Warn("complaint_event", "event", "delete_denied", "complaint_id", c.ID, "account_id", input.AccountID)
		return fmt.Errorf("complaint %d: %w", c.ID, complaint.ErrNotFound)
	}
	if err := deps.ComplaintStore.Delete(ctx, c.ID); err != nil {
		return err
	}
	discardImage(ctx, deps.Images, c.ImagePath)
	slog.Info("complaint_event", "event", "deleted", "complaint_id", c.ID, "account_id", input.AccountID)
	return nil
}

// discardImage removes a stored image, logging rather than failing.
func discardImage(ctx context.Context, images ImageStore, key string) {
	if key == "" {
		return
	}
	if err := images.Delete(ctx, key); err != nil {
		slog.Error("image_delete_failed", "key", key, "error", err)
	}
}
