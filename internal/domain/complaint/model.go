package complaint

import (
	"errors"
	"strings"
	"time"
)

// Max length constants for user-editable fields.
const (
	MaxLocationLength    = 200
	MaxDescriptionLength = 5000
	MaxStatusLength      = 20
)

// Well-known status values. The set is open-ended: any non-empty status up to
// MaxStatusLength characters is accepted.
const (
	StatusPending    = "Pending"
	StatusInProgress = "In Progress"
	StatusResolved   = "Resolved"
	StatusRejected   = "Rejected"
)

// KnownStatuses is the list offered to reviewers.
var KnownStatuses = []string{StatusPending, StatusInProgress, StatusResolved, StatusRejected}

// Domain errors
var (
	ErrNotFound          = errors.New("complaint not found")
	ErrEmptyLocation     = errors.New("location is required")
	ErrLocationTooLong   = errors.New("location cannot exceed 200 characters")
	ErrEmptyDescription  = errors.New("description is required")
	ErrDescriptionLength = errors.New("description cannot exceed 5000 characters")
	ErrEmptyStatus       = errors.New("status is required")
	ErrStatusTooLong     = errors.New("status cannot exceed 20 characters")
	ErrMissingOwner      = errors.New("complaint must belong to an account")
)

// Complaint is a citizen-submitted report.
type Complaint struct {
	ID          int64
	AccountID   int64
	Location    string
	Description string
	ImagePath   string // storage key, empty when no image was uploaded
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// New builds a Pending complaint owned by accountID.
// POST: Status is StatusPending, timestamps set to now
func New(accountID int64, location, description, imagePath string, now time.Time) Complaint {
	return Complaint{
		AccountID:   accountID,
		Location:    strings.TrimSpace(location),
		Description: strings.TrimSpace(description),
		ImagePath:   imagePath,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks if the Complaint has valid data.
// PRE: Complaint struct is populated
// POST: Returns nil if valid, error otherwise
func (c *Complaint) Validate() error {
	if c.AccountID <= 0 {
		return ErrMissingOwner
	}
	if strings.TrimSpace(c.Location) == "" {
		return ErrEmptyLocation
	}
	if len(c.Location) > MaxLocationLength {
		return ErrLocationTooLong
	}
	if strings.TrimSpace(c.Description) == "" {
		return ErrEmptyDescription
	}
	if len(c.Description) > MaxDescriptionLength {
		return ErrDescriptionLength
	}
	_, err := NormalizeStatus(c.Status)
	return err
}

// IsOwnedBy reports whether accountID owns the complaint.
// INVARIANT: Complaint fields are not mutated
func (c *Complaint) IsOwnedBy(accountID int64) bool {
	return accountID > 0 && c.AccountID == accountID
}

// HasImage reports whether an image is attached.
func (c *Complaint) HasImage() bool {
	return c.ImagePath != ""
}

// ApplyEdit replaces location and description, and the image only when
// newImagePath is non-empty. It returns the image path that was replaced, if any.
// POST: UpdatedAt is set to now
func (c *Complaint) ApplyEdit(location, description, newImagePath string, now time.Time) (replaced string) {
	c.Location = strings.TrimSpace(location)
	c.Description = strings.TrimSpace(description)
	if newImagePath != "" {
		replaced = c.ImagePath
		c.ImagePath = newImagePath
	}
	c.UpdatedAt = now
	return replaced
}

// NormalizeStatus trims and validates a status value.
func NormalizeStatus(status string) (string, error) {
	s := strings.TrimSpace(status)
	if s == "" {
		return "", ErrEmptyStatus
	}
	if len(s) > MaxStatusLength {
		return "", ErrStatusTooLong
	}
	return s, nil
}
