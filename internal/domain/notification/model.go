// Package notification composes the messages sent to complaint owners.
package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// StatusChangedSubject is the subject line of every status-change email.
const StatusChangedSubject = "Complaint Status Updated"

// Domain errors
var (
	ErrNoRecipient = errors.New("notification recipient is required")
	ErrNoStatus    = errors.New("notification status is required")
)

// StatusChanged is the payload persisted in the outbox for one status-change email.
type StatusChanged struct {
	ComplaintID int64  `json:"complaint_id"`
	To          string `json:"to"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

// NewStatusChanged composes the plain-text message for a complaint's new status.
// PRE: to and status are non-empty
// POST: Subject and Body are populated
func NewStatusChanged(complaintID int64, to, location, status string) (StatusChanged, error) {
	if strings.TrimSpace(to) == "" {
		return StatusChanged{}, ErrNoRecipient
	}
	if strings.TrimSpace(status) == "" {
		return StatusChanged{}, ErrNoStatus
	}
	var body strings.Builder
	fmt.Fprintf(&body, "Your complaint status is now: %s\n", status)
	if location != "" {
		fmt.Fprintf(&body, "\nComplaint #%d at %s\n", complaintID, location)
	}
	return StatusChanged{
		ComplaintID: complaintID,
		To:          to,
		Subject:     StatusChangedSubject,
		Body:        body.String(),
	}, nil
}

// Encode serialises the message for the outbox.
func (m StatusChanged) Encode() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeStatusChanged parses an outbox payload.
func DecodeStatusChanged(payload string) (StatusChanged, error) {
	var m StatusChanged
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return StatusChanged{}, fmt.Errorf("decode status notification: %w", err)
	}
	if m.To == "" {
		return StatusChanged{}, ErrNoRecipient
	}
	return m, nil
}
