// Package email delivers outbound mail through a pluggable transport.
package email

import (
	"context"
	"errors"
	"time"
)

// ErrNoRecipients is returned when a request has no To addresses.
var ErrNoRecipients = errors.New("email has no recipients")

// SendRequest contains the data needed to send one email.
type SendRequest struct {
	To      []string // Recipient email addresses
	From    string   // Sender address; the sender's default when empty
	Subject string
	Text    string // Plain-text body
	HTML    string // Optional HTML body
	ReplyTo string
}

// SendResult contains the response from the transport.
type SendResult struct {
	MessageID string    // Provider's message ID for tracking
	SentAt    time.Time // When the send was accepted
}

// Sender is the interface for sending emails.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}
