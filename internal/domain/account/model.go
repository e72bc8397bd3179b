package account

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Max length constants for user-editable fields.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 80
	MaxEmailLength    = 120
)

// Role constants
const (
	RoleAdmin   = "admin"
	RoleCitizen = "citizen"
)

// ValidRoles contains all valid role values.
var ValidRoles = []string{RoleAdmin, RoleCitizen}

// Capability names a privileged action an account may perform.
type Capability string

// Capabilities granted by role.
const (
	CapReviewComplaints Capability = "review_complaints"
	CapManageOutbox     Capability = "manage_outbox"
	CapViewPerf         Capability = "view_perf"
)

var roleCapabilities = map[string][]Capability{
	RoleAdmin:   {CapReviewComplaints, CapManageOutbox, CapViewPerf},
	RoleCitizen: nil,
}

// Authorizer is implemented by anything that can answer a capability check
// (an Account, or an authenticated session).
type Authorizer interface {
	Can(c Capability) bool
}

// HashCost is the bcrypt cost used by SetPassword. Tests lower it.
var HashCost = 12

// Domain errors
var (
	ErrEmptyUsername     = errors.New("username cannot be empty")
	ErrUsernameLength    = errors.New("username must be between 3 and 80 characters")
	ErrUsernameChars     = errors.New("username may only contain letters, digits, '.', '_' and '-'")
	ErrEmptyEmail        = errors.New("email cannot be empty")
	ErrEmailTooLong      = errors.New("email cannot exceed 120 characters")
	ErrInvalidEmail      = errors.New("email must contain '@'")
	ErrInvalidRole       = errors.New("role must be one of: admin, citizen")
	ErrEmptyPassword     = errors.New("password cannot be empty")
	ErrWrongPassword     = errors.New("incorrect password")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrNotFound          = errors.New("account not found")
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Account holds state for the Account concept.
type Account struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// Validate checks if the Account has valid data.
// PRE: Account struct is populated
// POST: Returns nil if valid, error otherwise
func (a *Account) Validate() error {
	username := strings.TrimSpace(a.Username)
	if username == "" {
		return ErrEmptyUsername
	}
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return ErrUsernameLength
	}
	if !usernamePattern.MatchString(username) {
		return ErrUsernameChars
	}
	email := strings.TrimSpace(a.Email)
	if email == "" {
		return ErrEmptyEmail
	}
	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}
	if !isBareAddress(email) {
		return ErrInvalidEmail
	}
	if !isValidRole(a.Role) {
		return ErrInvalidRole
	}
	return nil
}

// isBareAddress accepts a single RFC 5322 addr-spec: no display name, angle
// brackets, comments or line breaks, so the value is safe to use as a mail header.
func isBareAddress(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Name == "" && addr.Address == email
}

// SetPassword hashes and stores a password using bcrypt.
// PRE: plaintext is non-empty
// POST: PasswordHash is set to bcrypt hash
func (a *Account) SetPassword(plaintext string) error {
	if plaintext == "" {
		return ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), HashCost)
	if err != nil {
		return err
	}
	a.PasswordHash = string(hash)
	return nil
}

// CheckPassword verifies a plaintext password against the stored hash.
// PRE: PasswordHash is set
// INVARIANT: Account fields are not mutated
func (a *Account) CheckPassword(plaintext string) error {
	if a.PasswordHash == "" {
		return ErrWrongPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(plaintext)); err != nil {
		return ErrWrongPassword
	}
	return nil
}

// IsAdmin returns true if the account has admin role.
// INVARIANT: Account fields are not mutated
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Can reports whether the account's role grants c.
func (a Account) Can(c Capability) bool {
	return RoleCan(a.Role, c)
}

// RoleCan reports whether role grants capability c.
func RoleCan(role string, c Capability) bool {
	for _, have := range roleCapabilities[role] {
		if have == c {
			return true
		}
	}
	return false
}

func isValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}
