package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"civicreport/internal/domain/account"
)

// AccountStoreForSeed defines the store interface needed by SeedAdmin.
type AccountStoreForSeed interface {
	CountByRole(ctx context.Context, role string) (int, error)
	Create(ctx context.Context, a account.Account) (account.Account, error)
}

// SeedAdminInput carries the configured administrator credentials.
type SeedAdminInput struct {
	Username string
	Email    string
	Password string
}

// SeedAdminDeps holds dependencies for SeedAdmin.
type SeedAdminDeps struct {
	AccountStore AccountStoreForSeed
	Now          func() time.Time
}

// ErrNoAdminPassword is returned when no administrator exists and none can be created.
var ErrNoAdminPassword = errors.New("administrator password is not configured")

// ExecuteSeedAdmin creates the administrator account when none exists.
// PRE: Schema is migrated
// POST: At least one admin account exists; returns true if one was created now
func ExecuteSeedAdmin(ctx context.Context, input SeedAdminInput, deps SeedAdminDeps) (bool, error) {
	n, err := deps.AccountStore.CountByRole(ctx, account.RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	if input.Password == "" {
		return false, ErrNoAdminPassword
	}

	admin := account.Account{
		Username:  strings.TrimSpace(input.Username),
		Email:     strings.TrimSpace(input.Email),
		Role:      account.RoleAdmin,
		CreatedAt: nowFrom(deps.Now),
	}
	if err := admin.Validate(); err != nil {
		return false, fmt.Errorf("administrator config: %w", err)
	}
	if err := admin.SetPassword(input.Password); err != nil {
		return false, err
	}
	created, err := deps.AccountStore.Create(ctx, admin)
	if err != nil {
		return false, fmt.Errorf("create administrator: %w", err)
	}
	slog.Info("auth_event", "event", "admin_seeded", "account_id", created.ID, "username", created.Username)
	return true, nil
}
